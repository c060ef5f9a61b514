package model

import (
	"fmt"
	"math"

	"github.com/distillab/distilgo/internal/tensor"
)

// Embeddings maps token ids to hidden vectors: word embedding plus position
// embedding, then layer normalization. Position ids are implicit (0..seq-1).
type Embeddings struct {
	Word     tensor.Mat // [vocab, dim]
	Position tensor.Mat // [maxPos, dim]
	Norm     LayerNorm

	vocab  int
	maxPos int
	dim    int
	padID  int
}

func newEmbeddings(cfg *Config, seeds *seedSequence) *Embeddings {
	e := &Embeddings{
		Word:     tensor.NewMat(cfg.VocabSize, cfg.HiddenSize),
		Position: tensor.NewMat(cfg.MaxPositionEmbeddings, cfg.HiddenSize),
		Norm:     NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		vocab:    cfg.VocabSize,
		maxPos:   cfg.MaxPositionEmbeddings,
		dim:      cfg.HiddenSize,
		padID:    cfg.PadTokenID,
	}
	tensor.FillNormal(&e.Word, seeds.next(), cfg.InitializerRange)
	if cfg.PadTokenID >= 0 && cfg.PadTokenID < cfg.VocabSize {
		row := e.Word.Row(cfg.PadTokenID)
		for i := range row {
			row[i] = 0
		}
	}
	if cfg.SinusoidalPosEmbds {
		fillSinusoidal(&e.Position)
	} else {
		tensor.FillNormal(&e.Position, seeds.next(), cfg.InitializerRange)
	}
	return e
}

// fillSinusoidal writes the fixed sinusoidal position encoding into out:
// sin(pos / 10000^(2*(j/2)/dim)) at even j, cos of the same angle at odd j.
func fillSinusoidal(out *tensor.Mat) {
	dim := out.C
	for pos := 0; pos < out.R; pos++ {
		row := out.Row(pos)
		for j := 0; j < dim; j++ {
			angle := float64(pos) / math.Pow(10000, float64(2*(j/2))/float64(dim))
			if j%2 == 0 {
				row[j] = float32(math.Sin(angle))
			} else {
				row[j] = float32(math.Cos(angle))
			}
		}
	}
}

// Forward embeds a batch of token id sequences. All sequences in the batch
// must have the same length and fit within the position table.
func (e *Embeddings) Forward(ids [][]int) (tensor.Tensor3, error) {
	if len(ids) == 0 {
		return tensor.Tensor3{}, fmt.Errorf("model: empty batch")
	}
	seq := len(ids[0])
	if seq == 0 {
		return tensor.Tensor3{}, fmt.Errorf("model: empty sequence")
	}
	if seq > e.maxPos {
		return tensor.Tensor3{}, fmt.Errorf("model: sequence length %d exceeds max position embeddings %d", seq, e.maxPos)
	}
	out := tensor.NewTensor3(len(ids), seq, e.dim)
	for b, sent := range ids {
		if len(sent) != seq {
			return tensor.Tensor3{}, fmt.Errorf("model: ragged batch: sequence %d has length %d, want %d", b, len(sent), seq)
		}
		for s, id := range sent {
			if id < 0 || id >= e.vocab {
				return tensor.Tensor3{}, fmt.Errorf("model: token id %d out of range at (%d,%d)", id, b, s)
			}
			row := out.Row(b, s)
			copy(row, e.Word.Row(id))
			tensor.Add(row, e.Position.Row(s))
			e.Norm.Forward(row)
		}
	}
	return out, nil
}
