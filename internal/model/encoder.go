package model

import (
	"errors"
	"fmt"

	"github.com/distillab/distilgo/internal/interchange"
	"github.com/distillab/distilgo/internal/tensor"
)

// Caller-contract violations surfaced by Forward.
var (
	ErrBothInputs = errors.New("model: both token ids and embeddings supplied")
	ErrNoInputs   = errors.New("model: neither token ids nor embeddings supplied")
)

// seedSequence deals deterministic per-parameter seeds from one model seed,
// so two models built with the same seed are identical.
type seedSequence struct {
	seed int64
	n    int64
}

func (s *seedSequence) next() int64 {
	s.n++
	return s.seed + s.n*7919
}

// Model is the bare encoder: embeddings plus a stack of transformer blocks.
// Learned parameters persist across calls; a forward pass never mutates
// them.
type Model struct {
	Config Config
	Emb    *Embeddings
	Layers []*Block

	seeds *seedSequence
}

// New builds a model with reproducible seeded initialization.
func New(cfg Config, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seeds := &seedSequence{seed: seed}
	m := &Model{
		Config: cfg,
		Emb:    newEmbeddings(&cfg, seeds),
		Layers: make([]*Block, cfg.NumHiddenLayers),
		seeds:  seeds,
	}
	for i := range m.Layers {
		m.Layers[i] = newBlock(&cfg, seeds)
	}
	return m, nil
}

// Request carries one forward pass's inputs. Exactly one of InputIDs and
// Embeds must be set; everything else is optional.
type Request struct {
	InputIDs [][]int
	Embeds   *tensor.Tensor3

	// AttentionMask is (batch, seq); 1 attend, 0 ignore. Nil means all ones.
	AttentionMask [][]float32

	// HeadMask gates attention weights per layer and head. Nil entries (or a
	// nil slice) leave the corresponding layers untouched.
	HeadMask [][]float32

	OutputHiddenStates bool
	OutputAttentions   bool

	// Interchange, when non-nil, swaps activation slices from donor batches
	// into the running hidden state after the addressed layers.
	Interchange *interchange.Spec
}

// Output is the result of one encoder forward pass.
type Output struct {
	LastHidden tensor.Tensor3

	// HiddenStates, when requested, has length layers+1: the embedding
	// output first, then each block's output in order.
	HiddenStates []tensor.Tensor3

	// Attentions, when requested, has one entry per layer.
	Attentions []tensor.Tensor4
}

func (m *Model) embed(req *Request) (tensor.Tensor3, error) {
	switch {
	case req.InputIDs != nil && req.Embeds != nil:
		return tensor.Tensor3{}, ErrBothInputs
	case req.InputIDs == nil && req.Embeds == nil:
		return tensor.Tensor3{}, ErrNoInputs
	case req.InputIDs != nil:
		return m.Emb.Forward(req.InputIDs)
	default:
		if req.Embeds.D != m.Config.HiddenSize {
			return tensor.Tensor3{}, fmt.Errorf("model: embeddings width %d, want %d", req.Embeds.D, m.Config.HiddenSize)
		}
		return req.Embeds.Clone(), nil
	}
}

func onesMask(b, s int) [][]float32 {
	mask := make([][]float32, b)
	for i := range mask {
		row := make([]float32, s)
		for j := range row {
			row[j] = 1
		}
		mask[i] = row
	}
	return mask
}

// Forward runs the encoder stack.
func (m *Model) Forward(req *Request) (*Output, error) {
	hidden, err := m.embed(req)
	if err != nil {
		return nil, err
	}

	mask := req.AttentionMask
	if mask == nil {
		mask = onesMask(hidden.B, hidden.S)
	} else if len(mask) != hidden.B {
		return nil, fmt.Errorf("model: attention mask batch %d, want %d", len(mask), hidden.B)
	} else {
		for b, row := range mask {
			if len(row) != hidden.S {
				return nil, fmt.Errorf("model: attention mask row %d has length %d, want %d", b, len(row), hidden.S)
			}
		}
	}

	if req.HeadMask != nil && len(req.HeadMask) != len(m.Layers) {
		return nil, fmt.Errorf("model: head mask layers %d, want %d", len(req.HeadMask), len(m.Layers))
	}

	if req.Interchange != nil {
		if err := req.Interchange.Validate(hidden.B, hidden.S, hidden.D, m.Config.HeadDim(), len(m.Layers)); err != nil {
			return nil, err
		}
	}

	out := &Output{}
	if req.OutputHiddenStates {
		out.HiddenStates = make([]tensor.Tensor3, 0, len(m.Layers)+1)
		out.HiddenStates = append(out.HiddenStates, hidden.Clone())
	}
	if req.OutputAttentions {
		out.Attentions = make([]tensor.Tensor4, 0, len(m.Layers))
	}

	for i, blk := range m.Layers {
		var headMask []float32
		if req.HeadMask != nil {
			headMask = req.HeadMask[i]
		}
		next, weights, err := blk.Forward(&hidden, mask, headMask, req.OutputAttentions)
		if err != nil {
			return nil, fmt.Errorf("model: layer %d: %w", i, err)
		}
		hidden = next

		// The swap mutates the hidden state that feeds the next layer, so
		// the intervention is causal by construction.
		if req.Interchange != nil {
			if err := req.Interchange.Apply(&hidden, i, m.Config.HeadDim()); err != nil {
				return nil, fmt.Errorf("model: layer %d: %w", i, err)
			}
		}

		if req.OutputHiddenStates {
			out.HiddenStates = append(out.HiddenStates, hidden.Clone())
		}
		if req.OutputAttentions {
			out.Attentions = append(out.Attentions, *weights)
		}
	}

	out.LastHidden = hidden
	return out, nil
}

// PruneHeads removes attention heads per layer. Keys are layer indices,
// values original head indices. Already-pruned heads are skipped.
func (m *Model) PruneHeads(heads map[int][]int) error {
	for layer, hs := range heads {
		if layer < 0 || layer >= len(m.Layers) {
			return fmt.Errorf("model: prune layer %d out of range [0,%d)", layer, len(m.Layers))
		}
		if err := m.Layers[layer].Attn.PruneHeads(hs); err != nil {
			return fmt.Errorf("model: prune layer %d: %w", layer, err)
		}
	}
	return nil
}
