package model

import "github.com/distillab/distilgo/internal/tensor"

// Block is one transformer layer: self-attention with residual add and
// layer norm, then the feed-forward sub-layer with its own residual add
// and layer norm.
type Block struct {
	Attn    *MultiHeadSelfAttention
	SANorm  LayerNorm
	FFN     *FFN
	OutNorm LayerNorm
}

func newBlock(cfg *Config, seeds *seedSequence) *Block {
	return &Block{
		Attn:    newAttention(cfg, seeds),
		SANorm:  NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		FFN:     newFFN(cfg, seeds),
		OutNorm: NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
	}
}

// Forward runs the block over x. The returned attention weights are nil
// unless outputAttentions is set.
func (blk *Block) Forward(x *tensor.Tensor3, mask [][]float32, headMask []float32, outputAttentions bool) (tensor.Tensor3, *tensor.Tensor4, error) {
	saOut, weights, err := blk.Attn.Forward(x, mask, headMask, outputAttentions)
	if err != nil {
		return tensor.Tensor3{}, nil, err
	}
	tensor.Add(saOut.Data, x.Data)
	blk.SANorm.Apply(&saOut)

	ffnOut := blk.FFN.Forward(&saOut)
	tensor.Add(ffnOut.Data, saOut.Data)
	blk.OutNorm.Apply(&ffnOut)

	return ffnOut, weights, nil
}
