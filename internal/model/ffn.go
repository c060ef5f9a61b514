package model

import "github.com/distillab/distilgo/internal/tensor"

// FFN is the position-wise feed-forward sub-layer: lin1 → activation → lin2.
// A positive chunk size bounds peak memory by processing the sequence axis
// in slices; the result is identical either way since the layer is
// position-wise.
type FFN struct {
	Lin1, Lin2 Linear

	activation func([]float32)
	chunk      int
}

func newFFN(cfg *Config, seeds *seedSequence) *FFN {
	f := &FFN{
		Lin1:  NewLinear(cfg.HiddenSize, cfg.HiddenDim),
		Lin2:  NewLinear(cfg.HiddenDim, cfg.HiddenSize),
		chunk: cfg.ChunkSizeFeedForward,
	}
	if cfg.Activation == ActivationReLU {
		f.activation = tensor.ReLU
	} else {
		f.activation = tensor.GELU
	}
	f.Lin1.init(seeds.next(), cfg.InitializerRange)
	f.Lin2.init(seeds.next(), cfg.InitializerRange)
	return f
}

// Forward applies the feed-forward network to every position of x.
func (f *FFN) Forward(x *tensor.Tensor3) tensor.Tensor3 {
	out := tensor.NewTensor3(x.B, x.S, f.Lin2.Out())
	step := f.chunk
	if step <= 0 || step > x.S {
		step = x.S
	}
	inner := make([]float32, f.Lin1.Out())
	for b := 0; b < x.B; b++ {
		for start := 0; start < x.S; start += step {
			end := start + step
			if end > x.S {
				end = x.S
			}
			for s := start; s < end; s++ {
				f.Lin1.Forward(inner, x.Row(b, s))
				f.activation(inner)
				f.Lin2.Forward(out.Row(b, s), inner)
			}
		}
	}
	return out
}
