package model

import "github.com/distillab/distilgo/internal/tensor"

// LayerNorm holds the learned gain and bias of a normalization sub-layer.
type LayerNorm struct {
	Gamma []float32
	Beta  []float32
	Eps   float32
}

// NewLayerNorm returns a layer with identity gain and zero bias, the usual
// pre-training starting point.
func NewLayerNorm(dim int, eps float64) LayerNorm {
	gamma := make([]float32, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return LayerNorm{
		Gamma: gamma,
		Beta:  make([]float32, dim),
		Eps:   float32(eps),
	}
}

// Forward normalizes a single row in place.
func (n *LayerNorm) Forward(x []float32) {
	tensor.LayerNorm(x, x, n.Gamma, n.Beta, n.Eps)
}

// Apply normalizes every (batch, position) row of x in place.
func (n *LayerNorm) Apply(x *tensor.Tensor3) {
	for b := 0; b < x.B; b++ {
		for s := 0; s < x.S; s++ {
			n.Forward(x.Row(b, s))
		}
	}
}
