package model

import "github.com/distillab/distilgo/internal/tensor"

// Linear is a dense affine layer. W is stored [out, in] so pruning output
// neurons removes rows and pruning input neurons removes columns.
type Linear struct {
	W tensor.Mat
	B []float32
}

// NewLinear allocates a zeroed in→out layer.
func NewLinear(in, out int) Linear {
	return Linear{
		W: tensor.NewMat(out, in),
		B: make([]float32, out),
	}
}

func (l *Linear) init(seed int64, std float64) {
	tensor.FillNormal(&l.W, seed, std)
	for i := range l.B {
		l.B[i] = 0
	}
}

// In and Out report the layer's input and output widths.
func (l *Linear) In() int  { return l.W.C }
func (l *Linear) Out() int { return l.W.R }

// Forward computes dst = W·x + b for a single feature vector.
func (l *Linear) Forward(dst, x []float32) {
	for r := 0; r < l.W.R; r++ {
		dst[r] = tensor.Dot(l.W.Row(r), x) + l.B[r]
	}
}

// Apply runs the layer over every (batch, position) row of x.
func (l *Linear) Apply(x *tensor.Tensor3) tensor.Tensor3 {
	out := tensor.NewTensor3(x.B, x.S, l.Out())
	for b := 0; b < x.B; b++ {
		for s := 0; s < x.S; s++ {
			l.Forward(out.Row(b, s), x.Row(b, s))
		}
	}
	return out
}

// pruneOut keeps only the output neurons named by idx, in order.
func (l *Linear) pruneOut(idx []int) {
	l.W = l.W.SelectRows(idx)
	b := make([]float32, len(idx))
	for i, r := range idx {
		b[i] = l.B[r]
	}
	l.B = b
}

// pruneIn keeps only the input neurons named by idx, in order. The bias is
// untouched since it acts on the output side.
func (l *Linear) pruneIn(idx []int) {
	l.W = l.W.SelectCols(idx)
}
