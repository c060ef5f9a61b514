package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/distillab/distilgo/internal/tensor"
)

// MultiHeadSelfAttention is one block's attention module. Q/K/V project the
// residual stream (always full model width) down to the module's current
// width; Out projects back up. Pruning heads shrinks the current width while
// the residual stream keeps its size.
type MultiHeadSelfAttention struct {
	Q, K, V Linear
	Out     Linear

	NumHeads int // heads still present
	Dim      int // current width = NumHeads * headDim

	headDim   int
	origHeads int
	modelDim  int
	pruned    map[int]struct{} // original head indices already removed
}

func newAttention(cfg *Config, seeds *seedSequence) *MultiHeadSelfAttention {
	d := cfg.HiddenSize
	a := &MultiHeadSelfAttention{
		Q:         NewLinear(d, d),
		K:         NewLinear(d, d),
		V:         NewLinear(d, d),
		Out:       NewLinear(d, d),
		NumHeads:  cfg.NumAttentionHeads,
		Dim:       d,
		headDim:   cfg.HeadDim(),
		origHeads: cfg.NumAttentionHeads,
		modelDim:  d,
		pruned:    make(map[int]struct{}),
	}
	a.Q.init(seeds.next(), cfg.InitializerRange)
	a.K.init(seeds.next(), cfg.InitializerRange)
	a.V.init(seeds.next(), cfg.InitializerRange)
	a.Out.init(seeds.next(), cfg.InitializerRange)
	return a
}

// PrunedHeads returns the original indices of removed heads, sorted.
func (a *MultiHeadSelfAttention) PrunedHeads() []int {
	out := make([]int, 0, len(a.pruned))
	for h := range a.pruned {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// PruneHeads permanently removes the given heads (original indices).
// Heads already pruned are skipped, so the operation is idempotent.
func (a *MultiHeadSelfAttention) PruneHeads(heads []int) error {
	drop := make(map[int]struct{})
	for _, h := range heads {
		if h < 0 || h >= a.origHeads {
			return fmt.Errorf("model: head index %d out of range [0,%d)", h, a.origHeads)
		}
		if _, done := a.pruned[h]; done {
			continue
		}
		drop[h] = struct{}{}
	}
	if len(drop) == 0 {
		return nil
	}

	// Surviving flat offsets in the module's current layout.
	keep := make([]int, 0, (a.NumHeads-len(drop))*a.headDim)
	cur := 0
	for o := 0; o < a.origHeads; o++ {
		if _, done := a.pruned[o]; done {
			continue
		}
		if _, gone := drop[o]; !gone {
			for d := 0; d < a.headDim; d++ {
				keep = append(keep, cur*a.headDim+d)
			}
		}
		cur++
	}

	a.Q.pruneOut(keep)
	a.K.pruneOut(keep)
	a.V.pruneOut(keep)
	a.Out.pruneIn(keep)

	a.NumHeads -= len(drop)
	a.Dim = a.NumHeads * a.headDim
	for h := range drop {
		a.pruned[h] = struct{}{}
	}
	return nil
}

// Forward computes scaled dot-product self-attention over x.
//
// mask is (batch, seq); zero entries are excluded from the key axis.
// headMask, when non-nil, multiplies each head's attention weights.
// The returned weights tensor is nil unless outputAttentions is set.
func (a *MultiHeadSelfAttention) Forward(x *tensor.Tensor3, mask [][]float32, headMask []float32, outputAttentions bool) (tensor.Tensor3, *tensor.Tensor4, error) {
	if x.D != a.modelDim {
		return tensor.Tensor3{}, nil, fmt.Errorf("model: attention input width %d, want %d", x.D, a.modelDim)
	}
	if headMask != nil && len(headMask) != a.NumHeads {
		return tensor.Tensor3{}, nil, fmt.Errorf("model: head mask length %d, want %d", len(headMask), a.NumHeads)
	}
	if a.NumHeads == 0 {
		return tensor.Tensor3{}, nil, fmt.Errorf("model: all attention heads pruned")
	}

	q := a.Q.Apply(x)
	k := a.K.Apply(x)
	v := a.V.Apply(x)

	dh := a.headDim
	scale := float32(1.0 / math.Sqrt(float64(dh)))

	weights := tensor.NewTensor4(x.B, a.NumHeads, x.S, x.S)
	for b := 0; b < x.B; b++ {
		for h := 0; h < a.NumHeads; h++ {
			lo, hi := h*dh, (h+1)*dh
			for i := 0; i < x.S; i++ {
				row := weights.Row(b, h, i)
				qh := q.Row(b, i)[lo:hi]
				for j := 0; j < x.S; j++ {
					if mask[b][j] == 0 {
						row[j] = tensor.NegInf
						continue
					}
					row[j] = tensor.Dot(qh, k.Row(b, j)[lo:hi]) * scale
				}
				tensor.Softmax(row)
				if headMask != nil {
					for j := range row {
						row[j] *= headMask[h]
					}
				}
			}
		}
	}

	ctx := tensor.NewTensor3(x.B, x.S, a.Dim)
	for b := 0; b < x.B; b++ {
		for i := 0; i < x.S; i++ {
			out := ctx.Row(b, i)
			for h := 0; h < a.NumHeads; h++ {
				lo := h * dh
				row := weights.Row(b, h, i)
				for j := 0; j < x.S; j++ {
					w := row[j]
					if w == 0 {
						continue
					}
					vh := v.Row(b, j)[lo : lo+dh]
					for d := 0; d < dh; d++ {
						out[lo+d] += w * vh[d]
					}
				}
			}
		}
	}

	result := a.Out.Apply(&ctx)
	if !outputAttentions {
		return result, nil, nil
	}
	return result, &weights, nil
}
