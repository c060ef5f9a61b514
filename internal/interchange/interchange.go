// Package interchange swaps slices of hidden-state activations between two
// batches mid-forward-pass, for causal-intervention probing and training.
// A swap overwrites part of the running hidden state with values recorded
// from a donor batch at the same layer, so everything downstream of the
// addressed layer sees the intervened activations.
package interchange

import (
	"errors"
	"fmt"

	"github.com/distillab/distilgo/internal/tensor"
)

// ErrMaskCardinality reports destination/donor masks selecting different
// numbers of positions. Each destination row receives exactly one donor
// row, paired by row-major order, so the counts must match.
var ErrMaskCardinality = errors.New("interchange: destination and donor masks select different position counts")

// Variable addresses an activation slice inside one layer's hidden state:
// the flat range [Head*headDim+Start, Head*headDim+Start+Len) of the last
// dimension.
type Variable struct {
	Layer int
	Head  int
	Start int
	Len   int
}

// Assignment pairs a Variable with the donor batch's hidden state recorded
// at that variable's layer.
type Assignment struct {
	Var   Variable
	Donor tensor.Tensor3
}

// Spec is one forward pass's interchange plan: which variables to
// overwrite, which (batch, position) rows of the running batch receive
// values, and which rows of the donor batch supply them.
type Spec struct {
	Assignments []Assignment

	Dest  [][]bool // (batch, seq) over the running batch
	Donor [][]bool // (batch, seq) over the donor batch
}

func countTrue(mask [][]bool) int {
	n := 0
	for _, row := range mask {
		for _, v := range row {
			if v {
				n++
			}
		}
	}
	return n
}

func maskShape(mask [][]bool, b, s int) error {
	if len(mask) != b {
		return fmt.Errorf("interchange: mask batch %d, want %d", len(mask), b)
	}
	for i, row := range mask {
		if len(row) != s {
			return fmt.Errorf("interchange: mask row %d has length %d, want %d", i, len(row), s)
		}
	}
	return nil
}

// Validate checks the spec against the running batch's shape and the
// encoder's geometry. It must pass before Apply is called.
func (s *Spec) Validate(batch, seq, dim, headDim, layers int) error {
	if s.Dest == nil || s.Donor == nil {
		return errors.New("interchange: destination and donor masks are required")
	}
	if err := maskShape(s.Dest, batch, seq); err != nil {
		return err
	}
	if countTrue(s.Dest) != countTrue(s.Donor) {
		return ErrMaskCardinality
	}
	heads := dim / headDim
	for i := range s.Assignments {
		v := &s.Assignments[i].Var
		if v.Layer < 0 || v.Layer >= layers {
			return fmt.Errorf("interchange: variable %d layer %d out of range [0,%d)", i, v.Layer, layers)
		}
		if v.Head < 0 || v.Head >= heads {
			return fmt.Errorf("interchange: variable %d head %d out of range [0,%d)", i, v.Head, heads)
		}
		if v.Start < 0 || v.Len <= 0 || v.Start+v.Len > headDim {
			return fmt.Errorf("interchange: variable %d range [%d,%d) outside head width %d", i, v.Start, v.Start+v.Len, headDim)
		}
		donor := &s.Assignments[i].Donor
		if donor.D != dim {
			return fmt.Errorf("interchange: variable %d donor width %d, want %d", i, donor.D, dim)
		}
		if err := maskShape(s.Donor, donor.B, donor.S); err != nil {
			return fmt.Errorf("interchange: variable %d: %w", i, err)
		}
	}
	return nil
}

// rows lists the (batch, seq) indices selected by mask, in row-major order.
func rows(mask [][]bool) [][2]int {
	out := make([][2]int, 0)
	for b, row := range mask {
		for s, v := range row {
			if v {
				out = append(out, [2]int{b, s})
			}
		}
	}
	return out
}

// Apply overwrites the addressed slice of hidden for every assignment at
// the given layer. Layers with no assignment are untouched.
func (s *Spec) Apply(hidden *tensor.Tensor3, layer, headDim int) error {
	var dst, src [][2]int
	for i := range s.Assignments {
		asn := &s.Assignments[i]
		if asn.Var.Layer != layer {
			continue
		}
		if dst == nil {
			dst = rows(s.Dest)
			src = rows(s.Donor)
			if len(dst) != len(src) {
				return ErrMaskCardinality
			}
		}
		start := asn.Var.Head*headDim + asn.Var.Start
		stop := start + asn.Var.Len
		for k := range dst {
			from := asn.Donor.Row(src[k][0], src[k][1])
			to := hidden.Row(dst[k][0], dst[k][1])
			copy(to[start:stop], from[start:stop])
		}
	}
	return nil
}
