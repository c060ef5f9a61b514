package tensor

import "math/rand"

// Mat represents a dense row-major matrix of float32 values.
//
// R and C are the number of rows and columns respectively. Stride is the
// number of elements between the starts of two consecutive rows (for
// row-major matrices this is equal to C). Data holds the flattened values.
//
// Mat does not perform any memory safety beyond the checks performed by
// Go's slice types; out-of-range indices will panic.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// Row returns a view of the i-th row of the matrix. Modifications to the
// returned slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// Clone returns a deep copy of the matrix.
func (m *Mat) Clone() Mat {
	out := NewMat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		copy(out.Row(i), m.Row(i))
	}
	return out
}

// SelectRows returns a new matrix containing the rows of m named by idx,
// in order.
func (m *Mat) SelectRows(idx []int) Mat {
	out := NewMat(len(idx), m.C)
	for i, r := range idx {
		copy(out.Row(i), m.Row(r))
	}
	return out
}

// SelectCols returns a new matrix containing the columns of m named by idx,
// in order.
func (m *Mat) SelectCols(idx []int) Mat {
	out := NewMat(m.R, len(idx))
	for r := 0; r < m.R; r++ {
		src := m.Row(r)
		dst := out.Row(r)
		for i, c := range idx {
			dst[i] = src[c]
		}
	}
	return out
}

// FillRand fills the matrix with reproducible pseudo-random values in a
// small range around zero. The seed controls the random sequence; multiple
// calls with the same seed produce identical matrices.
func FillRand(m *Mat, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * 0.02 // roughly in (-0.01,0.01)
	}
}

// FillNormal fills the matrix with reproducible normally distributed values
// with mean zero and the given standard deviation.
func FillNormal(m *Mat, seed int64, std float64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = float32(rng.NormFloat64() * std)
	}
}
