package tensor

// Tensor3 is a dense (batch, seq, dim) activation tensor in row-major
// layout. It is the unit of data flowing through an encoder forward pass:
// one is allocated per call and, when per-layer outputs are requested,
// snapshots of it are retained in the output list.
type Tensor3 struct {
	B, S, D int
	Data    []float32
}

// NewTensor3 allocates a zeroed (b, s, d) tensor.
func NewTensor3(b, s, d int) Tensor3 {
	if b < 0 || s < 0 || d < 0 {
		panic("negative dimension for tensor")
	}
	return Tensor3{
		B:    b,
		S:    s,
		D:    d,
		Data: make([]float32, b*s*d),
	}
}

// Row returns a view of the feature vector at batch b, position s.
// Modifications through the returned slice update the tensor.
func (t *Tensor3) Row(b, s int) []float32 {
	if b < 0 || b >= t.B || s < 0 || s >= t.S {
		panic("tensor row index out of range")
	}
	start := (b*t.S + s) * t.D
	return t.Data[start : start+t.D]
}

// Clone returns a deep copy of the tensor.
func (t *Tensor3) Clone() Tensor3 {
	out := NewTensor3(t.B, t.S, t.D)
	copy(out.Data, t.Data)
	return out
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor3) SameShape(o *Tensor3) bool {
	return t.B == o.B && t.S == o.S && t.D == o.D
}

// FillNormal fills the tensor with reproducible normally distributed
// values with mean zero and the given standard deviation.
func (t *Tensor3) FillNormal(seed int64, std float64) {
	m := NewMatFromData(t.B*t.S, t.D, t.Data)
	FillNormal(&m, seed, std)
}
