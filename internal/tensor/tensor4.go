package tensor

// Tensor4 is a dense (batch, head, query, key) tensor. Its only use is
// holding per-layer attention weights when a caller asks for them.
type Tensor4 struct {
	B, H, Q, K int
	Data       []float32
}

// NewTensor4 allocates a zeroed (b, h, q, k) tensor.
func NewTensor4(b, h, q, k int) Tensor4 {
	if b < 0 || h < 0 || q < 0 || k < 0 {
		panic("negative dimension for tensor")
	}
	return Tensor4{
		B:    b,
		H:    h,
		Q:    q,
		K:    k,
		Data: make([]float32, b*h*q*k),
	}
}

// Row returns a view of the key-axis scores for batch b, head h, query q.
func (t *Tensor4) Row(b, h, q int) []float32 {
	if b < 0 || b >= t.B || h < 0 || h >= t.H || q < 0 || q >= t.Q {
		panic("tensor row index out of range")
	}
	start := ((b*t.H+h)*t.Q + q) * t.K
	return t.Data[start : start+t.K]
}
