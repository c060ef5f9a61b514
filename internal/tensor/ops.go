package tensor

import (
	"math"
)

// NegInf is the additive mask value for attention scores at ignored keys.
var NegInf = float32(math.Inf(-1))

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalizes src to zero mean and unit variance and applies the
// learned gain and bias: dst[i] = (src[i]-mean)/sqrt(var+eps)*gamma[i]+beta[i].
// The variance is the population variance, matching the usual transformer
// convention. dst and src may alias.
func LayerNorm(dst, src, gamma, beta []float32, eps float32) {
	var sum float64
	for _, v := range src {
		sum += float64(v)
	}
	mean := sum / float64(len(src))
	var sq float64
	for _, v := range src {
		d := float64(v) - mean
		sq += d * d
	}
	variance := sq / float64(len(src))
	inv := 1.0 / math.Sqrt(variance+float64(eps))
	for i := range src {
		norm := (float64(src[i]) - mean) * inv
		dst[i] = float32(norm)*gamma[i] + beta[i]
	}
}

// Softmax applies the softmax function to x in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// GELU applies the exact (erf-based) Gaussian Error Linear Unit to x in place.
func GELU(x []float32) {
	for i, v := range x {
		x[i] = float32(0.5 * float64(v) * (1.0 + math.Erf(float64(v)/math.Sqrt2)))
	}
}

// ReLU applies the rectified linear unit to x in place.
func ReLU(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}
