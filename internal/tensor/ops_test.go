package tensor

import (
	"math"
	"testing"
)

func TestLayerNormMatchesReference(t *testing.T) {
	src := []float32{0.3, -1.2, 2.5, 0.0, 4.1, -0.7}
	gamma := []float32{1.0, 0.9, 1.1, 1.0, 0.8, 1.2}
	beta := []float32{0.0, 0.1, -0.1, 0.2, 0.0, -0.2}
	const eps = 1e-12

	dst := make([]float32, len(src))
	LayerNorm(dst, src, gamma, beta, eps)

	var mean float64
	for _, v := range src {
		mean += float64(v)
	}
	mean /= float64(len(src))
	var variance float64
	for _, v := range src {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(src))
	for i := range src {
		norm := (float64(src[i]) - mean) / math.Sqrt(variance+eps)
		want := float32(norm)*gamma[i] + beta[i]
		if diff := math.Abs(float64(dst[i] - want)); diff > 1e-5 {
			t.Fatalf("element %d: got %v want %v", i, dst[i], want)
		}
	}
}

func TestLayerNormInPlace(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	gamma := []float32{1, 1, 1, 1}
	beta := []float32{0, 0, 0, 0}

	want := make([]float32, len(x))
	LayerNorm(want, x, gamma, beta, 1e-12)
	LayerNorm(x, x, gamma, beta, 1e-12)

	for i := range x {
		if x[i] != want[i] {
			t.Fatalf("aliased layernorm diverges at %d: got %v want %v", i, x[i], want[i])
		}
	}
}

func TestSoftmaxNormalizes(t *testing.T) {
	x := []float32{1.5, -2.0, 0.3, 7.0}
	Softmax(x)

	var sum float64
	for _, v := range x {
		if v < 0 || v > 1 {
			t.Fatalf("softmax value out of range: %v", v)
		}
		sum += float64(v)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Fatalf("softmax sum = %v, want 1", sum)
	}
}

func TestSoftmaxWithNegInfMask(t *testing.T) {
	x := []float32{0.5, NegInf, 1.5, NegInf}
	Softmax(x)

	if x[1] != 0 || x[3] != 0 {
		t.Fatalf("masked positions must get zero weight, got %v", x)
	}
	if math.Abs(float64(x[0]+x[2])-1.0) > 1e-6 {
		t.Fatalf("unmasked positions must sum to 1, got %v", x)
	}
}

func TestGELUKnownValues(t *testing.T) {
	x := []float32{0, 1, -1, 2}
	GELU(x)

	want := []float32{0, 0.8413447, -0.15865526, 1.9544997}
	for i := range x {
		if diff := math.Abs(float64(x[i] - want[i])); diff > 1e-5 {
			t.Fatalf("gelu(%d): got %v want %v", i, x[i], want[i])
		}
	}
}

func TestReLU(t *testing.T) {
	x := []float32{-3, 0, 2.5, -0.1}
	ReLU(x)

	want := []float32{0, 0, 2.5, 0}
	for i := range x {
		if x[i] != want[i] {
			t.Fatalf("relu at %d: got %v want %v", i, x[i], want[i])
		}
	}
}
