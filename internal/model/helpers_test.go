package model

import (
	"math/rand"
	"testing"

	"github.com/distillab/distilgo/internal/tensor"
)

func toyConfig() Config {
	return Config{
		VocabSize:             100,
		HiddenSize:            16,
		NumHiddenLayers:       2,
		NumAttentionHeads:     2,
		HiddenDim:             64,
		MaxPositionEmbeddings: 32,
		Activation:            ActivationGELU,
		PadTokenID:            1,
		LayerNormEps:          1e-12,
		InitializerRange:      0.02,
	}
}

func randIDs(rng *rand.Rand, batch, seq, vocab int) [][]int {
	ids := make([][]int, batch)
	for b := range ids {
		ids[b] = make([]int, seq)
		for s := range ids[b] {
			ids[b][s] = rng.Intn(vocab)
		}
	}
	return ids
}

func randTensor3(rng *rand.Rand, b, s, d int) tensor.Tensor3 {
	out := tensor.NewTensor3(b, s, d)
	for i := range out.Data {
		out.Data[i] = float32(rng.NormFloat64())
	}
	return out
}

func compareSlices(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		g := got[i]
		w := want[i]
		if g < w-tol || g > w+tol {
			t.Fatalf("mismatch at %d: got %v want %v (tol %v)", i, g, w, tol)
		}
	}
}
