package model

import (
	"math"
	"testing"

	"github.com/distillab/distilgo/internal/tensor"
)

func TestSinusoidalValues(t *testing.T) {
	m := tensor.NewMat(8, 6)
	fillSinusoidal(&m)

	// Position zero: sin(0)=0 at even indices, cos(0)=1 at odd indices.
	row := m.Row(0)
	for j := 0; j < 6; j++ {
		want := float32(0)
		if j%2 == 1 {
			want = 1
		}
		if row[j] != want {
			t.Fatalf("pos 0 index %d: got %v want %v", j, row[j], want)
		}
	}

	// Spot-check the closed form at an interior position.
	pos, dim := 5, 6
	for j := 0; j < dim; j++ {
		angle := float64(pos) / math.Pow(10000, float64(2*(j/2))/float64(dim))
		want := math.Sin(angle)
		if j%2 == 1 {
			want = math.Cos(angle)
		}
		got := float64(m.Row(pos)[j])
		if math.Abs(got-want) > 1e-6 {
			t.Fatalf("pos %d index %d: got %v want %v", pos, j, got, want)
		}
	}
}

func TestEmbeddingsPadRowZero(t *testing.T) {
	cfg := toyConfig()
	seeds := &seedSequence{seed: 1}
	e := newEmbeddings(&cfg, seeds)

	for _, v := range e.Word.Row(cfg.PadTokenID) {
		if v != 0 {
			t.Fatal("pad token embedding must start zeroed")
		}
	}
}

func TestEmbeddingsForwardErrors(t *testing.T) {
	cfg := toyConfig()
	seeds := &seedSequence{seed: 1}
	e := newEmbeddings(&cfg, seeds)

	if _, err := e.Forward([][]int{{0, 1}, {2}}); err == nil {
		t.Fatal("expected ragged batch error")
	}
	if _, err := e.Forward([][]int{{cfg.VocabSize}}); err == nil {
		t.Fatal("expected out-of-range token error")
	}
	if _, err := e.Forward([][]int{}); err == nil {
		t.Fatal("expected empty batch error")
	}
	long := make([]int, cfg.MaxPositionEmbeddings+1)
	if _, err := e.Forward([][]int{long}); err == nil {
		t.Fatal("expected sequence length error")
	}
}

func TestEmbeddingsDeterministic(t *testing.T) {
	cfg := toyConfig()
	a := newEmbeddings(&cfg, &seedSequence{seed: 4})
	b := newEmbeddings(&cfg, &seedSequence{seed: 4})

	ids := [][]int{{3, 7, 9}}
	xa, err := a.Forward(ids)
	if err != nil {
		t.Fatal(err)
	}
	xb, err := b.Forward(ids)
	if err != nil {
		t.Fatal(err)
	}
	compareSlices(t, xa.Data, xb.Data, 0)
}
