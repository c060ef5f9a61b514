package model

import (
	"fmt"

	"github.com/distillab/distilgo/internal/tensor"
)

// ResizePositionEmbeddings grows or shrinks the position table to n rows.
// Learned tables keep their prefix when growing (new rows freshly
// initialized) and are truncated when shrinking; sinusoidal tables are
// regenerated, which extends the fixed encoding exactly. Resizing to the
// current size is a no-op.
func (m *Model) ResizePositionEmbeddings(n int) error {
	if n <= 0 {
		return fmt.Errorf("model: position embedding size must be positive, got %d", n)
	}
	if n == m.Config.MaxPositionEmbeddings {
		return nil
	}

	next := tensor.NewMat(n, m.Config.HiddenSize)
	if m.Config.SinusoidalPosEmbds {
		fillSinusoidal(&next)
	} else {
		tensor.FillNormal(&next, m.seeds.next(), m.Config.InitializerRange)
		old := &m.Emb.Position
		keep := old.R
		if n < keep {
			keep = n
		}
		for i := 0; i < keep; i++ {
			copy(next.Row(i), old.Row(i))
		}
	}

	m.Emb.Position = next
	m.Emb.maxPos = n
	m.Config.MaxPositionEmbeddings = n
	return nil
}
