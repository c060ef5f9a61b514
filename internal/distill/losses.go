package distill

import (
	"errors"
	"fmt"
	"math"

	"github.com/distillab/distilgo/internal/tensor"
)

// IgnoreIndex marks label positions excluded from cross-entropy.
const IgnoreIndex = -100

// ErrShapeParity reports student/teacher tensors disagreeing after masked
// selection. This is a caller contract violation, not recoverable.
var ErrShapeParity = errors.New("distill: student/teacher shape mismatch after masked selection")

// logSoftmax computes log(softmax(x/temp)) in float64.
func logSoftmax(x []float32, temp float64, out []float64) {
	maxv := math.Inf(-1)
	for _, v := range x {
		s := float64(v) / temp
		if s > maxv {
			maxv = s
		}
	}
	var sum float64
	for i, v := range x {
		out[i] = float64(v)/temp - maxv
		sum += math.Exp(out[i])
	}
	logZ := math.Log(sum)
	for i := range out {
		out[i] -= logZ
	}
}

// softTarget computes the temperature-scaled distillation loss
// KL(logSoftmax(student/T) || softmax(teacher/T)), batch-mean over the
// selected rows, multiplied by T^2 to restore gradient scale.
func softTarget(student, teacher [][]float32, temp float64) (float64, error) {
	if len(student) != len(teacher) {
		return 0, ErrShapeParity
	}
	if len(student) == 0 {
		return 0, errors.New("distill: no positions selected for soft-target loss")
	}
	width := len(student[0])
	sLog := make([]float64, width)
	tLog := make([]float64, width)
	var total float64
	for r := range student {
		if len(student[r]) != width || len(teacher[r]) != width {
			return 0, ErrShapeParity
		}
		logSoftmax(student[r], temp, sLog)
		logSoftmax(teacher[r], temp, tLog)
		for j := 0; j < width; j++ {
			q := math.Exp(tLog[j])
			if q > 0 {
				total += q * (tLog[j] - sLog[j])
			}
		}
	}
	return total / float64(len(student)) * temp * temp, nil
}

// crossEntropy computes mean negative log-likelihood of labels under the
// logits, skipping IgnoreIndex positions.
func crossEntropy(logits *tensor.Tensor3, labels [][]int) (float64, error) {
	if len(labels) != logits.B {
		return 0, fmt.Errorf("distill: labels batch %d, want %d", len(labels), logits.B)
	}
	logp := make([]float64, logits.D)
	var total float64
	count := 0
	for b, row := range labels {
		if len(row) != logits.S {
			return 0, fmt.Errorf("distill: labels row %d has length %d, want %d", b, len(row), logits.S)
		}
		for s, label := range row {
			if label == IgnoreIndex {
				continue
			}
			if label < 0 || label >= logits.D {
				return 0, fmt.Errorf("distill: label %d out of range at (%d,%d)", label, b, s)
			}
			logSoftmax(logits.Row(b, s), 1, logp)
			total -= logp[label]
			count++
		}
	}
	if count == 0 {
		return 0, errors.New("distill: no label positions to score")
	}
	return total / float64(count), nil
}

// shiftedCrossEntropy scores position s+1's label against position s's
// logits, the causal-LM convention.
func shiftedCrossEntropy(logits *tensor.Tensor3, labels [][]int) (float64, error) {
	if logits.S < 2 {
		return 0, errors.New("distill: causal-LM loss needs sequence length >= 2")
	}
	if len(labels) != logits.B {
		return 0, fmt.Errorf("distill: labels batch %d, want %d", len(labels), logits.B)
	}
	logp := make([]float64, logits.D)
	var total float64
	count := 0
	for b, row := range labels {
		if len(row) != logits.S {
			return 0, fmt.Errorf("distill: labels row %d has length %d, want %d", b, len(row), logits.S)
		}
		for s := 0; s < logits.S-1; s++ {
			label := row[s+1]
			if label == IgnoreIndex {
				continue
			}
			if label < 0 || label >= logits.D {
				return 0, fmt.Errorf("distill: label %d out of range at (%d,%d)", label, b, s+1)
			}
			logSoftmax(logits.Row(b, s), 1, logp)
			total -= logp[label]
			count++
		}
	}
	if count == 0 {
		return 0, errors.New("distill: no label positions to score")
	}
	return total / float64(count), nil
}

// meanSquares computes the elementwise regression loss: sum of squared
// differences over the selected rows, normalized by the row count. This
// reproduces batch-mean semantics over the selection.
func meanSquares(student, teacher [][]float32) (float64, error) {
	if len(student) != len(teacher) {
		return 0, ErrShapeParity
	}
	if len(student) == 0 {
		return 0, errors.New("distill: no positions selected for elementwise loss")
	}
	var total float64
	for r := range student {
		if len(student[r]) != len(teacher[r]) {
			return 0, ErrShapeParity
		}
		for j := range student[r] {
			d := float64(student[r][j]) - float64(teacher[r][j])
			total += d * d
		}
	}
	return total / float64(len(student)), nil
}

const cosineEps = 1e-8

// cosineAlignment penalizes non-alignment between paired rows: the mean of
// 1 - cos(student_row, teacher_row), i.e. cosine embedding loss with target
// similarity 1 for every pair.
func cosineAlignment(student, teacher [][]float32) (float64, error) {
	if len(student) != len(teacher) {
		return 0, ErrShapeParity
	}
	if len(student) == 0 {
		return 0, errors.New("distill: no positions selected for cosine loss")
	}
	var total float64
	for r := range student {
		if len(student[r]) != len(teacher[r]) {
			return 0, ErrShapeParity
		}
		var dot, ss, tt float64
		for j := range student[r] {
			sv := float64(student[r][j])
			tv := float64(teacher[r][j])
			dot += sv * tv
			ss += sv * sv
			tt += tv * tv
		}
		denom := math.Sqrt(ss) * math.Sqrt(tt)
		if denom < cosineEps {
			denom = cosineEps
		}
		total += 1 - dot/denom
	}
	return total / float64(len(student)), nil
}

// selectRows gathers views of the rows of t where mask is true, in
// row-major order. This is the masked-select-then-reshape convention: the
// mask is broadcast across the feature axis, so whole rows are kept.
func selectRows(t *tensor.Tensor3, mask [][]bool) ([][]float32, error) {
	if len(mask) != t.B {
		return nil, fmt.Errorf("distill: selection mask batch %d, want %d", len(mask), t.B)
	}
	out := make([][]float32, 0)
	for b, row := range mask {
		if len(row) != t.S {
			return nil, fmt.Errorf("distill: selection mask row %d has length %d, want %d", b, len(row), t.S)
		}
		for s, keep := range row {
			if keep {
				out = append(out, t.Row(b, s))
			}
		}
	}
	return out, nil
}

// labelMask selects positions with a real label (> -1), the
// restrict-to-mask convention.
func labelMask(labels [][]int) [][]bool {
	mask := make([][]bool, len(labels))
	for b, row := range labels {
		mask[b] = make([]bool, len(row))
		for s, label := range row {
			mask[b][s] = label > -1
		}
	}
	return mask
}

// attentionSelection converts a (batch, seq) attention mask into a
// position-selection mask.
func attentionSelection(attn [][]float32) [][]bool {
	mask := make([][]bool, len(attn))
	for b, row := range attn {
		mask[b] = make([]bool, len(row))
		for s, v := range row {
			mask[b][s] = v != 0
		}
	}
	return mask
}
