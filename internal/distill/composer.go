// Package distill assembles the training loss for a student model from its
// own outputs and externally supplied teacher signals. The composer never
// runs a model; it is a pure function from tensors to named scalar loss
// terms.
package distill

import (
	"errors"
	"fmt"

	"github.com/distillab/distilgo/internal/model"
	"github.com/distillab/distilgo/internal/tensor"
)

// Config carries the distillation hyperparameters, validated once at
// composer construction instead of ad hoc during the computation.
type Config struct {
	// Temperature softens both distributions before the KL term. Must be
	// positive.
	Temperature float64

	// Per-term weights. A zero weight disables its term entirely; the term
	// is skipped, not reported as zero.
	AlphaMLM float64
	AlphaCLM float64
	AlphaMSE float64
	AlphaCos float64

	// RestrictCEToMask selects soft-target positions by "has an LM label"
	// instead of by attention mask.
	RestrictCEToMask bool
}

// Composer computes distillation losses under a fixed Config.
type Composer struct {
	cfg Config
}

// NewComposer validates the hyperparameters and returns a composer.
func NewComposer(cfg Config) (*Composer, error) {
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("distill: temperature must be positive, got %v", cfg.Temperature)
	}
	for _, a := range []struct {
		name  string
		value float64
	}{
		{"alpha_mlm", cfg.AlphaMLM},
		{"alpha_clm", cfg.AlphaCLM},
		{"alpha_mse", cfg.AlphaMSE},
		{"alpha_cos", cfg.AlphaCos},
	} {
		if a.value < 0 {
			return nil, fmt.Errorf("distill: %s must not be negative, got %v", a.name, a.value)
		}
	}
	return &Composer{cfg: cfg}, nil
}

// Signals are the optional external inputs to one loss composition. Absent
// fields skip their loss terms.
type Signals struct {
	// Labels are gold masked-LM labels; IgnoreIndex marks unscored
	// positions.
	Labels [][]int

	// LMLabels are the language-modeling labels for the weighted LM terms
	// and for restrict-to-mask selection.
	LMLabels [][]int

	// AttentionMask is (batch, seq); nil means all positions valid.
	AttentionMask [][]float32

	// Teacher outputs for the regular distillation terms. TeacherHidden is
	// ordered like the student's hidden-state list; only the final entry
	// participates in the cosine term.
	TeacherLogits *tensor.Tensor3
	TeacherHidden []tensor.Tensor3

	// Causal-mode inputs: teacher outputs recomputed after interchange.
	// Their presence switches the composer to causal mode.
	CausalTeacherLogits *tensor.Tensor3
	CausalTeacherHidden []tensor.Tensor3

	// The student's pre-interchange outputs. Causal mode requires them:
	// composing causal losses only makes sense against a completed regular
	// pass.
	StudentLogits *tensor.Tensor3
	StudentHidden []tensor.Tensor3
}

// LossSet holds the computed loss terms. A nil field means the term was not
// requested or not computable from the supplied signals, never that it was
// computed as zero.
type LossSet struct {
	MLM              *float64 // gold-label masked-LM cross-entropy
	SoftTarget       *float64 // temperature-scaled KL to teacher logits
	LMMasked         *float64 // masked-LM cross-entropy on LM labels
	LMCausal         *float64 // shifted causal-LM cross-entropy on LM labels
	MSE              *float64 // elementwise regression on selected logits
	Cosine           *float64 // final-layer hidden-state alignment
	CausalSoftTarget *float64
	CausalCosine     *float64
}

// Terms returns the computed losses by name, for logging.
func (l *LossSet) Terms() map[string]float64 {
	out := make(map[string]float64)
	put := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	put("loss_mlm", l.MLM)
	put("loss_ce", l.SoftTarget)
	put("loss_lm_masked", l.LMMasked)
	put("loss_lm_causal", l.LMCausal)
	put("loss_mse", l.MSE)
	put("loss_cos", l.Cosine)
	put("causal_loss_ce", l.CausalSoftTarget)
	put("causal_loss_cos", l.CausalCosine)
	return out
}

func ref(v float64) *float64 { return &v }

// selection picks the soft-target position mask per the restrict flag.
func (c *Composer) selection(sig *Signals, b, s int) ([][]bool, error) {
	if c.cfg.RestrictCEToMask {
		if sig.LMLabels == nil {
			return nil, errors.New("distill: restrict_ce_to_mask requires lm labels")
		}
		return labelMask(sig.LMLabels), nil
	}
	if sig.AttentionMask != nil {
		return attentionSelection(sig.AttentionMask), nil
	}
	mask := make([][]bool, b)
	for i := range mask {
		mask[i] = make([]bool, s)
		for j := range mask[i] {
			mask[i][j] = true
		}
	}
	return mask, nil
}

// lastHidden returns the final-layer hidden state of an output, preferring
// the retained per-layer list when present.
func lastHidden(out *model.LMOutput) *tensor.Tensor3 {
	if len(out.HiddenStates) > 0 {
		return &out.HiddenStates[len(out.HiddenStates)-1]
	}
	return &out.LastHidden
}

// Compose builds the loss set for one student forward pass. Causal mode is
// selected by the presence of causal teacher logits; otherwise the regular
// distillation terms are computed.
func (c *Composer) Compose(out *model.LMOutput, sig *Signals) (*LossSet, error) {
	losses := &LossSet{}

	if sig.Labels != nil {
		v, err := crossEntropy(&out.Logits, sig.Labels)
		if err != nil {
			return nil, err
		}
		losses.MLM = ref(v)
	}

	if sig.CausalTeacherLogits == nil {
		if sig.TeacherLogits == nil {
			return losses, nil
		}
		if err := c.composeRegular(out, sig, losses); err != nil {
			return nil, err
		}
		return losses, nil
	}

	if err := c.composeCausal(out, sig, losses); err != nil {
		return nil, err
	}
	return losses, nil
}

func (c *Composer) composeRegular(out *model.LMOutput, sig *Signals, losses *LossSet) error {
	if !out.Logits.SameShape(sig.TeacherLogits) {
		return fmt.Errorf("%w: student logits (%d,%d,%d) vs teacher (%d,%d,%d)", ErrShapeParity,
			out.Logits.B, out.Logits.S, out.Logits.D,
			sig.TeacherLogits.B, sig.TeacherLogits.S, sig.TeacherLogits.D)
	}

	sel, err := c.selection(sig, out.Logits.B, out.Logits.S)
	if err != nil {
		return err
	}
	sRows, err := selectRows(&out.Logits, sel)
	if err != nil {
		return err
	}
	tRows, err := selectRows(sig.TeacherLogits, sel)
	if err != nil {
		return err
	}

	v, err := softTarget(sRows, tRows, c.cfg.Temperature)
	if err != nil {
		return err
	}
	losses.SoftTarget = ref(v)

	if c.cfg.AlphaMLM > 0 {
		if sig.LMLabels == nil {
			return errors.New("distill: alpha_mlm requires lm labels")
		}
		v, err := crossEntropy(&out.Logits, sig.LMLabels)
		if err != nil {
			return err
		}
		losses.LMMasked = ref(v)
	}
	if c.cfg.AlphaCLM > 0 {
		if sig.LMLabels == nil {
			return errors.New("distill: alpha_clm requires lm labels")
		}
		v, err := shiftedCrossEntropy(&out.Logits, sig.LMLabels)
		if err != nil {
			return err
		}
		losses.LMCausal = ref(v)
	}
	if c.cfg.AlphaMSE > 0 {
		v, err := meanSquares(sRows, tRows)
		if err != nil {
			return err
		}
		losses.MSE = ref(v)
	}
	if c.cfg.AlphaCos > 0 {
		if len(sig.TeacherHidden) == 0 {
			return errors.New("distill: alpha_cos requires teacher hidden states")
		}
		v, err := c.hiddenCosine(lastHidden(out), &sig.TeacherHidden[len(sig.TeacherHidden)-1], sig.AttentionMask)
		if err != nil {
			return err
		}
		losses.Cosine = ref(v)
	}
	return nil
}

func (c *Composer) composeCausal(out *model.LMOutput, sig *Signals, losses *LossSet) error {
	// Causal losses supplement a completed regular pass; its tensors must
	// all be present even though only the causal pair is scored here.
	switch {
	case sig.TeacherLogits == nil:
		return errors.New("distill: causal mode requires teacher logits")
	case len(sig.TeacherHidden) == 0:
		return errors.New("distill: causal mode requires teacher hidden states")
	case sig.StudentLogits == nil:
		return errors.New("distill: causal mode requires the student's regular logits")
	case len(sig.StudentHidden) == 0:
		return errors.New("distill: causal mode requires the student's regular hidden states")
	case len(sig.CausalTeacherHidden) == 0:
		return errors.New("distill: causal mode requires causal teacher hidden states")
	}

	if !out.Logits.SameShape(sig.CausalTeacherLogits) {
		return fmt.Errorf("%w: causal student logits (%d,%d,%d) vs teacher (%d,%d,%d)", ErrShapeParity,
			out.Logits.B, out.Logits.S, out.Logits.D,
			sig.CausalTeacherLogits.B, sig.CausalTeacherLogits.S, sig.CausalTeacherLogits.D)
	}

	sel, err := c.selection(sig, out.Logits.B, out.Logits.S)
	if err != nil {
		return err
	}
	sRows, err := selectRows(&out.Logits, sel)
	if err != nil {
		return err
	}
	tRows, err := selectRows(sig.CausalTeacherLogits, sel)
	if err != nil {
		return err
	}
	v, err := softTarget(sRows, tRows, c.cfg.Temperature)
	if err != nil {
		return err
	}
	losses.CausalSoftTarget = ref(v)

	v, err = c.hiddenCosine(lastHidden(out), &sig.CausalTeacherHidden[len(sig.CausalTeacherHidden)-1], sig.AttentionMask)
	if err != nil {
		return err
	}
	losses.CausalCosine = ref(v)
	return nil
}

// hiddenCosine computes the cosine-alignment term between final-layer
// hidden states at attention-mask positions.
func (c *Composer) hiddenCosine(student, teacher *tensor.Tensor3, attn [][]float32) (float64, error) {
	if !student.SameShape(teacher) {
		return 0, fmt.Errorf("%w: student hidden (%d,%d,%d) vs teacher (%d,%d,%d)", ErrShapeParity,
			student.B, student.S, student.D, teacher.B, teacher.S, teacher.D)
	}
	var sel [][]bool
	if attn != nil {
		sel = attentionSelection(attn)
	} else {
		sel = make([][]bool, student.B)
		for i := range sel {
			sel[i] = make([]bool, student.S)
			for j := range sel[i] {
				sel[i][j] = true
			}
		}
	}
	sRows, err := selectRows(student, sel)
	if err != nil {
		return 0, err
	}
	tRows, err := selectRows(teacher, sel)
	if err != nil {
		return 0, err
	}
	return cosineAlignment(sRows, tRows)
}
