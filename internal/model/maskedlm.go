package model

import (
	"github.com/distillab/distilgo/internal/tensor"
)

// MaskedLM is the encoder with a masked-language-modeling head on top:
// transform → gelu → layer norm → projection to vocabulary logits.
type MaskedLM struct {
	Base *Model

	Transform Linear
	Norm      LayerNorm
	Projector Linear
}

// NewMaskedLM builds the encoder and head with reproducible seeded
// initialization.
func NewMaskedLM(cfg Config, seed int64) (*MaskedLM, error) {
	base, err := New(cfg, seed)
	if err != nil {
		return nil, err
	}
	m := &MaskedLM{
		Base:      base,
		Transform: NewLinear(cfg.HiddenSize, cfg.HiddenSize),
		Norm:      NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Projector: NewLinear(cfg.HiddenSize, cfg.VocabSize),
	}
	m.Transform.init(base.seeds.next(), cfg.InitializerRange)
	m.Projector.init(base.seeds.next(), cfg.InitializerRange)
	return m, nil
}

// LMOutput is one student forward pass: vocabulary logits plus whatever
// encoder outputs were requested.
type LMOutput struct {
	Logits     tensor.Tensor3
	LastHidden tensor.Tensor3

	HiddenStates []tensor.Tensor3
	Attentions   []tensor.Tensor4
}

// Project maps final hidden states to vocabulary logits. It is a pure
// function of the hidden states.
func (m *MaskedLM) Project(hidden *tensor.Tensor3) tensor.Tensor3 {
	transformed := m.Transform.Apply(hidden)
	for b := 0; b < transformed.B; b++ {
		for s := 0; s < transformed.S; s++ {
			row := transformed.Row(b, s)
			tensor.GELU(row)
			m.Norm.Forward(row)
		}
	}
	return m.Projector.Apply(&transformed)
}

// Forward runs the encoder then the prediction head.
func (m *MaskedLM) Forward(req *Request) (*LMOutput, error) {
	enc, err := m.Base.Forward(req)
	if err != nil {
		return nil, err
	}
	return &LMOutput{
		Logits:       m.Project(&enc.LastHidden),
		LastHidden:   enc.LastHidden,
		HiddenStates: enc.HiddenStates,
		Attentions:   enc.Attentions,
	}, nil
}
