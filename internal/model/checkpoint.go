package model

import (
	"fmt"

	"github.com/distillab/distilgo/internal/safetensors"
	"github.com/distillab/distilgo/internal/tensor"
)

// Parameter names follow the HuggingFace distilbert checkpoint layout
// so published weights can be loaded directly.
type namedMat struct {
	name string
	mat  *tensor.Mat
}

type namedVec struct {
	name string
	vec  []float32
}

func (m *MaskedLM) params() ([]namedMat, []namedVec) {
	mats, vecs := m.Base.params()
	mats = append(mats,
		namedMat{"vocab_transform.weight", &m.Transform.W},
		namedMat{"vocab_projector.weight", &m.Projector.W},
	)
	vecs = append(vecs,
		namedVec{"vocab_transform.bias", m.Transform.B},
		namedVec{"vocab_layer_norm.weight", m.Norm.Gamma},
		namedVec{"vocab_layer_norm.bias", m.Norm.Beta},
		namedVec{"vocab_projector.bias", m.Projector.B},
	)
	return mats, vecs
}

func (m *Model) params() ([]namedMat, []namedVec) {
	mats := []namedMat{
		{"embeddings.word_embeddings.weight", &m.Emb.Word},
		{"embeddings.position_embeddings.weight", &m.Emb.Position},
	}
	vecs := []namedVec{
		{"embeddings.LayerNorm.weight", m.Emb.Norm.Gamma},
		{"embeddings.LayerNorm.bias", m.Emb.Norm.Beta},
	}
	for i, blk := range m.Layers {
		prefix := fmt.Sprintf("transformer.layer.%d.", i)
		mats = append(mats,
			namedMat{prefix + "attention.q_lin.weight", &blk.Attn.Q.W},
			namedMat{prefix + "attention.k_lin.weight", &blk.Attn.K.W},
			namedMat{prefix + "attention.v_lin.weight", &blk.Attn.V.W},
			namedMat{prefix + "attention.out_lin.weight", &blk.Attn.Out.W},
			namedMat{prefix + "ffn.lin1.weight", &blk.FFN.Lin1.W},
			namedMat{prefix + "ffn.lin2.weight", &blk.FFN.Lin2.W},
		)
		vecs = append(vecs,
			namedVec{prefix + "attention.q_lin.bias", blk.Attn.Q.B},
			namedVec{prefix + "attention.k_lin.bias", blk.Attn.K.B},
			namedVec{prefix + "attention.v_lin.bias", blk.Attn.V.B},
			namedVec{prefix + "attention.out_lin.bias", blk.Attn.Out.B},
			namedVec{prefix + "sa_layer_norm.weight", blk.SANorm.Gamma},
			namedVec{prefix + "sa_layer_norm.bias", blk.SANorm.Beta},
			namedVec{prefix + "ffn.lin1.bias", blk.FFN.Lin1.B},
			namedVec{prefix + "ffn.lin2.bias", blk.FFN.Lin2.B},
			namedVec{prefix + "output_layer_norm.weight", blk.OutNorm.Gamma},
			namedVec{prefix + "output_layer_norm.bias", blk.OutNorm.Beta},
		)
	}
	return mats, vecs
}

// Save writes every learned parameter to a safetensors checkpoint.
func (m *MaskedLM) Save(path string) error {
	mats, vecs := m.params()
	out := make(map[string]safetensors.Tensor, len(mats)+len(vecs))
	for _, p := range mats {
		out[p.name] = safetensors.Tensor{
			Shape: []int{p.mat.R, p.mat.C},
			Data:  p.mat.Data,
		}
	}
	for _, p := range vecs {
		out[p.name] = safetensors.Tensor{
			Shape: []int{len(p.vec)},
			Data:  p.vec,
		}
	}
	return safetensors.Write(path, out)
}

// Load replaces every learned parameter with the checkpoint's contents.
// Shapes must match the model's current geometry exactly.
func (m *MaskedLM) Load(path string) error {
	f, err := safetensors.Open(path)
	if err != nil {
		return fmt.Errorf("model: open checkpoint: %w", err)
	}

	mats, vecs := m.params()
	for _, p := range mats {
		data, info, err := f.ReadTensorF32(p.name)
		if err != nil {
			return fmt.Errorf("model: checkpoint: %w", err)
		}
		if len(info.Shape) != 2 || info.Shape[0] != p.mat.R || info.Shape[1] != p.mat.C {
			return fmt.Errorf("model: checkpoint tensor %s has shape %v, want [%d %d]",
				p.name, info.Shape, p.mat.R, p.mat.C)
		}
		copy(p.mat.Data, data)
	}
	for _, p := range vecs {
		data, info, err := f.ReadTensorF32(p.name)
		if err != nil {
			return fmt.Errorf("model: checkpoint: %w", err)
		}
		if len(info.Shape) != 1 || info.Shape[0] != len(p.vec) {
			return fmt.Errorf("model: checkpoint tensor %s has shape %v, want [%d]",
				p.name, info.Shape, len(p.vec))
		}
		copy(p.vec, data)
	}
	return nil
}
