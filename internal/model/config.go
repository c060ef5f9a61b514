package model

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// Activation names accepted by the feed-forward sub-layer.
const (
	ActivationGELU = "gelu"
	ActivationReLU = "relu"
)

// Config describes a DistilRoBERTa-style encoder. The JSON tags follow the
// HuggingFace config.json schema so published model configs load directly.
type Config struct {
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	HiddenDim             int     `json:"hidden_dim"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	SinusoidalPosEmbds    bool    `json:"sinusoidal_pos_embds"`
	Activation            string  `json:"activation"`
	PadTokenID            int     `json:"pad_token_id"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
	ChunkSizeFeedForward  int     `json:"chunk_size_feed_forward"`
	InitializerRange      float64 `json:"initializer_range"`
	OutputHiddenStates    bool    `json:"output_hidden_states"`
	OutputAttentions      bool    `json:"output_attentions"`
}

// DefaultConfig returns the distilroberta-base hyperparameters.
func DefaultConfig() Config {
	return Config{
		VocabSize:             50265,
		HiddenSize:            768,
		NumHiddenLayers:       6,
		NumAttentionHeads:     12,
		HiddenDim:             3072,
		MaxPositionEmbeddings: 512,
		Activation:            ActivationGELU,
		PadTokenID:            1,
		LayerNormEps:          1e-12,
		InitializerRange:      0.02,
	}
}

// Validate checks the configuration invariants that are fatal at
// construction time.
func (c *Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("model: vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("model: hidden_size must be positive, got %d", c.HiddenSize)
	}
	if c.NumHiddenLayers <= 0 {
		return fmt.Errorf("model: num_hidden_layers must be positive, got %d", c.NumHiddenLayers)
	}
	if c.NumAttentionHeads <= 0 {
		return fmt.Errorf("model: num_attention_heads must be positive, got %d", c.NumAttentionHeads)
	}
	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("model: hidden_size %d not divisible by num_attention_heads %d",
			c.HiddenSize, c.NumAttentionHeads)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("model: hidden_dim must be positive, got %d", c.HiddenDim)
	}
	if c.MaxPositionEmbeddings <= 0 {
		return fmt.Errorf("model: max_position_embeddings must be positive, got %d", c.MaxPositionEmbeddings)
	}
	if c.Activation != ActivationGELU && c.Activation != ActivationReLU {
		return fmt.Errorf("model: activation %q must be %q or %q", c.Activation, ActivationReLU, ActivationGELU)
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("model: layer_norm_eps must be positive, got %v", c.LayerNormEps)
	}
	if c.ChunkSizeFeedForward < 0 {
		return fmt.Errorf("model: chunk_size_feed_forward must not be negative, got %d", c.ChunkSizeFeedForward)
	}
	return nil
}

// HeadDim returns the per-head width implied by the configuration.
func (c *Config) HeadDim() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// LoadConfig reads and validates a config.json file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("model: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("model: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
