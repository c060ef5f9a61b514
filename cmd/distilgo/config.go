package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the distilgo configuration file
// (~/.config/distilgo/config.yaml). All optional fields are pointers so we
// can distinguish "not set" from zero values.
type Config struct {
	// Distillation defaults
	Temperature *float64 `yaml:"temperature"`
	AlphaCE     *float64 `yaml:"alpha_ce"`
	AlphaMLM    *float64 `yaml:"alpha_mlm"`
	AlphaCLM    *float64 `yaml:"alpha_clm"`
	AlphaMSE    *float64 `yaml:"alpha_mse"`
	AlphaCos    *float64 `yaml:"alpha_cos"`
	RestrictCE  *bool    `yaml:"restrict_ce_to_mask"`
	Seed        *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "distilgo", "config.yaml")
}

// applyStepConfig applies config file defaults to step command variables
// when the corresponding CLI flag was not explicitly set.
func applyStepConfig(c *cli.Command, cfg Config,
	temp, alphaCE, alphaMLM, alphaCLM, alphaMSE, alphaCos *float64, restrict *bool,
) {
	if cfg.Temperature != nil && !c.IsSet("temperature") && !c.IsSet("temp") {
		*temp = *cfg.Temperature
	}
	if cfg.AlphaCE != nil && !c.IsSet("alpha-ce") {
		*alphaCE = *cfg.AlphaCE
	}
	if cfg.AlphaMLM != nil && !c.IsSet("alpha-mlm") {
		*alphaMLM = *cfg.AlphaMLM
	}
	if cfg.AlphaCLM != nil && !c.IsSet("alpha-clm") {
		*alphaCLM = *cfg.AlphaCLM
	}
	if cfg.AlphaMSE != nil && !c.IsSet("alpha-mse") {
		*alphaMSE = *cfg.AlphaMSE
	}
	if cfg.AlphaCos != nil && !c.IsSet("alpha-cos") {
		*alphaCos = *cfg.AlphaCos
	}
	if cfg.RestrictCE != nil && !c.IsSet("restrict-ce") {
		*restrict = *cfg.RestrictCE
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// LoadFileConfig reads the config file. Returns a zero Config if the file
// doesn't exist or cannot be parsed.
func LoadFileConfig() Config {
	path := configFilePath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
