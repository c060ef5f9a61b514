package main

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/distillab/distilgo/internal/model"
)

func inspectCmd() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "inspect",
		Usage: "Validate a config.json and print the resolved architecture",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config.json",
				Destination: &configPath,
				Required:    true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx

			cfg, err := model.LoadConfig(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			data, err := json.MarshalIndent(&cfg, "", "  ")
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode config: %v", err), 1)
			}
			fmt.Println(string(data))

			fmt.Println()
			fmt.Printf("head dim:        %d\n", cfg.HeadDim())
			fmt.Printf("parameters:      ~%s\n", humanCount(paramCount(&cfg)))
			return nil
		},
	}
}

// paramCount estimates the learned parameter count of the encoder plus the
// masked-LM head for a configuration.
func paramCount(cfg *model.Config) int64 {
	h := int64(cfg.HiddenSize)
	v := int64(cfg.VocabSize)
	p := int64(cfg.MaxPositionEmbeddings)
	ff := int64(cfg.HiddenDim)

	embeddings := v*h + p*h + 2*h
	perLayer := 4*(h*h+h) + // q, k, v, out
		(h*ff + ff) + (ff*h + h) + // ffn
		4*h // two layer norms
	head := (h*h + h) + 2*h + (h*v + v)
	return embeddings + int64(cfg.NumHiddenLayers)*perLayer + head
}

func humanCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}
