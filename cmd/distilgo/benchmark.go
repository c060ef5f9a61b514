package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/distillab/distilgo/internal/model"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		batch      int64
		seqLen     int64
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       5,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "batch size per forward pass",
			Value:       4,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "seq",
			Aliases:     []string{"s"},
			Usage:       "sequence length per forward pass",
			Value:       64,
			Destination: &seqLen,
		},
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Time encoder forward passes for a configuration",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg := LoadFileConfig()
			applyLoggingConfig(c, fileCfg)
			log := buildLogger()

			cfg, err := loadStudentConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}

			log.Info("building model", "layers", cfg.NumHiddenLayers, "hidden", cfg.HiddenSize)
			buildStart := time.Now()
			m, err := model.NewMaskedLM(cfg, seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build model: %v", err), 1)
			}
			buildDuration := time.Since(buildStart)

			fmt.Println("=== distilgo Benchmark ===")
			fmt.Printf("Vocab:      %d\n", cfg.VocabSize)
			fmt.Printf("Hidden:     %d\n", cfg.HiddenSize)
			fmt.Printf("Layers:     %d\n", cfg.NumHiddenLayers)
			fmt.Printf("Heads:      %d\n", cfg.NumAttentionHeads)
			fmt.Printf("Batch:      %d x %d tokens\n", batch, seqLen)
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Build:      %s\n", buildDuration.Round(time.Millisecond))
			fmt.Println()

			rng := rand.New(rand.NewSource(seed))
			ids := make([][]int, batch)
			for b := range ids {
				ids[b] = make([]int, seqLen)
				for s := range ids[b] {
					ids[b][s] = rng.Intn(cfg.VocabSize)
				}
			}
			req := &model.Request{InputIDs: ids}

			for i := range int(warmupRuns) {
				log.Debug("warmup run", "run", i+1)
				if _, err := m.Forward(req); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			tokens := batch * seqLen
			durations := make([]time.Duration, 0, benchRuns)
			for i := range int(benchRuns) {
				start := time.Now()
				if _, err := m.Forward(req); err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				durations = append(durations, time.Since(start))
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %12s\n", "Run", "Duration", "Tokens/s")
			var sum time.Duration
			for i, d := range durations {
				fmt.Printf("%-6d %12s %12.1f\n", i+1, d.Round(time.Microsecond), float64(tokens)/d.Seconds())
				sum += d
			}
			avg := sum / time.Duration(len(durations))
			fmt.Printf("\n%-6s %12s %12.1f\n", "Avg", avg.Round(time.Microsecond), float64(tokens)/avg.Seconds())

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			return nil
		},
	}
}
