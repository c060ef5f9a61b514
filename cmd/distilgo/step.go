package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/distillab/distilgo/internal/distill"
	"github.com/distillab/distilgo/internal/interchange"
	"github.com/distillab/distilgo/internal/logger"
	"github.com/distillab/distilgo/internal/model"
	"github.com/distillab/distilgo/internal/tensor"
)

func stepCmd() *cli.Command {
	var (
		batch    int64
		seqLen   int64
		temp     float64
		alphaCE  float64
		alphaMLM float64
		alphaCLM float64
		alphaMSE float64
		alphaCos float64
		restrict bool
		causal   bool
		loadPath string
		savePath string
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "batch size for the synthetic step",
			Value:       4,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "seq",
			Aliases:     []string{"s"},
			Usage:       "sequence length for the synthetic step",
			Value:       16,
			Destination: &seqLen,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Aliases:     []string{"temp"},
			Usage:       "distillation temperature",
			Value:       2.0,
			Destination: &temp,
		},
		&cli.FloatFlag{
			Name:        "alpha-ce",
			Usage:       "weight of the soft-target term in the reported total",
			Value:       5.0,
			Destination: &alphaCE,
		},
		&cli.FloatFlag{
			Name:        "alpha-mlm",
			Usage:       "weight of the masked-LM term",
			Value:       2.0,
			Destination: &alphaMLM,
		},
		&cli.FloatFlag{
			Name:        "alpha-clm",
			Usage:       "weight of the causal-LM term",
			Value:       0.0,
			Destination: &alphaCLM,
		},
		&cli.FloatFlag{
			Name:        "alpha-mse",
			Usage:       "weight of the elementwise logit term",
			Value:       0.0,
			Destination: &alphaMSE,
		},
		&cli.FloatFlag{
			Name:        "alpha-cos",
			Usage:       "weight of the hidden-state cosine term",
			Value:       1.0,
			Destination: &alphaCos,
		},
		&cli.BoolFlag{
			Name:        "restrict-ce",
			Usage:       "select soft-target positions by LM labels instead of attention mask",
			Destination: &restrict,
		},
		&cli.BoolFlag{
			Name:        "causal",
			Usage:       "also run an interchange-intervention pass and score the causal terms",
			Destination: &causal,
		},
		&cli.StringFlag{
			Name:        "load",
			Usage:       "load student weights from a safetensors checkpoint",
			Destination: &loadPath,
		},
		&cli.StringFlag{
			Name:        "save",
			Usage:       "write student weights to a safetensors checkpoint after the step",
			Destination: &savePath,
		},
	)

	return &cli.Command{
		Name:  "step",
		Usage: "Run one synthetic distillation step and report the loss terms",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg := LoadFileConfig()
			applyLoggingConfig(c, fileCfg)
			applyStepConfig(c, fileCfg, &temp, &alphaCE, &alphaMLM, &alphaCLM, &alphaMSE, &alphaCos, &restrict)

			log := buildLogger().With("run_id", uuid.NewString())

			studentCfg, err := loadStudentConfig()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
			}
			// The teacher shares the student's vocabulary and width but runs
			// twice the depth, the usual distillation setup.
			teacherCfg := studentCfg
			teacherCfg.NumHiddenLayers = studentCfg.NumHiddenLayers * 2

			log.Info("building models",
				"vocab", studentCfg.VocabSize,
				"hidden", studentCfg.HiddenSize,
				"student_layers", studentCfg.NumHiddenLayers,
				"teacher_layers", teacherCfg.NumHiddenLayers,
				"seed", seed)

			buildStart := time.Now()
			student, err := model.NewMaskedLM(studentCfg, seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build student: %v", err), 1)
			}
			teacher, err := model.NewMaskedLM(teacherCfg, seed+1)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: build teacher: %v", err), 1)
			}
			log.Debug("models ready", "elapsed", time.Since(buildStart).Round(time.Millisecond))

			if loadPath != "" {
				if err := student.Load(loadPath); err != nil {
					return cli.Exit(fmt.Sprintf("error: load checkpoint: %v", err), 1)
				}
				log.Info("loaded student checkpoint", "path", loadPath)
			}

			composer, err := distill.NewComposer(distill.Config{
				Temperature:      temp,
				AlphaMLM:         alphaMLM,
				AlphaCLM:         alphaCLM,
				AlphaMSE:         alphaMSE,
				AlphaCos:         alphaCos,
				RestrictCEToMask: restrict,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			rng := rand.New(rand.NewSource(seed))
			ids, attn, labels := syntheticBatch(rng, int(batch), int(seqLen), &studentCfg)

			req := &model.Request{
				InputIDs:           ids,
				AttentionMask:      attn,
				OutputHiddenStates: true,
			}

			stepStart := time.Now()
			teacherOut, err := teacher.Forward(req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: teacher forward: %v", err), 1)
			}
			studentOut, err := student.Forward(req)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: student forward: %v", err), 1)
			}

			sig := &distill.Signals{
				Labels:        labels,
				LMLabels:      labels,
				AttentionMask: attn,
				TeacherLogits: &teacherOut.Logits,
				TeacherHidden: []tensor.Tensor3{teacherOut.LastHidden},
			}
			losses, err := composer.Compose(studentOut, sig)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: compose losses: %v", err), 1)
			}
			total := weightedTotal(losses, alphaCE, alphaMLM, alphaCLM, alphaMSE, alphaCos)
			logTerms(log, "regular step", losses, total, time.Since(stepStart))

			if savePath != "" {
				if err := student.Save(savePath); err != nil {
					return cli.Exit(fmt.Sprintf("error: save checkpoint: %v", err), 1)
				}
				log.Info("saved student checkpoint", "path", savePath)
			}

			if !causal {
				return nil
			}
			sig.StudentLogits = &studentOut.Logits
			sig.StudentHidden = []tensor.Tensor3{studentOut.LastHidden}

			causalStart := time.Now()
			causalLosses, err := causalStep(rng, student, teacher, composer, req, sig, &studentCfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: causal step: %v", err), 1)
			}
			causalTotal := weightedTotal(causalLosses, alphaCE, alphaMLM, alphaCLM, alphaMSE, alphaCos)
			logTerms(log, "causal step", causalLosses, causalTotal, time.Since(causalStart))
			return nil
		},
	}
}

func loadStudentConfig() (model.Config, error) {
	if configPathFlag != "" {
		return model.LoadConfig(configPathFlag)
	}
	// A small synthetic architecture so the step finishes quickly.
	cfg := model.DefaultConfig()
	cfg.VocabSize = 512
	cfg.HiddenSize = 64
	cfg.NumHiddenLayers = 3
	cfg.NumAttentionHeads = 4
	cfg.HiddenDim = 256
	cfg.MaxPositionEmbeddings = 64
	return cfg, nil
}

// syntheticBatch builds token ids, an attention mask with trailing padding
// on the last row, and MLM labels covering 15% of the attended positions.
func syntheticBatch(rng *rand.Rand, batch, seq int, cfg *model.Config) ([][]int, [][]float32, [][]int) {
	ids := make([][]int, batch)
	attn := make([][]float32, batch)
	labels := make([][]int, batch)
	for b := range ids {
		ids[b] = make([]int, seq)
		attn[b] = make([]float32, seq)
		labels[b] = make([]int, seq)
		for s := range ids[b] {
			ids[b][s] = rng.Intn(cfg.VocabSize)
			attn[b][s] = 1
			labels[b][s] = distill.IgnoreIndex
			if rng.Float64() < 0.15 {
				labels[b][s] = rng.Intn(cfg.VocabSize)
			}
		}
	}
	if batch > 0 && seq > 2 {
		last := batch - 1
		for s := seq - 2; s < seq; s++ {
			ids[last][s] = cfg.PadTokenID
			attn[last][s] = 0
			labels[last][s] = distill.IgnoreIndex
		}
	}
	// At least one position must carry a label.
	if !hasLabel(labels) {
		labels[0][0] = ids[0][0]
	}
	return ids, attn, labels
}

func hasLabel(labels [][]int) bool {
	for _, row := range labels {
		for _, v := range row {
			if v != distill.IgnoreIndex {
				return true
			}
		}
	}
	return false
}

// causalStep runs the interchange intervention on both models and composes
// the causal loss terms: a donor pass records activations, then the same
// head slice is swapped into a re-run of the original batch.
func causalStep(
	rng *rand.Rand,
	student, teacher *model.MaskedLM,
	composer *distill.Composer,
	req *model.Request,
	regular *distill.Signals,
	cfg *model.Config,
) (*distill.LossSet, error) {
	batch := len(req.InputIDs)
	seq := len(req.InputIDs[0])

	donorIDs, donorAttn, _ := syntheticBatch(rng, batch, seq, cfg)
	donorReq := &model.Request{
		InputIDs:           donorIDs,
		AttentionMask:      donorAttn,
		OutputHiddenStates: true,
	}

	studentDonor, err := student.Forward(donorReq)
	if err != nil {
		return nil, err
	}
	teacherDonor, err := teacher.Forward(donorReq)
	if err != nil {
		return nil, err
	}

	layer := rng.Intn(cfg.NumHiddenLayers)
	head := rng.Intn(cfg.NumAttentionHeads)
	v := interchange.Variable{Layer: layer, Head: head, Start: 0, Len: cfg.HeadDim()}

	mask := make([][]bool, batch)
	for b := range mask {
		mask[b] = make([]bool, seq)
		for s := range mask[b] {
			mask[b][s] = true
		}
	}

	// HiddenStates[layer+1] is the addressed layer's output.
	studentSpec := &interchange.Spec{
		Assignments: []interchange.Assignment{{Var: v, Donor: studentDonor.HiddenStates[layer+1]}},
		Dest:        mask,
		Donor:       mask,
	}
	studentCausal, err := student.Forward(&model.Request{
		InputIDs:           req.InputIDs,
		AttentionMask:      req.AttentionMask,
		OutputHiddenStates: true,
		Interchange:        studentSpec,
	})
	if err != nil {
		return nil, err
	}

	// The teacher is deeper; intervene on the mirrored layer so the swap
	// addresses the same relative depth.
	teacherVar := v
	teacherVar.Layer = layer * 2
	teacherSpec := &interchange.Spec{
		Assignments: []interchange.Assignment{{Var: teacherVar, Donor: teacherDonor.HiddenStates[teacherVar.Layer+1]}},
		Dest:        mask,
		Donor:       mask,
	}
	teacherCausal, err := teacher.Forward(&model.Request{
		InputIDs:           req.InputIDs,
		AttentionMask:      req.AttentionMask,
		OutputHiddenStates: true,
		Interchange:        teacherSpec,
	})
	if err != nil {
		return nil, err
	}

	sig := &distill.Signals{
		LMLabels:            regular.LMLabels,
		AttentionMask:       regular.AttentionMask,
		TeacherLogits:       regular.TeacherLogits,
		TeacherHidden:       regular.TeacherHidden,
		CausalTeacherLogits: &teacherCausal.Logits,
		CausalTeacherHidden: []tensor.Tensor3{teacherCausal.LastHidden},
		StudentLogits:       regular.StudentLogits,
		StudentHidden:       regular.StudentHidden,
	}
	return composer.Compose(studentCausal, sig)
}

// weightedTotal mirrors the training objective: each computed term scaled
// by its weight. The soft-target terms take alpha-ce, the gold-label MLM
// term is a diagnostic and stays out of the total. Terms the composer
// skipped contribute nothing.
func weightedTotal(l *distill.LossSet, alphaCE, alphaMLM, alphaCLM, alphaMSE, alphaCos float64) float64 {
	var total float64
	add := func(w float64, v *float64) {
		if v != nil {
			total += w * *v
		}
	}
	add(alphaCE, l.SoftTarget)
	add(alphaMLM, l.LMMasked)
	add(alphaCLM, l.LMCausal)
	add(alphaMSE, l.MSE)
	add(alphaCos, l.Cosine)
	add(alphaCE, l.CausalSoftTarget)
	add(alphaCos, l.CausalCosine)
	return total
}

func logTerms(log logger.Logger, stage string, losses *distill.LossSet, total float64, elapsed time.Duration) {
	terms := losses.Terms()
	names := make([]string, 0, len(terms))
	for name := range terms {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, 2*len(names)+4)
	args = append(args, "elapsed", elapsed.Round(time.Millisecond))
	for _, name := range names {
		args = append(args, name, fmt.Sprintf("%.6f", terms[name]))
	}
	args = append(args, "loss_total", fmt.Sprintf("%.6f", total))
	log.Info(stage, args...)
}
