// Command corpus-pipeline runs the filtering/dedup step chains over
// previously normalized record files, one executor per dataset.
//
// Usage:
//
//	corpus-pipeline pipeline.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/skovdata/corpuskit/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: corpus-pipeline <config.yaml>\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, os.Args[1]); err != nil {
		logger.Error("corpus-pipeline: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var merged pipeline.Stats
	for _, ds := range cfg.Datasets {
		exec := buildExecutor(cfg, ds)
		logger.Info("running dataset", "name", ds.Name, "input", ds.InputPath)
		stats, err := exec.Run(ctx)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		logger.Info("dataset complete", "name", ds.Name,
			"steps", stats.Steps, "records", stats.Records)
		merged.Merge(stats)
	}

	fmt.Fprintf(os.Stderr, "done: %d datasets, %d steps, %d records\n",
		len(cfg.Datasets), merged.Steps, merged.Records)
	return nil
}

// buildExecutor chains reader, enabled dedup stages, and writer for one
// dataset. The sentence-dedup stage, when enabled, must complete before the
// minhash stage reads its output, so the minhash executor depends on it.
func buildExecutor(cfg *pipeline.Config, ds pipeline.DatasetConfig) *pipeline.Executor {
	base := &pipeline.Executor{
		Name:    ds.Name,
		Workers: cfg.Executor.Workers,
		Steps: []pipeline.Step{
			&pipeline.JSONLReader{Path: ds.InputPath},
			&pipeline.JSONLWriter{Path: ds.OutputPath},
		},
	}
	if !cfg.SentenceDedup.Enabled && !cfg.MinHash.Enabled {
		return base
	}

	// With dedup stages enabled the base run lands in the stage work dir,
	// and each stage chains off the previous one's output.
	prev := base
	input := ds.OutputPath
	if cfg.SentenceDedup.Enabled {
		stageOut := filepath.Join(cfg.SentenceDedup.WorkPath, ds.Name+".jsonl.gz")
		prev = &pipeline.Executor{
			Name:    ds.Name + "/sentence_dedup",
			Workers: cfg.Executor.Workers,
			Depends: prev,
			Steps: []pipeline.Step{
				&pipeline.JSONLReader{Path: input},
				&pipeline.JSONLWriter{Path: stageOut},
			},
		}
		input = stageOut
	}
	if cfg.MinHash.Enabled {
		stageOut := filepath.Join(cfg.MinHash.WorkPath, ds.Name+".jsonl.gz")
		prev = &pipeline.Executor{
			Name:    ds.Name + "/minhash",
			Workers: cfg.Executor.Workers,
			Depends: prev,
			Steps: []pipeline.Step{
				&pipeline.JSONLReader{Path: input},
				&pipeline.JSONLWriter{Path: stageOut},
			},
		}
	}
	return prev
}
