// Command batchgen runs the generation pipeline offline: one table file in,
// one zip archive out.
//
// Usage:
//
//	batchgen -in planilha.xlsx -out documentos.zip [-config configs/generator.yaml] [-policy best_effort] [-workers 4]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/pipeline"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
)

func main() {
	in := flag.String("in", "", "input table (.csv, .xls, .xlsx)")
	out := flag.String("out", "", "output archive path (default: archive name from config)")
	configPath := flag.String("config", "", "path to config file")
	policy := flag.String("policy", "", "failure policy override: fail_fast or best_effort")
	workers := flag.Int("workers", 0, "render workers override")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "error: -in is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *policy != "" {
		cfg.Generation.FailurePolicy = *policy
	}
	if *workers > 0 {
		cfg.Generation.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.Setup(cfg.Logging.Level, "text")

	if *out == "" {
		*out = cfg.Generation.ArchiveName
	}
	if err := run(context.Background(), cfg.Generation, *in, *out); err != nil {
		slog.Error("batch failed", "input", *in, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.GenerationConfig, in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	batch, err := pipeline.New(cfg, nil, nil).Run(ctx, filepath.Base(in), data)
	if err != nil {
		return err
	}

	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if _, err := batch.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("moving archive into place: %w", err)
	}

	fmt.Printf("batch %s: %d documents written to %s (%d bytes)\n", batch.ID, len(batch.Entries), out, batch.Size())
	for _, f := range batch.Failures {
		fmt.Printf("  skipped %v\n", f)
	}
	return nil
}
