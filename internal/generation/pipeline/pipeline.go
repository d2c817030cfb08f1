// Package pipeline turns one uploaded table into one archive: ingest,
// validate, then embed and render every row. It is shared by the HTTP
// service and the batchgen CLI and keeps no state between runs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/archive"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/embed"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/ingest"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/render"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/validator"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/tracing"
)

// Tracker receives one event per run. *analytics.Collector satisfies it.
type Tracker interface {
	Track(event generation.BatchEvent)
}

// Batch is a finished run.
type Batch struct {
	ID       string
	Filename string
	Rows     int
	Duration time.Duration
	*archive.Result
}

type Pipeline struct {
	ingestor  *ingest.Ingestor
	validator *validator.Validator
	embedder  *embed.Embedder
	archiver  *archive.Archiver
	policy    string
	metrics   *metrics.Metrics
	tracker   Tracker
}

// New wires the stages from cfg. m and tracker may be nil.
func New(cfg config.GenerationConfig, m *metrics.Metrics, tracker Tracker) *Pipeline {
	p := &Pipeline{
		ingestor:  ingest.New(),
		validator: validator.New(cfg.IdentifierColumn, cfg.RequiredColumns),
		embedder:  embed.New(cfg.BaseURL, cfg.QRPixels),
		policy:    cfg.FailurePolicy,
		metrics:   m,
		tracker:   tracker,
	}
	p.archiver = archive.New(p.embedder, render.New(), archive.Options{
		Policy:    archive.Policy(cfg.FailurePolicy),
		Workers:   cfg.Workers,
		Extension: render.Extension,
		Observe:   p.observeRow,
	})
	return p
}

// VerificationURL is the address embedded in the document for trackingID.
func (p *Pipeline) VerificationURL(trackingID string) string {
	return p.embedder.URL(trackingID)
}

// Run processes one upload. Input errors come back as is so callers can map
// them to a client error; nothing is archived unless every step succeeds
// (or, under best_effort, at least one row does).
func (p *Pipeline) Run(ctx context.Context, filename string, data []byte) (*Batch, error) {
	start := time.Now()
	batch := &Batch{ID: uuid.NewString(), Filename: filename}
	log := logger.FromContext(ctx).With("component", "pipeline", "batch_id", batch.ID)

	ctx, span := tracing.StartSpan(ctx, "batch", batch.ID)
	span.SetAttr("filename", filename)
	span.SetAttr("bytes", len(data))
	if p.metrics != nil {
		p.metrics.UploadBytes.Observe(float64(len(data)))
	}

	err := p.run(ctx, batch, data)
	batch.Duration = time.Since(start)
	if err != nil {
		span.Fail(err)
	} else {
		span.End()
	}
	span.Log(log)
	p.finish(log, batch, err)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (p *Pipeline) run(ctx context.Context, batch *Batch, data []byte) error {
	_, span := tracing.StartChildSpan(ctx, "ingest")
	table, err := p.ingestor.Ingest(batch.Filename, data)
	if err != nil {
		span.Fail(err)
		return err
	}
	span.SetAttr("rows", table.Len())
	span.SetAttr("columns", len(table.Columns()))
	span.End()
	batch.Rows = table.Len()

	_, span = tracing.StartChildSpan(ctx, "validate")
	records, err := p.validator.Validate(table)
	if err != nil {
		span.Fail(err)
		return err
	}
	span.End()

	actx, span := tracing.StartChildSpan(ctx, "archive")
	res, err := p.archiver.Build(actx, records)
	if err != nil {
		span.Fail(err)
		return err
	}
	span.SetAttr("entries", len(res.Entries))
	span.SetAttr("failures", len(res.Failures))
	span.SetAttr("archive_bytes", res.Size())
	span.End()
	batch.Result = res
	return nil
}

func (p *Pipeline) finish(log *slog.Logger, batch *Batch, err error) {
	event := generation.BatchEvent{
		BatchID:    batch.ID,
		Filename:   batch.Filename,
		Rows:       batch.Rows,
		Policy:     p.policy,
		DurationMs: batch.Duration.Milliseconds(),
		At:         time.Now().UTC(),
	}

	switch {
	case err == nil:
		event.Archived = len(batch.Entries)
		event.Failed = len(batch.Failures)
		event.ArchiveBytes = batch.Size()
		event.Outcome = generation.OutcomeSuccess
		if event.Failed > 0 {
			event.Outcome = generation.OutcomePartial
		}
		log.Info("batch archived",
			"filename", batch.Filename,
			"rows", batch.Rows,
			"archived", event.Archived,
			"failed", event.Failed,
			"bytes", event.ArchiveBytes,
			"duration", batch.Duration,
		)
	case apperrors.IsInputError(err):
		event.Outcome = generation.OutcomeInputError
		event.Error = err.Error()
		event.Kind = apperrors.Kind(err)
		log.Warn("batch rejected", "filename", batch.Filename, "error", err)
	default:
		event.Outcome = generation.OutcomeRenderFailed
		event.Error = err.Error()
		event.Kind = apperrors.Kind(err)
		var rowErr *generation.RowError
		if errors.As(err, &rowErr) {
			event.Failed = 1
		}
		log.Error("batch failed", "filename", batch.Filename, "rows", batch.Rows, "error", err)
	}

	if p.metrics != nil {
		p.metrics.BatchesTotal.WithLabelValues(event.Outcome).Inc()
		p.metrics.BatchDuration.Observe(batch.Duration.Seconds())
		if err == nil {
			p.metrics.ArchiveBytes.Observe(float64(event.ArchiveBytes))
		}
	}
	if p.tracker != nil {
		p.tracker.Track(event)
	}
}

func (p *Pipeline) observeRow(_ generation.Record, state archive.RowState, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.RowsTotal.WithLabelValues(state.String()).Inc()
	p.metrics.RowRenderDuration.Observe(elapsed.Seconds())
}
