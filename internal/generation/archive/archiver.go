// Package archive drives the per-row embed and render steps and writes each
// finished document into one deflate-compressed zip held in memory.
//
// Rows move pending → rendering → archived or failed, strictly in source
// order. Under FailFast the first failed row aborts the batch; under
// BestEffort failures are collected and returned with the partial archive.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/embed"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

// Policy selects how per-row failures are handled.
type Policy string

const (
	FailFast   Policy = "fail_fast"
	BestEffort Policy = "best_effort"
)

// RowState is the lifecycle of one row inside a batch.
type RowState int

const (
	StatePending RowState = iota
	StateRendering
	StateArchived
	StateFailed
)

func (s RowState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRendering:
		return "rendering"
	case StateArchived:
		return "archived"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Embedder produces the verification code for a tracking identifier.
type Embedder interface {
	Embed(trackingID string) (embed.Code, error)
}

// Renderer lays out one record as a document.
type Renderer interface {
	Render(rec generation.Record, code embed.Code) ([]byte, error)
}

// Options configures an Archiver.
type Options struct {
	Policy Policy
	// Workers > 1 renders rows concurrently; archive writes stay in order.
	Workers int
	// Extension of each entry, without the dot.
	Extension string
	// Observe, when set, is called once per row as it reaches a final state.
	Observe func(rec generation.Record, state RowState, elapsed time.Duration)
}

// Archiver is safe for concurrent use; each Build owns its own buffer.
type Archiver struct {
	embedder Embedder
	renderer Renderer
	opts     Options
	logger   *slog.Logger
}

func New(e Embedder, r Renderer, opts Options) *Archiver {
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Extension == "" {
		opts.Extension = "pdf"
	}
	return &Archiver{
		embedder: e,
		renderer: r,
		opts:     opts,
		logger:   slog.Default().With("component", "archiver"),
	}
}

// EntryName is the archive path of the document for trackingID.
func EntryName(trackingID, ext string) string {
	return fmt.Sprintf("documento_%s.%s", trackingID, ext)
}

// rendered is the outcome of the embed+render step for one row.
type rendered struct {
	doc     []byte
	err     error
	elapsed time.Duration
	skipped bool
}

// Build renders every record and returns the archive. Under FailFast the
// returned error is a *generation.RowError for the first failing row.
func (a *Archiver) Build(ctx context.Context, records []generation.Record) (*Result, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	res := &Result{}

	write := func(rec generation.Record, r rendered) error {
		if r.err != nil {
			rowErr := a.rowError(rec, r.err)
			a.observe(rec, StateFailed, r.elapsed)
			a.logger.Error("row failed",
				"row", rec.Row,
				"tracking_id", rec.TrackingID,
				"error", r.err,
			)
			if a.opts.Policy == FailFast {
				return rowErr
			}
			res.Failures = append(res.Failures, rowErr)
			return nil
		}
		name := EntryName(rec.TrackingID, a.opts.Extension)
		if err := writeEntry(zw, name, r.doc); err != nil {
			return apperrors.Newf(apperrors.ErrArchiveFailure, 500, "writing %s: %v", name, err)
		}
		res.Entries = append(res.Entries, Entry{
			Name:       name,
			Row:        rec.Row,
			TrackingID: rec.TrackingID,
			Size:       len(r.doc),
		})
		a.observe(rec, StateArchived, r.elapsed)
		return nil
	}

	var err error
	if a.opts.Workers > 1 && len(records) > 1 {
		err = a.buildParallel(ctx, records, write)
	} else {
		err = a.buildSequential(ctx, records, write)
	}
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrArchiveFailure, 500, "finalizing archive: %v", err)
	}
	if len(res.Entries) == 0 {
		first := "none"
		if len(res.Failures) > 0 {
			first = res.Failures[0].Error()
		}
		return nil, apperrors.Newf(apperrors.ErrArchiveFailure, 500,
			"no document could be generated from %d rows (first failure: %s)", len(records), first)
	}
	res.data = buf.Bytes()
	return res, nil
}

func (a *Archiver) buildSequential(ctx context.Context, records []generation.Record, write func(generation.Record, rendered) error) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return apperrors.Newf(apperrors.ErrArchiveFailure, 500, "batch interrupted before row %d: %v", rec.Row, err)
		}
		if err := write(rec, a.renderOne(rec)); err != nil {
			return err
		}
	}
	return nil
}

// buildParallel renders with a bounded worker group, then writes results in
// row order. Under FailFast, rows after the lowest failed row are not
// started; every row before it is always rendered.
func (a *Archiver) buildParallel(ctx context.Context, records []generation.Record, write func(generation.Record, rendered) error) error {
	results := make([]rendered, len(records))
	var (
		mu        sync.Mutex
		firstFail = len(records)
	)
	g := new(errgroup.Group)
	g.SetLimit(a.opts.Workers)
	for i, rec := range records {
		g.Go(func() error {
			mu.Lock()
			skip := i > firstFail
			mu.Unlock()
			if skip || ctx.Err() != nil {
				results[i] = rendered{skipped: true}
				return nil
			}
			results[i] = a.renderOne(rec)
			if results[i].err != nil && a.opts.Policy == FailFast {
				mu.Lock()
				firstFail = min(firstFail, i)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	for i, rec := range records {
		if results[i].skipped {
			if err := ctx.Err(); err != nil {
				return apperrors.Newf(apperrors.ErrArchiveFailure, 500, "batch interrupted before row %d: %v", rec.Row, err)
			}
			continue
		}
		if err := write(rec, results[i]); err != nil {
			return err
		}
	}
	return nil
}

// renderOne runs embed and render for a row, converting panics into errors
// so one bad row cannot take down the batch.
func (a *Archiver) renderOne(rec generation.Record) (r rendered) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r = rendered{err: &stageError{stage: generation.StageRender, err: fmt.Errorf("panic: %v", p)}}
		}
		r.elapsed = time.Since(start)
	}()
	code, err := a.embedder.Embed(rec.TrackingID)
	if err != nil {
		return rendered{err: &stageError{stage: generation.StageEmbed, err: err}}
	}
	doc, err := a.renderer.Render(rec, code)
	if err != nil {
		return rendered{err: &stageError{stage: generation.StageRender, err: err}}
	}
	if len(doc) == 0 {
		return rendered{err: &stageError{stage: generation.StageRender, err: errors.New("renderer returned an empty document")}}
	}
	return rendered{doc: doc}
}

func (a *Archiver) rowError(rec generation.Record, err error) *generation.RowError {
	stage := generation.StageRender
	var se *stageError
	if errors.As(err, &se) {
		stage, err = se.stage, se.err
	}
	return &generation.RowError{Row: rec.Row, TrackingID: rec.TrackingID, Stage: stage, Err: err}
}

func (a *Archiver) observe(rec generation.Record, state RowState, elapsed time.Duration) {
	if a.opts.Observe != nil {
		a.opts.Observe(rec, state, elapsed)
	}
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func writeEntry(zw *zip.Writer, name string, doc []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(doc)
	return err
}
