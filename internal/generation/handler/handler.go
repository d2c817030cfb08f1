// Package handler is the HTTP delivery adapter: it accepts uploads, returns
// archives, and serves the static verification and index pages.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/archive"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
)

// Response headers describing a batch.
const (
	HeaderBatchID   = "X-Batch-ID"
	HeaderGenerated = "X-Documents-Generated"
	HeaderFailed    = "X-Failed-Rows"
)

// multipartMemory is how much of a form is held in memory before spilling
// to temporary files.
const multipartMemory = 4 << 20

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, filename string, data []byte) (*pipeline.Batch, error)
	VerificationURL(trackingID string) string
}

type Handler struct {
	runner      Runner
	archiveName string
	maxUpload   int64
	logger      *slog.Logger
}

func New(runner Runner, archiveName string, maxUploadBytes int64) *Handler {
	return &Handler{
		runner:      runner,
		archiveName: archiveName,
		maxUpload:   maxUploadBytes,
		logger:      slog.Default().With("component", "generation-handler"),
	}
}

// Upload reads the "file" form field, runs the pipeline and streams the
// archive back.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	filename, data, err := h.readUpload(w, r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	batch, err := h.runner.Run(ctx, filename, data)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/zip")
	hdr.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, h.archiveName))
	hdr.Set("Content-Length", strconv.FormatInt(batch.Size(), 10))
	hdr.Set(HeaderBatchID, batch.ID)
	hdr.Set(HeaderGenerated, strconv.Itoa(len(batch.Entries)))
	if rows := batch.FailedRows(); len(rows) > 0 {
		parts := make([]string, len(rows))
		for i, n := range rows {
			parts[i] = strconv.Itoa(n)
		}
		hdr.Set(HeaderFailed, strings.Join(parts, ","))
	}
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	var sent int64
	for chunk := range batch.Chunks(archive.DefaultChunkSize) {
		n, err := w.Write(chunk)
		sent += int64(n)
		if err != nil {
			log.Warn("archive transmission interrupted",
				"batch_id", batch.ID,
				"sent", sent,
				"size", batch.Size(),
				"error", err,
			)
			return
		}
		_ = rc.Flush()
	}
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if tooLarge(err) {
			return "", nil, h.tooLargeError()
		}
		return "", nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"expected a multipart/form-data body with a \"file\" field")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "no file was sent in the \"file\" field")
	}
	if err != nil {
		return "", nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading upload: %v", err)
	}
	defer file.Close()

	name := strings.TrimSpace(header.Filename)
	if name == "" {
		return "", nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "the uploaded file has no name")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		if tooLarge(err) {
			return "", nil, h.tooLargeError()
		}
		return "", nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading upload: %v", err)
	}
	return name, data, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (h *Handler) tooLargeError() error {
	return apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
		"upload exceeds the %d MiB limit", h.maxUpload>>20)
}

// errorResponse is the JSON body of every failed upload.
type errorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	resp := errorResponse{Error: err.Error(), Kind: apperrors.Kind(err)}

	var (
		mc     *generation.MissingColumnsError
		rowErr *generation.RowError
	)
	switch {
	case errors.As(err, &mc):
		resp.Details = map[string]any{
			"required": mc.Required,
			"missing":  mc.Missing,
			"present":  mc.Present,
		}
	case errors.As(err, &rowErr):
		resp.Details = map[string]any{
			"row":         rowErr.Row,
			"tracking_id": rowErr.TrackingID,
			"stage":       rowErr.Stage,
		}
	}

	log := logger.FromContext(r.Context())
	if status >= 500 {
		log.Error("upload failed", "error", err, "status_code", status)
	} else {
		log.Info("upload rejected", "error", err, "status_code", status)
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
