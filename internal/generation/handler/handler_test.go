package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/pipeline"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/config"
)

func newPipeline() *pipeline.Pipeline {
	cfg := config.Default().Generation
	cfg.BaseURL = "https://rastreio.example.com/documento"
	cfg.RequiredColumns = []string{"ID_UNICO", "NOME"}
	return pipeline.New(cfg, nil, nil)
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write(content)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp
}

func TestUploadReturnsArchive(t *testing.T) {
	h := New(newPipeline(), "documentos_rastreaveis.zip", 16<<20)
	csv := "ID_UNICO,NOME,DATA_EMISSAO\nA1,Ana,2024-01-02\nB2,Bruno,\n"

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "file", "lote.csv", []byte(csv)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="documentos_rastreaveis.zip"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if cl := rec.Header().Get("Content-Length"); cl != strconv.Itoa(rec.Body.Len()) {
		t.Errorf("Content-Length %s does not match body of %d bytes", cl, rec.Body.Len())
	}
	if rec.Header().Get(HeaderBatchID) == "" {
		t.Error("missing batch id header")
	}
	if got := rec.Header().Get(HeaderGenerated); got != "2" {
		t.Errorf("%s = %q", HeaderGenerated, got)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "documento_A1.pdf" || zr.File[1].Name != "documento_B2.pdf" {
		t.Errorf("unexpected entries: %v", zr.File)
	}
}

func TestUploadInputErrors(t *testing.T) {
	h := New(newPipeline(), "out.zip", 16<<20)
	tests := []struct {
		name     string
		field    string
		filename string
		content  string
		kind     string
	}{
		{"missing columns", "file", "lote.csv", "ID_UNICO,CIDADE\n1,Recife\n", "missing_columns"},
		{"unsupported", "file", "lote.txt", "a,b\n1,2\n", "unsupported_format"},
		{"empty table", "file", "lote.csv", "ID_UNICO,NOME\n", "empty_table"},
		{"wrong field", "upload", "lote.csv", "ID_UNICO,NOME\n1,Ana\n", "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Upload(rec, uploadRequest(t, tt.field, tt.filename, []byte(tt.content)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Kind != tt.kind {
				t.Errorf("kind = %q, want %q (%s)", resp.Kind, tt.kind, resp.Error)
			}
		})
	}
}

func TestUploadMissingColumnsListsPresent(t *testing.T) {
	h := New(newPipeline(), "out.zip", 16<<20)
	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "file", "lote.csv", []byte("ID_UNICO,CIDADE\n1,Recife\n")))
	resp := decodeError(t, rec)
	present, _ := resp.Details["present"].([]any)
	if len(present) != 2 || present[1] != "CIDADE" {
		t.Errorf("present = %v", resp.Details["present"])
	}
	if !strings.Contains(resp.Error, "CIDADE") {
		t.Errorf("message should list found columns: %s", resp.Error)
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := New(newPipeline(), "out.zip", 1<<10)
	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "file", "lote.csv", bytes.Repeat([]byte("x"), 8<<10)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestUploadNotMultipart(t *testing.T) {
	h := New(newPipeline(), "out.zip", 16<<20)
	rec := httptest.NewRecorder()
	h.Upload(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("ID_UNICO\n1\n")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context, string, []byte) (*pipeline.Batch, error) {
	return nil, f.err
}

func (failingRunner) VerificationURL(id string) string { return "https://example.test/documento/" + id }

func TestUploadRenderFailure(t *testing.T) {
	rowErr := &generation.RowError{Row: 2, TrackingID: "B2", Stage: generation.StageRender, Err: errors.New("layout overflow")}
	h := New(failingRunner{err: rowErr}, "out.zip", 16<<20)
	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "file", "lote.csv", []byte("ID_UNICO\nB2\n")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Kind != "render_failure" || resp.Details["row"] != float64(2) || resp.Details["tracking_id"] != "B2" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestVerify(t *testing.T) {
	p := NewPages(newPipeline(), "ID_UNICO", 16<<20)
	tests := []struct {
		id   string
		want int
	}{
		{"A1", http.StatusOK},
		{"ERROR-ROW-3", http.StatusOK},
		{"abc_DEF-9", http.StatusOK},
		{"bad.id", http.StatusNotFound},
		{"<script>", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/documento/x", nil)
		req.SetPathValue("id", tt.id)
		rec := httptest.NewRecorder()
		p.Verify(rec, req)
		if rec.Code != tt.want {
			t.Errorf("Verify(%q) = %d, want %d", tt.id, rec.Code, tt.want)
			continue
		}
		if tt.want == http.StatusOK && !strings.Contains(rec.Body.String(), "https://rastreio.example.com/documento/"+tt.id) {
			t.Errorf("Verify(%q) page missing verification URL", tt.id)
		}
	}
}

func TestIndex(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPages(newPipeline(), "ID_UNICO", 16<<20).Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `name="file"`) || !strings.Contains(body, "ID_UNICO") {
		t.Errorf("index page missing upload form:\n%s", body)
	}
}

func TestRenderTemplateError(t *testing.T) {
	broken := template.Must(template.New("broken").Parse(`<p>antes</p>{{template "ausente"}}`))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	render(rec, req, http.StatusOK, broken, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "antes") {
		t.Fatalf("partial page written: %q", rec.Body.String())
	}
}
