package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/embed"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/render"
	apperrors "github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/errors"
)

func records(n int) []generation.Record {
	out := make([]generation.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, generation.Record{
			Row:        i,
			TrackingID: fmt.Sprintf("ID-%d", i),
			Fields: []generation.Field{
				{Column: "NOME", Label: "Nome", Value: fmt.Sprintf("Pessoa %d", i)},
			},
		})
	}
	return out
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(id string) (embed.Code, error) {
	return embed.Code{Payload: "https://example.test/documento/" + id}, nil
}

// stubRenderer fails for the configured rows and records every call.
type stubRenderer struct {
	mu    sync.Mutex
	fail  map[int]bool
	panic map[int]bool
	calls []int
}

func (s *stubRenderer) Render(rec generation.Record, code embed.Code) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rec.Row)
	s.mu.Unlock()
	if s.panic[rec.Row] {
		panic("layout exploded")
	}
	if s.fail[rec.Row] {
		return nil, errors.New("boom")
	}
	return []byte("%PDF-1.3 " + rec.TrackingID + " " + code.Payload), nil
}

func readArchive(t *testing.T, res *Result) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(res.Reader(), res.Size())
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	out := make(map[string][]byte, len(zr.File))
	var names []string
	for _, f := range zr.File {
		if f.Method != zip.Deflate {
			t.Errorf("entry %s stored with method %d, want deflate", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading %s: %v", f.Name, err)
		}
		out[f.Name] = body
		names = append(names, f.Name)
	}
	for i, e := range res.Entries {
		if i >= len(names) || names[i] != e.Name {
			t.Fatalf("archive order %v does not match entries %v", names, res.Entries)
		}
	}
	return out
}

func TestBuildArchivesEveryRow(t *testing.T) {
	a := New(embed.New("https://example.test", 128), render.New(), Options{Extension: render.Extension})
	res, err := a.Build(context.Background(), records(3))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	files := readArchive(t, res)
	if len(files) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(files))
	}
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("documento_ID-%d.pdf", i)
		body, ok := files[name]
		if !ok {
			t.Fatalf("missing entry %s", name)
		}
		if !bytes.HasPrefix(body, []byte("%PDF-")) {
			t.Errorf("entry %s is not a PDF", name)
		}
	}
	if len(res.Failures) != 0 {
		t.Errorf("unexpected failures: %v", res.Failures)
	}
}

func TestBuildFailFastStopsAtFirstFailure(t *testing.T) {
	r := &stubRenderer{fail: map[int]bool{2: true}}
	a := New(stubEmbedder{}, r, Options{Policy: FailFast})
	res, err := a.Build(context.Background(), records(4))
	if res != nil {
		t.Fatal("expected no archive under fail-fast")
	}
	var rowErr *generation.RowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("expected RowError, got %v", err)
	}
	if rowErr.Row != 2 || rowErr.TrackingID != "ID-2" || rowErr.Stage != generation.StageRender {
		t.Errorf("unexpected row error: %+v", rowErr)
	}
	if !errors.Is(err, apperrors.ErrRenderFailure) {
		t.Errorf("expected ErrRenderFailure in chain")
	}
	if apperrors.HTTPStatusCode(err) != 500 {
		t.Errorf("expected 500, got %d", apperrors.HTTPStatusCode(err))
	}
	if len(r.calls) != 2 {
		t.Errorf("expected rendering to stop after row 2, calls=%v", r.calls)
	}
}

func TestBuildBestEffortSkipsFailedRows(t *testing.T) {
	r := &stubRenderer{fail: map[int]bool{2: true}, panic: map[int]bool{3: true}}
	var mu sync.Mutex
	states := map[int]RowState{}
	a := New(stubEmbedder{}, r, Options{
		Policy: BestEffort,
		Observe: func(rec generation.Record, s RowState, _ time.Duration) {
			mu.Lock()
			states[rec.Row] = s
			mu.Unlock()
		},
	})
	res, err := a.Build(context.Background(), records(4))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	files := readArchive(t, res)
	if len(files) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(files))
	}
	if got := res.FailedRows(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("expected failed rows [2 3], got %v", got)
	}
	want := map[int]RowState{1: StateArchived, 2: StateFailed, 3: StateFailed, 4: StateArchived}
	for row, s := range want {
		if states[row] != s {
			t.Errorf("row %d: state %s, want %s", row, states[row], s)
		}
	}
}

func TestBuildBestEffortAllFailed(t *testing.T) {
	r := &stubRenderer{fail: map[int]bool{1: true, 2: true}}
	a := New(stubEmbedder{}, r, Options{Policy: BestEffort})
	_, err := a.Build(context.Background(), records(2))
	if !errors.Is(err, apperrors.ErrArchiveFailure) {
		t.Fatalf("expected ErrArchiveFailure, got %v", err)
	}
}

func TestBuildParallelKeepsOrder(t *testing.T) {
	a := New(stubEmbedder{}, &stubRenderer{}, Options{Workers: 4})
	res, err := a.Build(context.Background(), records(20))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	readArchive(t, res)
	for i, e := range res.Entries {
		if e.Row != i+1 {
			t.Fatalf("entry %d has row %d", i, e.Row)
		}
	}
}

func TestBuildParallelFailFastReportsLowestRow(t *testing.T) {
	r := &stubRenderer{fail: map[int]bool{5: true, 9: true}}
	a := New(stubEmbedder{}, r, Options{Workers: 3})
	_, err := a.Build(context.Background(), records(12))
	var rowErr *generation.RowError
	if !errors.As(err, &rowErr) || rowErr.Row != 5 {
		t.Fatalf("expected failure at row 5, got %v", err)
	}
}

func TestBuildCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New(stubEmbedder{}, &stubRenderer{}, Options{})
	if _, err := a.Build(ctx, records(2)); !errors.Is(err, apperrors.ErrArchiveFailure) {
		t.Fatalf("expected ErrArchiveFailure, got %v", err)
	}
}

func TestResultChunks(t *testing.T) {
	a := New(stubEmbedder{}, &stubRenderer{}, Options{})
	res, err := a.Build(context.Background(), records(5))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var joined []byte
	for chunk := range res.Chunks(7) {
		if len(chunk) > 7 {
			t.Fatalf("chunk of %d bytes exceeds limit", len(chunk))
		}
		joined = append(joined, chunk...)
	}
	if !bytes.Equal(joined, res.Bytes()) {
		t.Fatal("chunks do not reassemble the archive")
	}
	var buf bytes.Buffer
	n, err := res.WriteTo(&buf)
	if err != nil || n != res.Size() {
		t.Fatalf("WriteTo wrote %d of %d: %v", n, res.Size(), err)
	}
}

func TestEntryName(t *testing.T) {
	if got := EntryName("ERROR-ROW-3", "pdf"); got != "documento_ERROR-ROW-3.pdf" {
		t.Errorf("unexpected name %q", got)
	}
}
