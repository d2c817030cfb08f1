package archive

import (
	"bytes"
	"io"
	"iter"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
)

// DefaultChunkSize is the read size used when streaming an archive.
const DefaultChunkSize = 64 << 10

// Entry describes one archived document.
type Entry struct {
	Name       string
	Row        int
	TrackingID string
	Size       int
}

// Result is a finished archive. Its size is known before transmission.
type Result struct {
	Entries  []Entry
	Failures []*generation.RowError
	data     []byte
}

// Size returns the encoded archive length in bytes.
func (r *Result) Size() int64 { return int64(len(r.data)) }

// Bytes returns the encoded archive. Callers must not modify it.
func (r *Result) Bytes() []byte { return r.data }

func (r *Result) Reader() *bytes.Reader { return bytes.NewReader(r.data) }

// Chunks yields successive views of the archive of at most size bytes
// without copying.
func (r *Result) Chunks(size int) iter.Seq[[]byte] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte) bool) {
		for off := 0; off < len(r.data); off += size {
			end := min(off+size, len(r.data))
			if !yield(r.data[off:end:end]) {
				return
			}
		}
	}
}

// WriteTo streams the archive to w chunk by chunk.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for chunk := range r.Chunks(DefaultChunkSize) {
		m, err := w.Write(chunk)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// FailedRows returns the 1-based row numbers that were skipped.
func (r *Result) FailedRows() []int {
	rows := make([]int, 0, len(r.Failures))
	for _, f := range r.Failures {
		rows = append(rows, f.Row)
	}
	return rows
}
