package archive

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/embed"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/render"
)

// BenchmarkBuild measures whole-batch throughput with the real embedder and
// renderer at several worker counts.
func BenchmarkBuild(b *testing.B) {
	recs := records(50)
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			a := New(embed.New("https://rastreio.example.com/documento", 256), render.New(), Options{Workers: workers})
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				if _, err := a.Build(context.Background(), recs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkRenderOne measures embed plus render latency for a single row.
func BenchmarkRenderOne(b *testing.B) {
	a := New(embed.New("https://rastreio.example.com/documento", 256), render.New(), Options{})
	rec := records(1)[0]
	b.ReportAllocs()
	for b.Loop() {
		if r := a.renderOne(rec); r.err != nil {
			b.Fatal(r.err)
		}
	}
}
