package embed

import (
	"bytes"
	"testing"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestURLJoinsWithSingleSeparator(t *testing.T) {
	for _, base := range []string{
		"https://rastreio.example.com/documento",
		"https://rastreio.example.com/documento/",
		"https://rastreio.example.com/documento//",
	} {
		e := New(base, 128)
		if got, want := e.URL("ABC-1"), "https://rastreio.example.com/documento/ABC-1"; got != want {
			t.Errorf("URL with base %q = %q, want %q", base, got, want)
		}
	}
}

func TestEmbedIsDeterministic(t *testing.T) {
	e := New("https://rastreio.example.com/documento/", 128)
	first, err := e.Embed("ID-42")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := e.Embed("ID-42")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if again.Payload != first.Payload {
			t.Fatalf("payload changed: %q vs %q", again.Payload, first.Payload)
		}
	}
	if first.Payload != "https://rastreio.example.com/documento/ID-42" {
		t.Fatalf("unexpected payload %q", first.Payload)
	}
	if !bytes.HasPrefix(first.PNG, pngMagic) {
		t.Fatal("image is not a PNG")
	}
}
