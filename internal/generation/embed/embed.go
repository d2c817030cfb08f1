// Package embed derives the verification URL for a tracking identifier and
// renders it as a QR code image.
package embed

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// RecoveryLevel is the QR error-correction strength used for every code.
// Medium (about 15% recoverable) is the floor for small printed codes.
const RecoveryLevel = qrcode.Medium

// Code is one rendered verification code.
type Code struct {
	// Payload is the exact string encoded in the image.
	Payload string
	PNG     []byte
}

// Embedder is immutable after construction and safe for concurrent use.
type Embedder struct {
	baseURL string
	pixels  int
}

// New creates an Embedder producing square PNG images of pixels×pixels.
func New(baseURL string, pixels int) *Embedder {
	return &Embedder{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		pixels:  pixels,
	}
}

// BaseURL returns the base URL without its trailing separator.
func (e *Embedder) BaseURL() string { return e.baseURL }

// URL joins the base URL and the identifier with exactly one '/'.
func (e *Embedder) URL(trackingID string) string {
	return e.baseURL + "/" + url.PathEscape(strings.TrimLeft(trackingID, "/"))
}

// Embed encodes URL(trackingID) as a QR code.
func (e *Embedder) Embed(trackingID string) (Code, error) {
	payload := e.URL(trackingID)
	q, err := qrcode.New(payload, RecoveryLevel)
	if err != nil {
		return Code{}, fmt.Errorf("encoding qr payload %q: %w", payload, err)
	}
	png, err := q.PNG(e.pixels)
	if err != nil {
		return Code{}, fmt.Errorf("rasterizing qr code: %w", err)
	}
	return Code{Payload: payload, PNG: png}, nil
}
