// Package render lays out one single-page A4 PDF per record: a title with
// the tracking identifier, a ruled field table, the centered QR code, and a
// footer repeating the verification URL.
package render

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/embed"
)

// Extension is the file extension of rendered documents.
const Extension = "pdf"

// Layout constants in millimetres. They do not depend on content length;
// a long value overflows its cell.
const (
	pageWidth   = 210.0
	marginX     = 17.5
	marginTop   = 20.0
	labelWidth  = 75.0
	valueWidth  = 100.0
	rowHeight   = 8.0
	qrSize      = 40.0
	fontFamily  = "Helvetica"
	scanCaption = "Use a câmera do seu celular para rastrear:"
)

// Renderer is stateless; each Render call builds its own document.
type Renderer struct {
	compress bool
}

func New() *Renderer {
	return &Renderer{compress: true}
}

// Render produces the PDF bytes for rec with code embedded.
func (r *Renderer) Render(rec generation.Record, code embed.Code) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(marginX, marginTop, marginX)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(pdfText("Documento "+rec.TrackingID), false)
	pdf.SetCreator("tracked-documents", false)
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 18)
	pdf.CellFormat(0, 10, pdfText("Documento: "+rec.TrackingID), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(labelWidth, rowHeight, "Campo", "1", 0, "L", true, 0, "")
	pdf.CellFormat(valueWidth, rowHeight, "Valor", "1", 1, "L", true, 0, "")
	for _, f := range rec.Fields {
		pdf.SetFont(fontFamily, "B", 12)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(labelWidth, rowHeight, pdfText(f.Label+":"), "1", 0, "L", true, 0, "")
		pdf.SetFont(fontFamily, "", 12)
		pdf.SetFillColor(255, 255, 255)
		pdf.CellFormat(valueWidth, rowHeight, pdfText(f.Value), "1", 1, "L", true, 0, "")
	}
	pdf.Ln(15)

	pdf.SetFont(fontFamily, "", 10)
	pdf.CellFormat(0, 5, pdfText(scanCaption), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	name := "qr-" + rec.TrackingID
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(code.PNG))
	y := pdf.GetY()
	pdf.ImageOptions(name, (pageWidth-qrSize)/2, y, qrSize, qrSize, false, opts, 0, "")
	pdf.SetY(y + qrSize + 5)

	pdf.SetFont(fontFamily, "I", 8)
	pdf.SetTextColor(100, 100, 100)
	footer := fmt.Sprintf("URL Única: %s | ID: %s", code.Payload, rec.TrackingID)
	pdf.CellFormat(0, 5, pdfText(footer), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing pdf for %s: %w", rec.TrackingID, err)
	}
	return buf.Bytes(), nil
}
