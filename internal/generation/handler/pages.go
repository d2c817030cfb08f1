package handler

import (
	"bytes"
	"html/template"
	"net/http"
	"regexp"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
)

// trackingIDPattern matches the identifiers the validator can produce.
var trackingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Gerador de Documentos Rastreáveis</title></head>
<body>
<h1>Gerador de Documentos Rastreáveis</h1>
<p>Envie uma planilha (.csv, .xls ou .xlsx) com a coluna <code>{{.IDColumn}}</code>.
Cada linha vira um PDF com QR Code de verificação.</p>
<form action="/upload" method="post" enctype="multipart/form-data">
<input type="file" name="file" accept=".csv,.xls,.xlsx" required>
<button type="submit">Gerar documentos</button>
</form>
<p>Limite de {{.MaxMiB}} MiB por arquivo.</p>
</body>
</html>
`))

	verifyPage = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Documento {{.ID}}</title></head>
<body>
<h1>Documento verificado</h1>
<p>Identificador: <strong>{{.ID}}</strong></p>
<p>Endereço de verificação: <a href="{{.URL}}">{{.URL}}</a></p>
</body>
</html>
`))

	notFoundPage = template.Must(template.New("notfound").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Documento não encontrado</title></head>
<body><h1>Documento não encontrado</h1><p>O identificador informado é inválido.</p></body>
</html>
`))
)

// Pages serves the static HTML surface.
type Pages struct {
	runner   Runner
	idColumn string
	maxMiB   int64
}

func NewPages(runner Runner, idColumn string, maxUploadBytes int64) *Pages {
	return &Pages{runner: runner, idColumn: idColumn, maxMiB: maxUploadBytes >> 20}
}

// Index serves the upload form.
func (p *Pages) Index(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, indexPage, map[string]any{
		"IDColumn": p.idColumn,
		"MaxMiB":   p.maxMiB,
	})
}

// Verify is where scanned codes land. It performs no lookup: any well-formed
// identifier gets the confirmation page.
func (p *Pages) Verify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !trackingIDPattern.MatchString(id) {
		render(w, r, http.StatusNotFound, notFoundPage, nil)
		return
	}
	render(w, r, http.StatusOK, verifyPage, map[string]any{
		"ID":  id,
		"URL": p.runner.VerificationURL(id),
	})
}

// render executes t before writing anything so a template error becomes a
// 500 instead of a truncated page.
func render(w http.ResponseWriter, r *http.Request, status int, t *template.Template, data any) {
	log := logger.FromContext(r.Context())
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		log.Error("failed to render page", "page", t.Name(), "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Error("failed to write page", "page", t.Name(), "error", err)
	}
}
