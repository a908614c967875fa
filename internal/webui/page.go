package webui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/index.html.tmpl
var templatesFS embed.FS

// Page renders the upload form served at the site root.
type Page struct {
	tmpl     *template.Template
	endpoint string
}

type pageData struct {
	Lang     string
	Endpoint string
	Messages Messages
}

// NewPage parses the embedded template. endpoint is the path the form posts to.
func NewPage(endpoint string) (*Page, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("webui: parse template: %w", err)
	}
	return &Page{tmpl: tmpl, endpoint: endpoint}, nil
}

// Render writes the page for locale. Output is buffered so a template error
// never leaves a half written response.
func (p *Page) Render(w io.Writer, locale string) error {
	if _, ok := catalog[locale]; !ok {
		locale = "en"
	}
	var buf bytes.Buffer
	data := pageData{Lang: locale, Endpoint: p.endpoint, Messages: Lookup(locale)}
	if err := p.tmpl.ExecuteTemplate(&buf, "index.html.tmpl", data); err != nil {
		return fmt.Errorf("webui: render: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
