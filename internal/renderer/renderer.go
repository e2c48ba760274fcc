package renderer

import (
	"bytes"
	_ "embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
	"time"

	"github.com/yuin/goldmark"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

const (
	KindFailing   = "failing"
	KindRecovered = "recovered"
)

//go:embed templates/alert.md
var defaultMarkdownTemplate string

//go:embed templates/alert.html
var defaultHTMLTemplate string

// Notice describes a change in a source's health.
type Notice struct {
	Kind      string
	Source    string
	URL       string
	Failures  int
	LastError string
	Fields    *fetcher.Fields
	At        time.Time
}

type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

type Renderer struct {
	mdTpl   *texttpl.Template
	htmlTpl *htmltpl.Template
}

type htmlData struct {
	Kind    string
	Subject string
	Body    htmltpl.HTML
}

// New parses the given templates. The markdown template produces the plain
// text part and is converted to HTML for the html template's Body.
func New(markdownTemplate, htmlTemplate string) (*Renderer, error) {
	mt, err := texttpl.New("alert.md").Funcs(texttpl.FuncMap{
		"timestamp": timestamp,
	}).Parse(markdownTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing markdown template: %w", err)
	}

	ht, err := htmltpl.New("alert.html").Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML template: %w", err)
	}

	return &Renderer{mdTpl: mt, htmlTpl: ht}, nil
}

// Default returns a renderer using the embedded templates.
func Default() (*Renderer, error) {
	return New(defaultMarkdownTemplate, defaultHTMLTemplate)
}

func (r *Renderer) Render(n Notice) (*RenderedEmail, error) {
	var mdBuf bytes.Buffer
	if err := r.mdTpl.Execute(&mdBuf, n); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	subject := Subject(n)

	var htmlBuf bytes.Buffer
	data := htmlData{Kind: n.Kind, Subject: subject, Body: renderMarkdown(mdBuf.String())}
	if err := r.htmlTpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("rendering HTML: %w", err)
	}

	return &RenderedEmail{
		Subject: subject,
		HTML:    htmlBuf.String(),
		Text:    mdBuf.String(),
	}, nil
}

func Subject(n Notice) string {
	switch n.Kind {
	case KindFailing:
		return fmt.Sprintf("[VMarket] %s is failing", n.Source)
	case KindRecovered:
		return fmt.Sprintf("[VMarket] %s recovered", n.Source)
	default:
		return fmt.Sprintf("[VMarket] %s", n.Source)
	}
}

// md renders alert markdown to HTML.
var md = goldmark.New()

func renderMarkdown(s string) htmltpl.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return htmltpl.HTML("<pre>" + htmltpl.HTMLEscapeString(s) + "</pre>")
	}
	return htmltpl.HTML(buf.String())
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 MST")
}
