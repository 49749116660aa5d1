package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"bloodlink/internal/types"
)

//go:embed templates/layout.html templates/layout.txt
var templateFS embed.FS

// RenderedEmail holds the laid-out email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// layoutData is the struct passed into the layout templates.
type layoutData struct {
	AppName  string
	Subject  string
	Greeting string
	Lines    []string
	Action   *types.Action
}

// Layout wraps the text of an EmailPayload in the shared HTML and plain-text
// layouts. Payload text is already rendered by the dispatcher; the HTML
// layout escapes it.
type Layout struct {
	html    *template.Template
	text    *texttemplate.Template
	appName string
}

// NewLayout parses the embedded layouts. appName is shown in the header and
// the signature.
func NewLayout(appName string) (*Layout, error) {
	htmlSrc, err := templateFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("layout: failed to read layout.html: %w", err)
	}
	htmlTmpl, err := template.New("layout.html").Option("missingkey=error").Parse(string(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("layout: failed to parse layout.html: %w", err)
	}

	txtSrc, err := templateFS.ReadFile("templates/layout.txt")
	if err != nil {
		return nil, fmt.Errorf("layout: failed to read layout.txt: %w", err)
	}
	txtTmpl, err := texttemplate.New("layout.txt").Option("missingkey=error").Parse(string(txtSrc))
	if err != nil {
		return nil, fmt.Errorf("layout: failed to parse layout.txt: %w", err)
	}

	return &Layout{html: htmlTmpl, text: txtTmpl, appName: appName}, nil
}

// Render lays out p. It fails only on a nil payload or a template execution
// error.
func (l *Layout) Render(p *types.EmailPayload) (*RenderedEmail, error) {
	if p == nil {
		return nil, fmt.Errorf("layout: payload is nil")
	}
	data := layoutData{
		AppName:  l.appName,
		Subject:  p.Subject,
		Greeting: p.Greeting,
		Lines:    p.Lines,
		Action:   p.Action,
	}

	var htmlBuf bytes.Buffer
	if err := l.html.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("layout: failed to render HTML: %w", err)
	}
	var txtBuf bytes.Buffer
	if err := l.text.Execute(&txtBuf, data); err != nil {
		return nil, fmt.Errorf("layout: failed to render text: %w", err)
	}

	return &RenderedEmail{
		Subject:  p.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, nil
}
