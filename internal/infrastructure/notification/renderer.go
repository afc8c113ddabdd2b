// Package notification renders notification templates and delivers them.
package notification

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/garyjia/requisition-approval/internal/application/port"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Message is a rendered notification
type Message struct {
	Subject string
	Body    string
}

// Renderer turns a notification into a Message using the template named by
// Notification.Template.
type Renderer struct {
	templates map[string]*template.Template
	location  *time.Location
}

// NewRenderer parses the embedded templates. Timestamps are shown in loc,
// or UTC when loc is nil.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{templates: map[string]*template.Template{}, location: loc}

	files, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	for _, f := range files {
		name := strings.TrimSuffix(f.Name(), path.Ext(f.Name()))
		tmpl, err := template.New(name).Funcs(r.funcs()).ParseFS(templateFS, "templates/"+f.Name())
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"upper":    strings.ToUpper,
		"datetime": r.datetime,
	}
}

func (r *Renderer) datetime(v interface{}) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv == nil {
			return "-"
		}
		t = *tv
	default:
		return "-"
	}
	return t.In(r.location).Format("2006-01-02 15:04 MST")
}

// Render executes the subject and body blocks of n's template
func (r *Renderer) Render(n port.Notification) (Message, error) {
	tmpl, ok := r.templates[n.Template]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification template %q", n.Template)
	}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", n.Context); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", n.Template, err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", n.Context); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", n.Template, err)
	}
	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Body:    strings.TrimSpace(body.String()) + "\n",
	}, nil
}
