// Package render formats incidents, updates and corrections into
// publishable markdown. Rendering is pure: templates are the only input
// besides the structured fields, and nothing here touches the ledger.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MattIPv4/Discord-Status/internal/markdown"
	"github.com/MattIPv4/Discord-Status/internal/publish"
	"github.com/MattIPv4/Discord-Status/internal/statuspage"
)

//go:embed templates/*.md
var defaults embed.FS

// Template file names. A templates directory may override any of them.
const (
	TitleTemplate      = "new_title.md"
	NewTemplate        = "new.md"
	UpdateTemplate     = "update.md"
	UpdateBodyTemplate = "update_body.md"
	CorrectionTemplate = "mod.md"
)

// DateLayout is how every timestamp is shown to readers.
const DateLayout = "02 Jan 2006 15:04 UTC"

// Renderer renders using the embedded templates, overridden per file by Dir.
type Renderer struct {
	Dir     string
	Service string
}

// New returns a renderer. dir may be empty.
func New(dir, service string) *Renderer {
	if strings.TrimSpace(service) == "" {
		service = "Discord"
	}
	return &Renderer{Dir: strings.TrimSpace(dir), Service: service}
}

var titler = cases.Title(language.English)

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.UTC().Format(DateLayout)
	},
	"title": func(s string) string {
		return titler.String(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	},
	"quote": markdown.Quote,
}

type newData struct {
	Service   string
	Name      string
	CreatedAt time.Time
	Shortlink string
	Summary   string
}

type updateBodyData struct {
	Status string
	Body   string
}

type updateData struct {
	CreatedAt time.Time
	Update    string
}

type correctionData struct {
	Author string
	At     time.Time
	Text   string
}

// NewIncident renders the initial post, with latest (if any) as its summary.
func (r *Renderer) NewIncident(inc statuspage.Incident, latest *statuspage.Update) (publish.Content, error) {
	data := newData{
		Service:   r.Service,
		Name:      strings.TrimSpace(inc.Name),
		CreatedAt: inc.CreatedAt,
		Shortlink: strings.TrimSpace(inc.Shortlink),
	}
	if latest != nil {
		summary, err := r.updateBody(*latest)
		if err != nil {
			return publish.Content{}, err
		}
		data.Summary = summary
	}
	title, err := r.execute(TitleTemplate, data)
	if err != nil {
		return publish.Content{}, err
	}
	body, err := r.execute(NewTemplate, data)
	if err != nil {
		return publish.Content{}, err
	}
	return publish.Content{Title: collapseLines(title), Body: body}, nil
}

// UpdateFragment renders one update for appending to existing posts.
func (r *Renderer) UpdateFragment(u statuspage.Update) (string, error) {
	body, err := r.updateBody(u)
	if err != nil {
		return "", err
	}
	return r.execute(UpdateTemplate, updateData{CreatedAt: u.CreatedAt, Update: body})
}

// Correction renders a dated moderator note.
func (r *Renderer) Correction(author string, at time.Time, text string) (string, error) {
	return r.execute(CorrectionTemplate, correctionData{
		Author: strings.TrimSpace(author),
		At:     at,
		Text:   strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")),
	})
}

func (r *Renderer) updateBody(u statuspage.Update) (string, error) {
	return r.execute(UpdateBodyTemplate, updateBodyData{Status: u.Status, Body: markdown.Normalize(u.Body)})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	src, err := r.load(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// load reads the override from Dir on every call so templates can be edited
// between cycles without a restart.
func (r *Renderer) load(name string) ([]byte, error) {
	if r.Dir != "" {
		b, err := os.ReadFile(filepath.Join(r.Dir, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
	}
	return defaults.ReadFile("templates/" + name)
}

func collapseLines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
