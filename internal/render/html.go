package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/whatsondev/whatsfeed/internal/feed"
)

// HTMLRenderer is the built-in feed.Renderer: a plain html/template grid or
// carousel with no styling opinions beyond class hooks
type HTMLRenderer struct {
	tmpl *template.Template
}

const feedTemplate = `{{define "feed"}}<div class="whatsfeed whatsfeed-{{.Layout}}"{{if .Columns}} style="--whatsfeed-columns:{{.Columns}}"{{end}}>
{{- range .Posts}}
  <div class="whatsfeed-item whatsfeed-{{.MediaType}}" data-source="{{.Source}}">
    <a href="{{.Permalink}}"{{if $.OpenInPopup}} class="whatsfeed-popup" data-popup="true"{{else}} target="_blank" rel="noopener"{{end}}>
      {{- if eq .MediaType "video"}}
      <img src="{{thumb .}}" alt="{{.Caption}}" loading="lazy">
      <span class="whatsfeed-play"></span>
      {{- else}}
      <img src="{{.MediaURL}}" alt="{{.Caption}}" loading="lazy">
      {{- end}}
    </a>
    {{- if and $.ShowCaptions .Caption}}
    <p class="whatsfeed-caption">{{.Caption}}</p>
    {{- end}}
  </div>
{{- end}}
</div>{{end}}`

const errorTemplate = `{{define "error"}}<div class="whatsfeed whatsfeed-error"><p>{{.}}</p></div>{{end}}`

// New creates the HTML renderer
func New() (*HTMLRenderer, error) {
	tmpl := template.New("whatsfeed").Funcs(template.FuncMap{
		"thumb": func(p feed.Post) string {
			if p.ThumbnailURL != "" {
				return p.ThumbnailURL
			}
			return p.MediaURL
		},
	})
	for _, src := range []string{feedTemplate, errorTemplate} {
		if _, err := tmpl.Parse(src); err != nil {
			return nil, fmt.Errorf("failed to parse feed template: %w", err)
		}
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// Render implements feed.Renderer
func (r *HTMLRenderer) Render(posts []feed.Post, opts feed.RenderOptions) (template.HTML, error) {
	if opts.Layout == "" {
		opts.Layout = feed.LayoutGrid
	}
	if opts.Columns < 1 || opts.Columns > 6 {
		opts.Columns = 3
	}

	data := struct {
		Posts        []feed.Post
		Layout       feed.Layout
		Columns      int
		ShowCaptions bool
		OpenInPopup  bool
	}{posts, opts.Layout, opts.Columns, opts.ShowCaptions, opts.OpenInPopup}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "feed", data); err != nil {
		return "", fmt.Errorf("failed to render feed: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// RenderError implements feed.Renderer; fetch failures become an inline
// notice, never a failed page
func (r *HTMLRenderer) RenderError(message string) template.HTML {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "error", message); err != nil {
		return template.HTML("<div class=\"whatsfeed whatsfeed-error\"></div>")
	}
	return template.HTML(buf.String())
}
