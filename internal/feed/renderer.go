package feed

import "html/template"

// Layout selects how a feed is displayed
type Layout string

const (
	LayoutGrid     Layout = "grid"
	LayoutCarousel Layout = "carousel"
)

// RenderOptions are the display knobs the embedding site controls
type RenderOptions struct {
	Layout       Layout
	Columns      int // 1..6
	ShowCaptions bool
	OpenInPopup  bool
}

// Renderer turns a normalized post list into embeddable markup. Rendering
// is an external collaborator; the fetch pipeline only depends on this
// contract.
type Renderer interface {
	Render(posts []Post, opts RenderOptions) (template.HTML, error)
	RenderError(message string) template.HTML
}
