package render

import (
	"strings"
	"testing"

	"github.com/whatsondev/whatsfeed/internal/feed"
)

func samplePosts() []feed.Post {
	return []feed.Post{
		{
			ID:        "p1",
			Permalink: "https://www.instagram.com/p/AAA/",
			MediaType: feed.MediaImage,
			MediaURL:  "https://cdn.test/p1.jpg",
			Caption:   "hello <world>",
			Source:    feed.SourceInstagram,
		},
		{
			ID:           "v1",
			Permalink:    "https://www.tiktok.com/@demo/video/v1",
			MediaType:    feed.MediaVideo,
			MediaURL:     "https://cdn.test/v1.jpg",
			ThumbnailURL: "https://cdn.test/v1_thumb.jpg",
			Caption:      "a clip",
			Source:       feed.SourceTikTok,
		},
	}
}

func TestRenderGrid(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := r.Render(samplePosts(), feed.RenderOptions{
		Layout:       feed.LayoutGrid,
		Columns:      4,
		ShowCaptions: true,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	html := string(out)
	if !strings.Contains(html, `whatsfeed-grid`) {
		t.Error("grid class missing")
	}
	if !strings.Contains(html, `--whatsfeed-columns:4`) {
		t.Error("columns style missing")
	}
	if !strings.Contains(html, `https://cdn.test/p1.jpg`) {
		t.Error("image url missing")
	}
	if !strings.Contains(html, "hello &lt;world&gt;") {
		t.Error("caption must be escaped")
	}
	// Video tiles render the thumbnail, not the cover-as-media
	if !strings.Contains(html, `https://cdn.test/v1_thumb.jpg`) {
		t.Error("video thumbnail missing")
	}
	if !strings.Contains(html, `whatsfeed-play`) {
		t.Error("video play overlay missing")
	}
}

func TestRenderOptionsDefaults(t *testing.T) {
	r, _ := New()

	out, err := r.Render(samplePosts(), feed.RenderOptions{Columns: 99})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := string(out)
	if !strings.Contains(html, "whatsfeed-grid") {
		t.Error("layout must default to grid")
	}
	if !strings.Contains(html, "--whatsfeed-columns:3") {
		t.Error("out-of-range columns must clamp to the default")
	}
	if strings.Contains(html, "whatsfeed-caption") {
		t.Error("captions must be off by default")
	}
}

func TestRenderPopupLinks(t *testing.T) {
	r, _ := New()

	out, err := r.Render(samplePosts(), feed.RenderOptions{OpenInPopup: true})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(string(out), `data-popup="true"`) {
		t.Error("popup attribute missing")
	}
	if strings.Contains(string(out), `target="_blank"`) {
		t.Error("popup links must not also open a new tab")
	}
}

func TestRenderError(t *testing.T) {
	r, _ := New()

	out := r.RenderError("instagram feed unavailable")
	if !strings.Contains(string(out), "whatsfeed-error") {
		t.Error("error class missing")
	}
	if !strings.Contains(string(out), "instagram feed unavailable") {
		t.Error("error message missing")
	}
}
