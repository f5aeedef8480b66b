package feed

// MediaType classifies a post's media
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaCarousel MediaType = "carousel"
)

// Source identifies the platform a post came from
type Source string

const (
	SourceInstagram Source = "instagram"
	SourceTikTok    Source = "tiktok"
)

// CarouselItem is one child of a carousel post
type CarouselItem struct {
	MediaType MediaType `json:"media_type"`
	MediaURL  string    `json:"media_url"`
	VideoURL  string    `json:"video_url,omitempty"`
}

// Post is the normalized shape every fetcher produces, regardless of which
// upstream strategy supplied the raw data
type Post struct {
	ID            string         `json:"id"`
	Permalink     string         `json:"permalink"`
	MediaType     MediaType      `json:"media_type"`
	MediaURL      string         `json:"media_url"`
	ThumbnailURL  string         `json:"thumbnail_url,omitempty"`
	VideoURL      string         `json:"video_url,omitempty"`
	Caption       string         `json:"caption"`
	Timestamp     int64          `json:"timestamp"`
	Source        Source         `json:"source"`
	Username      string         `json:"username,omitempty"`
	CarouselItems []CarouselItem `json:"carousel_items,omitempty"`
}

// Renderable reports whether the post satisfies the media invariants:
// MediaURL must resolve to an asset, and a video must carry either a video
// URL or a thumbnail to fall back on.
func (p Post) Renderable() bool {
	if p.MediaURL == "" {
		return false
	}
	if p.MediaType == MediaVideo && p.VideoURL == "" && p.ThumbnailURL == "" {
		return false
	}
	return true
}
