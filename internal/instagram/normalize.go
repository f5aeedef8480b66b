package instagram

import (
	"strings"
	"time"

	"github.com/whatsondev/whatsfeed/internal/feed"
)

// mediaNode is a timeline media node as the web surfaces serve it
type mediaNode struct {
	ID                 string `json:"id"`
	Shortcode          string `json:"shortcode"`
	DisplayURL         string `json:"display_url"`
	ThumbnailSrc       string `json:"thumbnail_src"`
	IsVideo            bool   `json:"is_video"`
	VideoURL           string `json:"video_url"`
	TakenAtTimestamp   int64  `json:"taken_at_timestamp"`
	EdgeMediaToCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	Owner struct {
		Username string `json:"username"`
	} `json:"owner"`
	EdgeSidecarToChildren *timelineMedia `json:"edge_sidecar_to_children"`
}

// timelineToPosts normalizes a scraped timeline, dropping anything that
// would not render
func timelineToPosts(user *profileUser, fallbackUsername string, limit int) []feed.Post {
	posts := make([]feed.Post, 0, limit)
	for _, edge := range user.Timeline.Edges {
		if len(posts) >= limit {
			break
		}
		post := nodeToPost(edge.Node, fallbackUsername)
		if !post.Renderable() {
			continue
		}
		posts = append(posts, post)
	}
	return posts
}

func nodeToPost(node mediaNode, fallbackUsername string) feed.Post {
	mediaURL := node.DisplayURL
	if mediaURL == "" {
		mediaURL = node.ThumbnailSrc
	}

	post := feed.Post{
		ID:           node.ID,
		Permalink:    "https://www.instagram.com/p/" + node.Shortcode + "/",
		MediaType:    feed.MediaImage,
		MediaURL:     mediaURL,
		ThumbnailURL: node.ThumbnailSrc,
		Caption:      nodeCaption(node),
		Timestamp:    node.TakenAtTimestamp,
		Source:       feed.SourceInstagram,
		Username:     node.Owner.Username,
	}
	if post.Username == "" {
		post.Username = fallbackUsername
	}

	if node.IsVideo {
		post.MediaType = feed.MediaVideo
		post.VideoURL = node.VideoURL
		if post.ThumbnailURL == "" {
			post.ThumbnailURL = mediaURL
		}
	}

	if node.EdgeSidecarToChildren != nil && len(node.EdgeSidecarToChildren.Edges) > 0 {
		post.MediaType = feed.MediaCarousel
		for _, child := range node.EdgeSidecarToChildren.Edges {
			item := feed.CarouselItem{
				MediaType: feed.MediaImage,
				MediaURL:  child.Node.DisplayURL,
			}
			if child.Node.IsVideo {
				item.MediaType = feed.MediaVideo
				item.VideoURL = child.Node.VideoURL
			}
			post.CarouselItems = append(post.CarouselItems, item)
		}
	}
	return post
}

func nodeCaption(node mediaNode) string {
	if len(node.EdgeMediaToCaption.Edges) == 0 {
		return ""
	}
	return node.EdgeMediaToCaption.Edges[0].Node.Text
}

// Graph API timestamps come in ISO 8601, with and without a colon in the
// zone offset
var graphTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

func graphMediaToPost(item graphMedia, username string) feed.Post {
	post := feed.Post{
		ID:        item.ID,
		Permalink: item.Permalink,
		MediaType: feed.MediaImage,
		MediaURL:  item.MediaURL,
		Caption:   item.Caption,
		Timestamp: parseGraphTime(item.Timestamp),
		Source:    feed.SourceInstagram,
		Username:  username,
	}

	switch strings.ToUpper(item.MediaType) {
	case "VIDEO":
		post.MediaType = feed.MediaVideo
		post.VideoURL = item.MediaURL
		post.ThumbnailURL = item.ThumbnailURL
		if post.ThumbnailURL == "" {
			post.ThumbnailURL = item.MediaURL
		}
	case "CAROUSEL_ALBUM":
		post.MediaType = feed.MediaCarousel
	}
	return post
}

func parseGraphTime(value string) int64 {
	for _, layout := range graphTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Unix()
		}
	}
	return 0
}
