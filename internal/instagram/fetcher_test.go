package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/whatsondev/whatsfeed/internal/cache"
	"github.com/whatsondev/whatsfeed/internal/credentials"
	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/internal/settings"
	"github.com/whatsondev/whatsfeed/pkg/config"
)

type fixture struct {
	fetcher *Fetcher
	creds   *credentials.Manager
	store   *settings.MemoryStore
	calls   *int64
}

// newFixture wires a fetcher against a fake upstream. Every request to the
// fake counts toward calls.
func newFixture(t *testing.T, handler http.Handler) (*fixture, func()) {
	t.Helper()

	var calls int64
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(counting)

	cfg := &config.Config{
		Site: config.SiteConfig{URL: "https://example.test"},
		Instagram: config.InstagramConfig{
			GraphURL:  srv.URL,
			WebURL:    srv.URL,
			AppAPIURL: srv.URL,
			OAuthURL:  srv.URL,
			PagesURL:  srv.URL,
			AppID:     "936619743392459",
		},
		Feed: config.FeedConfig{
			CacheTTL:        time.Hour,
			UpstreamTimeout: 2 * time.Second,
		},
	}

	store := settings.NewMemoryStore()
	httpClient := &http.Client{Timeout: 2 * time.Second}
	creds := credentials.NewManager(store, httpClient, cfg)
	client := NewClient(httpClient, cfg.Instagram)
	creds.SetUsernameResolver(client)

	f := &fixture{
		fetcher: NewFetcher(client, creds, cache.NewTransient(store), cfg),
		creds:   creds,
		store:   store,
		calls:   &calls,
	}
	return f, srv.Close
}

func (f *fixture) upstreamCalls() int64 {
	return atomic.LoadInt64(f.calls)
}

const profileInfoBody = `{
	"data": {
		"user": {
			"id": "320754",
			"username": "natgeo",
			"is_private": false,
			"edge_owner_to_timeline_media": {
				"edges": [
					{"node": {
						"id": "p1", "shortcode": "AAA",
						"display_url": "https://cdn.test/p1.jpg",
						"thumbnail_src": "https://cdn.test/p1_thumb.jpg",
						"is_video": false,
						"taken_at_timestamp": 1700000000,
						"edge_media_to_caption": {"edges": [{"node": {"text": "first"}}]}
					}},
					{"node": {
						"id": "p2", "shortcode": "BBB",
						"display_url": "https://cdn.test/p2.jpg",
						"is_video": true,
						"video_url": "https://cdn.test/p2.mp4",
						"taken_at_timestamp": 1700000100
					}}
				]
			}
		}
	}
}`

func TestFetchByUsername(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-ig-app-id") != "936619743392459" {
			t.Errorf("missing x-ig-app-id header")
		}
		w.Write([]byte(profileInfoBody))
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "natgeo"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if outcome.IsError() {
		t.Fatalf("Fetch() error = %v", outcome.Err)
	}
	if len(outcome.Posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(outcome.Posts))
	}

	first := outcome.Posts[0]
	if first.Permalink != "https://www.instagram.com/p/AAA/" {
		t.Errorf("Permalink = %q", first.Permalink)
	}
	if first.Caption != "first" || first.MediaType != feed.MediaImage {
		t.Errorf("first post = %+v", first)
	}

	video := outcome.Posts[1]
	if video.MediaType != feed.MediaVideo || video.VideoURL != "https://cdn.test/p2.mp4" {
		t.Errorf("video post = %+v", video)
	}
	if video.ThumbnailURL != "https://cdn.test/p2.jpg" {
		t.Errorf("video thumbnail must fall back to display url, got %q", video.ThumbnailURL)
	}
}

func TestPrivateAccountShortCircuits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"user":{"id":"1","username":"hidden","is_private":true,
			"edge_owner_to_timeline_media":{"edges":[]}}}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request after private signal: %s", r.URL.Path)
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "hidden"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindPrivateAccount {
		t.Fatalf("outcome = %+v, want PrivateAccount error", outcome)
	}
	if got := f.upstreamCalls(); got != 1 {
		t.Errorf("upstream calls = %d, want exactly 1", got)
	}
}

func TestPrivateAccountWithVisiblePostsStillFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		// Some surfaces leak a partial timeline for private profiles; the
		// privacy signal still wins
		w.Write([]byte(`{"data":{"user":{"id":"1","username":"hidden","is_private":true,
			"edge_owner_to_timeline_media":{"edges":[{"node":{
				"id":"x1","shortcode":"XXX","display_url":"https://cdn.test/x1.jpg",
				"taken_at_timestamp":1700000000}}]}}}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request after private signal: %s", r.URL.Path)
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "hidden"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindPrivateAccount {
		t.Fatalf("outcome = %+v, want PrivateAccount error", outcome)
	}
}

func TestAllStrategiesRejectedIsNoPostsFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "natgeo"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindNoPostsFound {
		t.Fatalf("outcome = %+v, want NoPostsFound when upstream rejects every strategy", outcome)
	}
	if outcome.Err.Retriable() {
		t.Error("upstream rejection must not be labeled retriable")
	}
}

func TestUpstreamUnreachableIsTransport(t *testing.T) {
	f, done := newFixture(t, http.NotFoundHandler())
	done() // no listener left; every request fails at the dial

	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "natgeo"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindTransport {
		t.Fatalf("outcome = %+v, want Transport when the host is unreachable", outcome)
	}
	if !outcome.Err.Retriable() {
		t.Error("transport failures are retriable")
	}
}

func TestScrapeFallsBackToLegacyJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/natgeo/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("__a") != "1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"graphql":{"user":{"id":"320754","username":"natgeo",
			"edge_owner_to_timeline_media":{"edges":[{"node":{
				"id":"p9","shortcode":"ZZZ","display_url":"https://cdn.test/p9.jpg",
				"taken_at_timestamp":1700000000}}]}}}}`))
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "natgeo"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if outcome.IsError() {
		t.Fatalf("Fetch() error = %v", outcome.Err)
	}
	if len(outcome.Posts) != 1 || outcome.Posts[0].ID != "p9" {
		t.Errorf("posts = %+v", outcome.Posts)
	}
}

func TestEmbeddedHTMLStrategy(t *testing.T) {
	html := `<html><body>
	<script type="application/json" data-sjs>{"require":[{"data":{"user":{"id":"88","username":"natgeo","is_private":false,"edge_owner_to_timeline_media":{"edges":[{"node":{"id":"h1","shortcode":"HHH","display_url":"https://cdn.test/h1.jpg","taken_at_timestamp":1700000000}}]}}}}]}</script>
	</body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/natgeo/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("__a") == "1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(html))
	})
	mux.HandleFunc("/graphql/query/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "natgeo"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if outcome.IsError() {
		t.Fatalf("Fetch() error = %v", outcome.Err)
	}
	if len(outcome.Posts) != 1 || outcome.Posts[0].ID != "h1" {
		t.Errorf("posts = %+v", outcome.Posts)
	}
}

func TestAllStrategiesDryIsNoPostsFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		// Profile reachable but timeline empty
		w.Write([]byte(`{"data":{"user":{"id":"1","username":"quiet","is_private":false,
			"edge_owner_to_timeline_media":{"edges":[]}}}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "quiet"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindNoPostsFound {
		t.Fatalf("outcome = %+v, want NoPostsFound", outcome)
	}
}

func TestMissingCredentials(t *testing.T) {
	f, done := newFixture(t, http.NotFoundHandler())
	defer done()

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindMissingCredentials {
		t.Fatalf("outcome = %+v, want MissingCredentials", outcome)
	}
	if got := f.upstreamCalls(); got != 0 {
		t.Errorf("upstream calls = %d, want 0", got)
	}
}

func TestFetchServesFromCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(profileInfoBody))
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram, credentials.Record{Username: "natgeo"})

	first := f.fetcher.Fetch(context.Background(), 6)
	if first.IsError() {
		t.Fatalf("first Fetch() error = %v", first.Err)
	}
	callsAfterFirst := f.upstreamCalls()

	second := f.fetcher.Fetch(context.Background(), 6)
	if second.IsError() {
		t.Fatalf("second Fetch() error = %v", second.Err)
	}
	if got := f.upstreamCalls(); got != callsAfterFirst {
		t.Errorf("cached fetch made %d extra upstream calls", got-callsAfterFirst)
	}
	if len(second.Posts) != len(first.Posts) {
		t.Errorf("cache round-trip changed post count: %d vs %d", len(second.Posts), len(first.Posts))
	}
}

func TestTokenPathMediaListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"17841400000000000","username":"natgeo"}`))
	})
	mux.HandleFunc("/me/media", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"m1","caption":"hello","media_type":"IMAGE","media_url":"https://cdn.test/m1.jpg",
			 "permalink":"https://www.instagram.com/p/M1/","timestamp":"2026-08-01T10:00:00+0000"},
			{"id":"m2","media_type":"VIDEO","media_url":"https://cdn.test/m2.mp4",
			 "permalink":"https://www.instagram.com/p/M2/","thumbnail_url":"https://cdn.test/m2.jpg",
			 "timestamp":"2026-08-02T10:00:00+0000"}
		]}`))
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram,
		credentials.Record{AccessToken: "tok", IdentityID: "17841400000000000"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if outcome.IsError() {
		t.Fatalf("Fetch() error = %v", outcome.Err)
	}
	if len(outcome.Posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(outcome.Posts))
	}

	video := outcome.Posts[1]
	if video.MediaType != feed.MediaVideo {
		t.Errorf("MediaType = %s", video.MediaType)
	}
	if video.VideoURL != "https://cdn.test/m2.mp4" || video.ThumbnailURL != "https://cdn.test/m2.jpg" {
		t.Errorf("video mapping wrong: %+v", video)
	}
	if outcome.Posts[0].Timestamp == 0 {
		t.Error("graph timestamp did not parse")
	}
}

func TestTokenPathExpiredRecordRefreshesWithoutProbe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		t.Error("a token past its stored expiry must not be probed")
	})
	mux.HandleFunc("/refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"fresh_token","expires_in":5184000}`))
	})
	mux.HandleFunc("/me/media", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "fresh_token" {
			t.Errorf("media listing used %q, want the refreshed token", r.URL.Query().Get("access_token"))
		}
		w.Write([]byte(`{"data":[
			{"id":"m1","media_type":"IMAGE","media_url":"https://cdn.test/m1.jpg",
			 "permalink":"https://www.instagram.com/p/M1/","timestamp":"2026-08-01T10:00:00+0000"}
		]}`))
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram,
		credentials.Record{AccessToken: "stale", IdentityID: "1", TokenExpiresAt: 1})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if outcome.IsError() {
		t.Fatalf("Fetch() error = %v", outcome.Err)
	}
	if len(outcome.Posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(outcome.Posts))
	}
	if rec := f.creds.Load(context.Background(), feed.SourceInstagram); rec.AccessToken != "fresh_token" {
		t.Errorf("stored token = %q, want the refreshed one", rec.AccessToken)
	}
}

func TestTokenPathDecryptionErrorSetsFlag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"1","username":"natgeo"}`))
	})
	mux.HandleFunc("/me/media", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"The access token could not be decrypted","code":100}}`))
	})

	f, done := newFixture(t, mux)
	defer done()
	f.creds.Save(context.Background(), feed.SourceInstagram,
		credentials.Record{AccessToken: "tok", IdentityID: "1"})

	outcome := f.fetcher.Fetch(context.Background(), 6)
	if !outcome.IsError() || outcome.Err.Kind != feed.KindCorruptedToken {
		t.Fatalf("outcome = %+v, want CorruptedToken", outcome)
	}
	if outcome.Err.Retriable() {
		t.Error("corrupted token must not be retriable")
	}
	if _, flagged := f.creds.HasDecryptionError(context.Background()); !flagged {
		t.Error("decryption flag not set")
	}
}

func TestResolveUserIDFromHTMLPatterns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/natgeo/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("__a") == "1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`<html><body><div id="profilePage_320754"></div></body></html>`))
	})

	f, done := newFixture(t, mux)
	defer done()

	id, err := f.fetcher.client.ResolveUserID(context.Background(), "natgeo")
	if err != nil {
		t.Fatalf("ResolveUserID() error = %v", err)
	}
	if id != "320754" {
		t.Errorf("ResolveUserID() = %q, want 320754", id)
	}
}
