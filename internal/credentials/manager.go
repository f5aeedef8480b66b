package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/internal/settings"
	"github.com/whatsondev/whatsfeed/pkg/config"
	"github.com/whatsondev/whatsfeed/pkg/logging"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// UsernameResolver resolves a platform user ID from a configured username.
// The Instagram scraping client implements this; the manager takes the
// interface so identity resolution can reuse the scrape chain without a
// package cycle.
type UsernameResolver interface {
	ResolveUserID(ctx context.Context, username string) (string, error)
}

// Manager owns the credential lifecycle for both platforms. It is the only
// writer of credential records; fetchers read records and trigger refreshes
// through it.
type Manager struct {
	store     settings.Store
	http      *http.Client
	instagram config.InstagramConfig
	tiktok    config.TikTokConfig
	siteURL   string
	resolver  UsernameResolver
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager creates a credential manager
func NewManager(store settings.Store, httpClient *http.Client, cfg *config.Config) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Feed.UpstreamTimeout}
	}
	return &Manager{
		store:     store,
		http:      httpClient,
		instagram: cfg.Instagram,
		tiktok:    cfg.TikTok,
		siteURL:   cfg.Site.URL,
		logger:    logging.GetLogger().With(zap.String("component", "credential-manager")),
		now:       time.Now,
	}
}

// SetUsernameResolver wires the scraping-based identity resolver
func (m *Manager) SetUsernameResolver(r UsernameResolver) {
	m.resolver = r
}

// Load returns the current credential record for a platform. Absent
// credentials come back as a zero Record, never an error.
func (m *Manager) Load(ctx context.Context, platform feed.Source) Record {
	return loadRecord(ctx, m.store, platform)
}

// Save persists a full credential record. Token and identity always travel
// together through here; there is no partial-field write path.
func (m *Manager) Save(ctx context.Context, platform feed.Source, rec Record) error {
	return saveRecord(ctx, m.store, platform, rec)
}

// ResolveAuthMode decides which authentication strategy is active. A
// configured username wins over a token: the public path degrades
// gracefully and never produces token errors.
func (m *Manager) ResolveAuthMode(ctx context.Context, platform feed.Source) AuthMode {
	rec := m.Load(ctx, platform)
	if platform == feed.SourceInstagram && rec.Username != "" {
		return UsernameBased
	}
	if rec.AccessToken != "" {
		return TokenBased
	}
	return Unconfigured
}

// graphErrorEnvelope is the error shape shared by the Graph-style APIs
type graphErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// IsTokenValid probes the platform with the stored token. Username-based
// mode always reports valid: remote validation there can only produce
// false negatives that would block an auth-free path. Unknown errors
// default to valid so a transient upstream hiccup never locks the feed out.
func (m *Manager) IsTokenValid(ctx context.Context, platform feed.Source) bool {
	ctx, span := telemetry.StartSpan(ctx, "credentials.is_token_valid")
	defer span.End()

	if m.ResolveAuthMode(ctx, platform) == UsernameBased {
		return true
	}

	rec := m.Load(ctx, platform)
	if rec.AccessToken == "" {
		return false
	}

	status, body, err := m.probeToken(ctx, platform, rec.AccessToken)
	if err != nil {
		m.logger.Warn("token probe failed, assuming valid",
			zap.String("platform", string(platform)), zap.Error(err))
		return true
	}

	if status == http.StatusOK {
		m.ClearDecryptionErrorFlag(ctx)
		return true
	}

	var envelope graphErrorEnvelope
	if json.Unmarshal(body, &envelope) == nil {
		kind := feed.ClassifyUpstreamError(envelope.Error.Code, envelope.Error.Message)
		if feed.IsTokenFailure(kind) {
			m.SetDecryptionErrorFlag(ctx, platform)
			return false
		}
	}

	// Optimistic default on anything we cannot classify
	return true
}

func (m *Manager) probeToken(ctx context.Context, platform feed.Source, token string) (int, []byte, error) {
	var probeURL string
	var header http.Header
	switch platform {
	case feed.SourceTikTok:
		probeURL = m.tiktok.APIURL + "/v2/user/info/?fields=open_id"
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	default:
		probeURL = fmt.Sprintf("%s/me?fields=id,username&access_token=%s",
			m.instagram.GraphURL, url.QueryEscape(token))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// RefreshToken exchanges the current token for a fresh one. Exactly one
// attempt; on failure the stale record stays untouched and the caller must
// surface an error rather than proceed. Username-based mode is a no-op
// success that also clears the error flag.
func (m *Manager) RefreshToken(ctx context.Context, platform feed.Source) bool {
	ctx, span := telemetry.StartSpan(ctx, "credentials.refresh_token")
	defer span.End()

	if m.ResolveAuthMode(ctx, platform) == UsernameBased {
		m.ClearDecryptionErrorFlag(ctx)
		return true
	}

	rec := m.Load(ctx, platform)
	if rec.AccessToken == "" {
		return false
	}

	var refreshed Record
	var err error
	switch platform {
	case feed.SourceTikTok:
		refreshed, err = m.refreshTikTok(ctx, rec)
	default:
		refreshed, err = m.refreshInstagram(ctx, rec)
	}
	if err != nil {
		m.logger.Warn("token refresh failed",
			zap.String("platform", string(platform)), zap.Error(err))
		return false
	}

	if err := m.Save(ctx, platform, refreshed); err != nil {
		m.logger.Error("failed to persist refreshed token",
			zap.String("platform", string(platform)), zap.Error(err))
		return false
	}

	m.ClearDecryptionErrorFlag(ctx)
	m.store.SetExpiring(ctx, flagTokenRefreshed+":"+string(platform), "1", refreshedFlagTTL)
	m.logger.Info("token refreshed", zap.String("platform", string(platform)))
	return true
}

func (m *Manager) refreshInstagram(ctx context.Context, rec Record) (Record, error) {
	refreshURL := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		m.instagram.GraphURL, url.QueryEscape(rec.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return Record{}, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Record{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if payload.AccessToken == "" || payload.ExpiresIn == 0 {
		return Record{}, fmt.Errorf("refresh response missing token or expiry (status %d)", resp.StatusCode)
	}

	rec.AccessToken = payload.AccessToken
	rec.TokenExpiresAt = m.now().Unix() + payload.ExpiresIn
	return rec, nil
}

func (m *Manager) refreshTikTok(ctx context.Context, rec Record) (Record, error) {
	if rec.RefreshToken == "" {
		return Record{}, fmt.Errorf("no refresh token stored")
	}

	form := url.Values{}
	form.Set("client_key", m.tiktok.ClientKey)
	form.Set("client_secret", m.tiktok.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rec.RefreshToken)

	tokenURL := m.tiktok.APIURL + "/v2/oauth/token/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		OpenID       string `json:"open_id"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Record{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if payload.AccessToken == "" {
		return Record{}, fmt.Errorf("refresh response missing token (status %d)", resp.StatusCode)
	}

	rec.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		rec.RefreshToken = payload.RefreshToken
	}
	if payload.OpenID != "" {
		rec.IdentityID = payload.OpenID
		rec.IdentitySynthetic = false
	}
	if payload.ExpiresIn > 0 {
		rec.TokenExpiresAt = m.now().Unix() + payload.ExpiresIn
	}
	return rec, nil
}

// ResolveUserID resolves a platform identity for an access token, trying
// each strategy in order and persisting whichever one wins. The final
// synthetic fallback keeps rendering functional but is flagged as such on
// the stored record.
func (m *Manager) ResolveUserID(ctx context.Context, platform feed.Source, accessToken string) string {
	ctx, span := telemetry.StartSpan(ctx, "credentials.resolve_user_id")
	defer span.End()

	rec := m.Load(ctx, platform)

	// Demo tokens can never resolve remotely; go straight to the username path
	if !strings.HasPrefix(accessToken, demoTokenPrefix) {
		if id := m.resolveBusinessAccount(ctx, accessToken); id != "" {
			rec.IdentityID = id
			rec.IdentitySynthetic = false
			m.persistIdentity(ctx, platform, rec)
			return id
		}
	}

	if m.resolver != nil && rec.Username != "" {
		if id, err := m.resolver.ResolveUserID(ctx, rec.Username); err == nil && id != "" {
			rec.IdentityID = id
			rec.IdentitySynthetic = false
			m.persistIdentity(ctx, platform, rec)
			return id
		}
	}

	// Last resort: a synthetic numeric ID, persisted before return so the
	// system stays functional, and flagged so it is never mistaken for a
	// real platform ID
	id := m.fallbackUserID()
	rec.IdentityID = id
	rec.IdentitySynthetic = true
	m.persistIdentity(ctx, platform, rec)
	m.logger.Warn("identity resolution failed, using synthetic fallback id",
		zap.String("platform", string(platform)), zap.String("user_id", id))
	return id
}

func (m *Manager) persistIdentity(ctx context.Context, platform feed.Source, rec Record) {
	if err := m.Save(ctx, platform, rec); err != nil {
		m.logger.Error("failed to persist resolved identity",
			zap.String("platform", string(platform)), zap.Error(err))
	}
}

// resolveBusinessAccount drills from the token's pages into the linked
// business account id
func (m *Manager) resolveBusinessAccount(ctx context.Context, accessToken string) string {
	accountsURL := fmt.Sprintf("%s/me/accounts?fields=instagram_business_account&access_token=%s",
		m.instagram.PagesURL, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, accountsURL, nil)
	if err != nil {
		return ""
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var payload struct {
		Data []struct {
			InstagramBusinessAccount struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	for _, page := range payload.Data {
		if page.InstagramBusinessAccount.ID != "" {
			return page.InstagramBusinessAccount.ID
		}
	}
	return ""
}

// fallbackUserID synthesizes a numeric ID: fixed prefix 1234 plus seven
// random digits. The package-level source is mutex-guarded, so concurrent
// handlers may call this freely.
func (m *Manager) fallbackUserID() string {
	return fmt.Sprintf("1234%d", 1000000+rand.Intn(9000000))
}

// SetDecryptionErrorFlag raises the 24h operator-visible decryption flag
func (m *Manager) SetDecryptionErrorFlag(ctx context.Context, platform feed.Source) {
	m.store.SetExpiring(ctx, flagDecryptionError, string(platform), decryptionFlagTTL)
}

// ClearDecryptionErrorFlag clears the decryption flag
func (m *Manager) ClearDecryptionErrorFlag(ctx context.Context) {
	m.store.DeleteExpiring(ctx, flagDecryptionError)
}

// HasDecryptionError reports which platform, if any, raised the flag
func (m *Manager) HasDecryptionError(ctx context.Context) (feed.Source, bool) {
	v, ok := m.store.GetExpiring(ctx, flagDecryptionError)
	if !ok {
		return "", false
	}
	return feed.Source(v), true
}
