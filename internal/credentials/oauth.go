package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/pkg/telemetry"
)

// ExchangeCode turns an OAuth authorization code into a persisted credential
// record. Exchanging new credentials for a platform also drops its demo
// state, since a real token supersedes a synthesized one.
func (m *Manager) ExchangeCode(ctx context.Context, platform feed.Source, code string) (Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "credentials.exchange_code")
	defer span.End()

	if code == "" {
		return Record{}, fmt.Errorf("authorization code is empty")
	}

	var rec Record
	var err error
	switch platform {
	case feed.SourceTikTok:
		rec, err = m.exchangeTikTok(ctx, code)
	case feed.SourceInstagram:
		rec, err = m.exchangeInstagram(ctx, code)
	default:
		return Record{}, fmt.Errorf("unknown platform %q", platform)
	}
	if err != nil {
		return Record{}, err
	}

	// Keep a configured username across credential changes
	prev := m.Load(ctx, platform)
	rec.Username = prev.Username

	if err := m.Save(ctx, platform, rec); err != nil {
		return Record{}, err
	}
	if v, ok := m.store.GetExpiring(ctx, flagUsingDemo); ok && v == string(platform) {
		m.store.DeleteExpiring(ctx, flagUsingDemo)
	}
	m.ClearDecryptionErrorFlag(ctx)

	m.logger.Info("oauth code exchanged", zap.String("platform", string(platform)))
	return rec, nil
}

// exchangeInstagram performs the two-step Instagram exchange: code for a
// short-lived token, then the short-lived token for a long-lived one. The
// short-lived token is never persisted.
func (m *Manager) exchangeInstagram(ctx context.Context, code string) (Record, error) {
	form := url.Values{}
	form.Set("client_id", m.instagram.ClientID)
	form.Set("client_secret", m.instagram.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", m.instagram.RedirectURI)
	form.Set("code", code)

	tokenURL := m.instagram.OAuthURL + "/oauth/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	var short struct {
		AccessToken string      `json:"access_token"`
		UserID      json.Number `json:"user_id"`
		Error       struct {
			Message string `json:"error_message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&short); err != nil {
		return Record{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if short.AccessToken == "" {
		return Record{}, fmt.Errorf("token exchange rejected (status %d): %s", resp.StatusCode, short.Error.Message)
	}

	longToken, expiresIn, err := m.extendInstagramToken(ctx, short.AccessToken)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		AccessToken:    longToken,
		TokenExpiresAt: m.now().Unix() + expiresIn,
		IdentityID:     short.UserID.String(),
	}
	return rec, nil
}

func (m *Manager) extendInstagramToken(ctx context.Context, shortToken string) (string, int64, error) {
	extendURL := fmt.Sprintf("%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		m.instagram.GraphURL, url.QueryEscape(m.instagram.ClientSecret), url.QueryEscape(shortToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, extendURL, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token extension request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("failed to decode extension response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("extension response missing token (status %d)", resp.StatusCode)
	}
	return payload.AccessToken, payload.ExpiresIn, nil
}

func (m *Manager) exchangeTikTok(ctx context.Context, code string) (Record, error) {
	form := url.Values{}
	form.Set("client_key", m.tiktok.ClientKey)
	form.Set("client_secret", m.tiktok.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", m.tiktok.RedirectURI)
	form.Set("code", code)

	tokenURL := m.tiktok.APIURL + "/v2/oauth/token/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		OpenID       string `json:"open_id"`
		ExpiresIn    int64  `json:"expires_in"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Record{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return Record{}, fmt.Errorf("token exchange rejected (status %d): %s", resp.StatusCode, payload.ErrorDesc)
	}

	rec := Record{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		IdentityID:   payload.OpenID,
	}
	if payload.ExpiresIn > 0 {
		rec.TokenExpiresAt = m.now().Unix() + payload.ExpiresIn
	}
	return rec, nil
}
