package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/whatsondev/whatsfeed/internal/feed"
	"github.com/whatsondev/whatsfeed/internal/settings"
)

// AuthMode is the active authentication strategy for a platform
type AuthMode int

const (
	// Unconfigured means neither a username nor an access token is set
	Unconfigured AuthMode = iota
	// TokenBased uses an OAuth access token against the platform API
	TokenBased
	// UsernameBased uses public scraping keyed on a configured username
	UsernameBased
)

func (m AuthMode) String() string {
	switch m {
	case TokenBased:
		return "token"
	case UsernameBased:
		return "username"
	default:
		return "unconfigured"
	}
}

// Record is the single credential aggregate per platform. The token and its
// identity always persist together; partial updates would leave an identity
// pointing at a stale or absent token.
type Record struct {
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TokenExpiresAt int64  `json:"token_expires_at,omitempty"`
	IdentityID     string `json:"identity_id,omitempty"`
	// IdentitySynthetic marks a fallback-generated identity so a fabricated
	// ID is never mistaken for a real platform ID
	IdentitySynthetic bool   `json:"identity_synthetic,omitempty"`
	Username          string `json:"username,omitempty"`
	IsDemo            bool   `json:"is_demo,omitempty"`
}

// TokenExpired reports whether the record carries an expiry in the past
func (r Record) TokenExpired(now time.Time) bool {
	return r.TokenExpiresAt > 0 && now.Unix() >= r.TokenExpiresAt
}

// Settings keys. One JSON aggregate per platform replaces the original
// scatter of flat per-field keys.
const (
	recordKeyPrefix = "credentials:"

	flagDecryptionError = "flag:token_decryption_error"
	flagUsingDemo       = "flag:using_demo_credentials"
	flagTokenRefreshed  = "flag:token_refreshed"

	decryptionFlagTTL = 24 * time.Hour
	demoFlagTTL       = 7 * 24 * time.Hour
	refreshedFlagTTL  = 24 * time.Hour
)

func recordKey(platform feed.Source) string {
	return recordKeyPrefix + string(platform)
}

func loadRecord(ctx context.Context, store settings.Store, platform feed.Source) Record {
	raw := store.GetString(ctx, recordKey(platform), "")
	if raw == "" {
		return Record{}
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}
	}
	return rec
}

func saveRecord(ctx context.Context, store settings.Store, platform feed.Source, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode credential record: %w", err)
	}
	if err := store.SetValue(ctx, recordKey(platform), string(raw)); err != nil {
		return fmt.Errorf("failed to persist credential record: %w", err)
	}
	return nil
}

func deleteRecord(ctx context.Context, store settings.Store, platform feed.Source) error {
	return store.DeleteValue(ctx, recordKey(platform))
}
