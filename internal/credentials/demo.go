package credentials

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/whatsondev/whatsfeed/internal/feed"
)

// demoTokenPrefix marks synthesized credentials. Tokens carrying it never
// hit remote identity resolution.
const demoTokenPrefix = "demo_"

// seededHash derives a deterministic-looking identifier fragment from the
// site seed and the current time, so demo credentials differ per site and
// per generation without being obviously random garbage
func (m *Manager) seededHash(n int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", m.siteURL, m.now().UnixNano())))
	h := hex.EncodeToString(sum[:])
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

// GenerateDemoCredentials synthesizes and persists a demo credential record
// for a platform. This is an explicit operator action for previewing the
// feed surface without real platform credentials; it is never triggered
// automatically, and the 7-day demo flag keeps the state visible in
// diagnostics.
func (m *Manager) GenerateDemoCredentials(ctx context.Context, platform feed.Source) (Record, error) {
	rec := m.Load(ctx, platform)
	rec.IsDemo = true
	rec.RefreshToken = ""
	rec.TokenExpiresAt = 0

	switch platform {
	case feed.SourceTikTok:
		rec.AccessToken = "demo_access_token_" + m.seededHash(16)
		rec.IdentityID = "demo_open_id_" + m.seededHash(10)
		rec.IdentitySynthetic = true
		if rec.Username == "" {
			rec.Username = "demo_tiktok_user"
		}
	default:
		rec.AccessToken = "demo_access_token_" + m.seededHash(16)
		if rec.Username == "" {
			rec.Username = "instagram"
		}
		// A demo identity is synthetic by definition
		rec.IdentityID = m.fallbackUserID()
		rec.IdentitySynthetic = true
	}

	if err := m.Save(ctx, platform, rec); err != nil {
		return Record{}, err
	}
	if err := m.store.SetExpiring(ctx, flagUsingDemo, string(platform), demoFlagTTL); err != nil {
		return Record{}, err
	}

	m.logger.Info("demo credentials generated", zap.String("platform", string(platform)))
	return rec, nil
}

// ClearDemoCredentials removes a platform's credential record and drops the
// demo flag when it points at that platform
func (m *Manager) ClearDemoCredentials(ctx context.Context, platform feed.Source) error {
	if err := deleteRecord(ctx, m.store, platform); err != nil {
		return err
	}
	if v, ok := m.store.GetExpiring(ctx, flagUsingDemo); ok && v == string(platform) {
		return m.store.DeleteExpiring(ctx, flagUsingDemo)
	}
	return nil
}

// UsingDemoCredentials reports which platform, if any, is running on demo
// credentials
func (m *Manager) UsingDemoCredentials(ctx context.Context) (feed.Source, bool) {
	v, ok := m.store.GetExpiring(ctx, flagUsingDemo)
	if !ok {
		return "", false
	}
	return feed.Source(v), true
}
