// Package token owns the access/refresh lifecycle for provider token bundles.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nexusmods/modlink/internal/db/models"
)

// Skew is how close to expiry an access token may get before it is refreshed
// rather than reused.
const Skew = 5 * time.Minute

// ErrAuthExpired means the provider rejected the refresh token itself. The
// only recovery is re-linking the account; this is distinct from a transient
// network failure, which callers may retry.
var ErrAuthExpired = errors.New("authorization expired, account must be re-linked")

// Refresher exchanges a refresh token for a new bundle at the provider.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context, bundle models.TokenBundle) (models.TokenBundle, error)
}

// Manager hands out valid access tokens, refreshing through the provider on
// demand. It performs no retries; retry policy belongs to the caller.
type Manager struct {
	log zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log.With().Str("component", "token").Logger()}
}

// Valid returns a usable access token for bundle. When the cached token is
// within Skew of expiry it is refreshed through r, the bundle's fields are
// replaced in place, and persist (when non-nil) is invoked to write the
// updated bundle through the storage collaborator before the token is
// returned. A rejected refresh token surfaces as ErrAuthExpired.
func (m *Manager) Valid(ctx context.Context, bundle *models.TokenBundle, r Refresher, persist func(context.Context) error) (string, error) {
	if bundle.AccessToken != "" && time.Now().Before(bundle.ExpiresAt.Add(-Skew)) {
		return bundle.AccessToken, nil
	}
	if bundle.RefreshToken == "" {
		return "", fmt.Errorf("%s: no refresh token: %w", r.Name(), ErrAuthExpired)
	}

	fresh, err := r.Refresh(ctx, *bundle)
	if err != nil {
		if isPermanentRefreshError(err) {
			m.log.Warn().Str("provider", r.Name()).Err(err).Msg("refresh token rejected")
			return "", fmt.Errorf("%s: %v: %w", r.Name(), err, ErrAuthExpired)
		}
		return "", fmt.Errorf("%s: refresh: %w", r.Name(), err)
	}

	// Providers may rotate the refresh token; keep the old one when the
	// response omits it.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = bundle.RefreshToken
	}
	*bundle = fresh

	if persist != nil {
		if err := persist(ctx); err != nil {
			return "", fmt.Errorf("persist refreshed %s bundle: %w", r.Name(), err)
		}
	}

	m.log.Debug().
		Str("provider", r.Name()).
		Time("expires", bundle.ExpiresAt).
		Msg("access token refreshed")
	return bundle.AccessToken, nil
}

// isPermanentRefreshError distinguishes a rejected grant from a transient
// upstream failure.
func isPermanentRefreshError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		if code == 400 || code == 401 || code == 403 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
