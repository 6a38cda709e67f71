// Package nexus implements the Nexus Mods half of the account link: OAuth2
// consent/exchange/refresh plus the userinfo endpoint that carries the
// membership roles the linked roles are derived from.
package nexus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nexusmods/modlink/internal/db/models"
)

const usersBase = "https://users.nexusmods.com"

// Endpoint is the Nexus Mods users-service OAuth2 endpoint set.
var Endpoint = oauth2.Endpoint{
	AuthURL:   usersBase + "/oauth/authorize",
	TokenURL:  usersBase + "/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

var Scopes = []string{"openid", "profile", "email"}

// Membership role names as they appear in the userinfo response.
const (
	RoleMember    = "member"
	RoleSupporter = "supporter"
	RolePremium   = "premium"
	RoleModAuthor = "modauthor"
)

// Profile is the userinfo payload for a Nexus Mods account.
type Profile struct {
	Sub             string   `json:"sub"`
	Name            string   `json:"name"`
	Avatar          string   `json:"avatar"`
	MembershipRoles []string `json:"membership_roles"`
}

// NexusID parses the subject into the numeric account id.
func (p Profile) NexusID() int64 {
	id, _ := strconv.ParseInt(p.Sub, 10, 64)
	return id
}

func (p Profile) hasRole(role string) bool {
	for _, r := range p.MembershipRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Premium reports premium membership.
func (p Profile) Premium() bool { return p.hasRole(RolePremium) }

// Supporter is "supporter and not premium": premium supersedes supporter.
func (p Profile) Supporter() bool { return p.hasRole(RoleSupporter) && !p.hasRole(RolePremium) }

// ModAuthor reports recognised mod author status.
func (p Profile) ModAuthor() bool { return p.hasRole(RoleModAuthor) }

// Client talks to the Nexus Mods users service.
type Client struct {
	cfg  *oauth2.Config
	http *http.Client
	log  zerolog.Logger
}

func New(clientID, clientSecret, publicURL string, log zerolog.Logger) *Client {
	return &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  publicURL + "/nexus-mods-callback",
			Scopes:       Scopes,
			Endpoint:     Endpoint,
		},
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.With().Str("component", "nexus").Logger(),
	}
}

func (c *Client) Name() string { return "nexus" }

// AuthCodeURL returns the consent URL. The correlation token from the
// Discord leg is reused as state so the two legs stay bound together.
func (c *Client) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state)
}

func (c *Client) Exchange(ctx context.Context, code string) (models.TokenBundle, error) {
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return models.TokenBundle{}, fmt.Errorf("nexus code exchange: %w", err)
	}
	return fromOAuth2(tok), nil
}

func (c *Client) Refresh(ctx context.Context, bundle models.TokenBundle) (models.TokenBundle, error) {
	src := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: bundle.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.TokenBundle{}, err
	}
	return fromOAuth2(tok), nil
}

// Profile fetches identity and membership attributes for the token's owner.
func (c *Client) Profile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, usersBase+"/oauth/userinfo", nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("nexus userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Profile{}, fmt.Errorf("nexus userinfo: responded %d: %s", resp.StatusCode, detail)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("nexus userinfo: %w", err)
	}
	return p, nil
}

func fromOAuth2(tok *oauth2.Token) models.TokenBundle {
	return models.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}
