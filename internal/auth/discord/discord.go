// Package discord implements the Discord half of the account link: the
// OAuth2 consent/exchange/refresh legs, the identity lookup, and the
// linked-role connection endpoint used to publish role metadata.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nexusmods/modlink/internal/db/models"
)

const apiBase = "https://discord.com/api/v10"

// Endpoint is Discord's OAuth2 endpoint set.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  apiBase + "/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Scopes cover reading the user identity and writing role-connection data.
var Scopes = []string{"identify", "role_connections.write"}

// Identity is the subset of the authorization info we keep for a Discord user.
type Identity struct {
	ID   string
	Name string
}

// RoleConnection is the payload of the role-connection endpoint. The metadata
// values are 0/1 integers; the endpoint rejects native booleans.
type RoleConnection struct {
	PlatformName     string         `json:"platform_name"`
	PlatformUsername string         `json:"platform_username"`
	Metadata         map[string]int `json:"metadata"`
}

// Client talks to Discord's OAuth2 and REST endpoints for a single
// application.
type Client struct {
	cfg  *oauth2.Config
	http *http.Client
	log  zerolog.Logger
}

// New builds a Discord client. publicURL is the base used for the redirect
// URI registered in the developer portal.
func New(clientID, clientSecret, publicURL string, log zerolog.Logger) *Client {
	return &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  publicURL + "/discord-oauth-callback",
			Scopes:       Scopes,
			Endpoint:     Endpoint,
		},
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.With().Str("component", "discord").Logger(),
	}
}

func (c *Client) Name() string { return "discord" }

// AuthCodeURL returns the consent URL carrying state as the CSRF token.
func (c *Client) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange swaps an authorization code for a token bundle.
func (c *Client) Exchange(ctx context.Context, code string) (models.TokenBundle, error) {
	tok, err := c.cfg.Exchange(ctx, code)
	if err != nil {
		return models.TokenBundle{}, fmt.Errorf("discord code exchange: %w", err)
	}
	return fromOAuth2(tok), nil
}

// Refresh obtains a fresh bundle from the stored refresh token. The caller
// decides whether a failure is terminal; no retries happen here.
func (c *Client) Refresh(ctx context.Context, bundle models.TokenBundle) (models.TokenBundle, error) {
	src := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: bundle.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return models.TokenBundle{}, err
	}
	return fromOAuth2(tok), nil
}

// Identity fetches the authorizing user's id and display name.
func (c *Client) Identity(ctx context.Context, accessToken string) (Identity, error) {
	var out struct {
		User struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			Discriminator string `json:"discriminator"`
			GlobalName    string `json:"global_name"`
		} `json:"user"`
	}
	if err := c.get(ctx, apiBase+"/oauth2/@me", accessToken, &out); err != nil {
		return Identity{}, fmt.Errorf("discord identity: %w", err)
	}

	name := out.User.Username
	// Legacy accounts still carry a non-zero discriminator.
	if out.User.Discriminator != "" && out.User.Discriminator != "0" {
		name = out.User.Username + "#" + out.User.Discriminator
	}
	return Identity{ID: out.User.ID, Name: name}, nil
}

// PutRoleConnection upserts the role-connection record for the authorizing
// user. Pushing the same payload twice is a no-op on Discord's side.
func (c *Client) PutRoleConnection(ctx context.Context, accessToken string, rc RoleConnection) error {
	body, err := json.Marshal(rc)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/users/@me/applications/%s/role-connection", apiBase, c.cfg.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push role connection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push role connection: discord responded %d: %s", resp.StatusCode, detail)
	}

	c.log.Debug().Str("user", rc.PlatformUsername).Msg("role connection updated")
	return nil
}

// GetRoleConnection reads back the current role-connection record.
func (c *Client) GetRoleConnection(ctx context.Context, accessToken string) (RoleConnection, error) {
	var rc RoleConnection
	url := fmt.Sprintf("%s/users/@me/applications/%s/role-connection", apiBase, c.cfg.ClientID)
	if err := c.get(ctx, url, accessToken, &rc); err != nil {
		return RoleConnection{}, fmt.Errorf("get role connection: %w", err)
	}
	return rc, nil
}

func (c *Client) get(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord responded %d: %s", resp.StatusCode, detail)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fromOAuth2(tok *oauth2.Token) models.TokenBundle {
	return models.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}
