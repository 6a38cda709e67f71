// Package nexusapi is a thin client for the Nexus Mods public API v1 and the
// static live-download-counts endpoint.
package nexusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/stats"
	"github.com/nexusmods/modlink/internal/version"
)

const (
	apiBase   = "https://api.nexusmods.com"
	statsBase = "https://staticstats.nexusmods.com/live_download_counts/mods"
)

// Mod statuses indicating the mod was withdrawn from the site.
const (
	StatusRemoved     = "removed"
	StatusWastebinned = "wastebinned"
)

// ModInfo is the subset of the mod endpoint the reconciler cares about.
type ModInfo struct {
	ModID      int64  `json:"mod_id"`
	GameID     int64  `json:"game_id"`
	DomainName string `json:"domain_name"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

// Withdrawn reports whether the mod has been taken down upstream.
func (m ModInfo) Withdrawn() bool {
	return m.Status == StatusRemoved || m.Status == StatusWastebinned
}

// Client calls the Nexus Mods API with a caller-supplied bearer token.
type Client struct {
	http      *http.Client
	apiBase   string
	statsBase string
	log       zerolog.Logger
}

func New(log zerolog.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		apiBase:   apiBase,
		statsBase: statsBase,
		log:       log.With().Str("component", "nexusapi").Logger(),
	}
}

// NewForTest points the client at test servers.
func NewForTest(apiBase, statsBase string, log zerolog.Logger) *Client {
	c := New(log)
	c.apiBase = apiBase
	c.statsBase = statsBase
	return c
}

// ModInfo fetches a single mod's record.
func (c *Client) ModInfo(ctx context.Context, accessToken, domain string, modID int64) (ModInfo, error) {
	url := fmt.Sprintf("%s/v1/games/%s/mods/%d.json", c.apiBase, domain, modID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ModInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Application-Name", "modlink")
	req.Header.Set("Application-Version", version.Version)

	resp, err := c.http.Do(req)
	if err != nil {
		return ModInfo{}, fmt.Errorf("mod info %s/%d: %w", domain, modID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ModInfo{}, fmt.Errorf("mod info %s/%d: responded %d: %s", domain, modID, resp.StatusCode, detail)
	}

	var info ModInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ModInfo{}, fmt.Errorf("mod info %s/%d: %w", domain, modID, err)
	}
	return info, nil
}

// LiveDownloadCounts fetches and parses the per-game counters CSV. The
// endpoint is public; no token is needed.
func (c *Client) LiveDownloadCounts(ctx context.Context, gameID int64) ([]stats.ModDownloads, error) {
	url := fmt.Sprintf("%s/%d.csv", c.statsBase, gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download counts for game %d: %w", gameID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download counts for game %d: responded %d", gameID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download counts for game %d: %w", gameID, err)
	}

	return c.parseLiveCounts(gameID, string(body)), nil
}
