package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/refresh"
	"github.com/nexusmods/modlink/internal/util"
)

// modListLimit caps the rendered mod list so the reply stays embeddable.
const modListLimit = 1024

// AccountRefresher is the engine entry point the command drives.
type AccountRefresher interface {
	RefreshAccount(ctx context.Context, discordID string) (*refresh.Summary, error)
}

// RefreshCommand reconciles the caller's account and reports the outcome.
type RefreshCommand struct {
	Engine AccountRefresher
}

func (c *RefreshCommand) Describe() Description {
	return Description{
		Name: "refresh",
		Help: "Update your profile card and mod download stats.",
	}
}

func (c *RefreshCommand) Execute(ctx context.Context, inv Invocation) (Reply, error) {
	summary, err := c.Engine.RefreshAccount(ctx, inv.DiscordID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return Reply{Text: "You haven't linked your account yet. Use the /link command to get started."}, nil
	case errors.Is(err, refresh.ErrCooldown):
		return Reply{Text: "You must wait at least 1 minute between refreshes."}, nil
	case err != nil:
		return Reply{}, err
	}

	return Reply{Text: formatSummary(summary)}, nil
}

func formatSummary(s *refresh.Summary) string {
	var b strings.Builder
	b.WriteString("Update complete.\n")

	if len(s.FieldsUpdated) > 0 {
		b.WriteString("User info updated:\n")
		for _, f := range s.FieldsUpdated {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	} else {
		b.WriteString("User info: no changes required.\n")
	}

	fmt.Fprintf(&b, "Mods: %d tracked, %d unique downloads.\n", s.ModCount, s.UniqueDownloads)
	if len(s.ModsUpdated) > 0 {
		var mods strings.Builder
		fmt.Fprintf(&mods, "%d mods updated:\n", len(s.ModsUpdated))
		for _, m := range s.ModsUpdated {
			fmt.Fprintf(&mods, "- %s (https://nexusmods.com/%s/mods/%d)\n", m.Name, m.Domain, m.ModID)
		}
		b.WriteString(util.Truncate(mods.String(), modListLimit))
	}
	for _, m := range s.ModsRemoved {
		fmt.Fprintf(&b, "Removed (no longer on Nexus Mods): %s\n", m.Name)
	}

	for _, note := range s.Notes {
		fmt.Fprintf(&b, "Warning: %s\n", note)
	}
	return b.String()
}
