package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/db/models"
)

// MetadataClearer wipes the role-connection record on Discord.
type MetadataClearer interface {
	Clear(ctx context.Context, acct *models.LinkedAccount) error
}

// UnlinkCommand deletes the account link and clears pushed metadata.
type UnlinkCommand struct {
	Store db.Store
	Meta  MetadataClearer
	Log   zerolog.Logger
}

func (c *UnlinkCommand) Describe() Description {
	return Description{
		Name: "unlink",
		Help: "Delete the link between your Nexus Mods account and Discord.",
	}
}

func (c *UnlinkCommand) Execute(ctx context.Context, inv Invocation) (Reply, error) {
	acct, err := c.Store.GetByDiscordID(ctx, inv.DiscordID)
	if errors.Is(err, db.ErrNotFound) {
		return Reply{Text: "Your account is not linked."}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	// Clear the roles first; if Discord is unreachable the link is deleted
	// anyway and the stale connection ages out on their side.
	if err := c.Meta.Clear(ctx, acct); err != nil {
		c.Log.Warn().Str("discord_id", acct.DiscordID).Err(err).Msg("could not clear role metadata during unlink")
	}

	if err := c.Store.Delete(ctx, acct.DiscordID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Your Nexus Mods account has been unlinked from Discord."}, nil
}
