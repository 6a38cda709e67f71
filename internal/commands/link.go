package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexusmods/modlink/internal/db"
)

// LinkCommand points an unlinked user at the OAuth flow.
type LinkCommand struct {
	Store     db.Store
	PublicURL string
}

func (c *LinkCommand) Describe() Description {
	return Description{
		Name: "link",
		Help: "Link your Nexus Mods account to Discord.",
	}
}

func (c *LinkCommand) Execute(ctx context.Context, inv Invocation) (Reply, error) {
	acct, err := c.Store.GetByDiscordID(ctx, inv.DiscordID)
	switch {
	case err == nil:
		return Reply{Text: fmt.Sprintf("Your Discord is already linked to the Nexus Mods account %q. Use /unlink first if you want to relink.", acct.Name)}, nil
	case errors.Is(err, db.ErrNotFound):
		return Reply{Text: fmt.Sprintf("Get started here: %s/linked-role", c.PublicURL)}, nil
	default:
		return Reply{}, err
	}
}
