// Package linking drives the sequential two-party consent flow that ties a
// Discord user to a Nexus Mods account. The flow is a small state machine
// keyed by a single-use correlation token:
//
//	INIT -> AWAIT_DISCORD -> AWAIT_NEXUS -> LINKED
//
// with any state mismatch or a missing/expired pending link terminating the
// flow.
package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/auth/discord"
	"github.com/nexusmods/modlink/internal/auth/nexus"
	"github.com/nexusmods/modlink/internal/auth/pending"
	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/db/models"
	"github.com/nexusmods/modlink/internal/rolemeta"
)

var (
	// ErrStateMismatch means the state parameter on a callback did not match
	// the signed client cookie; the flow is terminated.
	ErrStateMismatch = errors.New("oauth state verification failed")

	// ErrMissingPendingLink means the correlation token had no pending link,
	// either because it expired or was already consumed.
	ErrMissingPendingLink = errors.New("no pending link for this authorization")
)

// DiscordLeg is the slice of the Discord client the orchestrator uses.
type DiscordLeg interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.TokenBundle, error)
	Identity(ctx context.Context, accessToken string) (discord.Identity, error)
}

// NexusLeg is the slice of the Nexus client the orchestrator uses.
type NexusLeg interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.TokenBundle, error)
	Profile(ctx context.Context, accessToken string) (nexus.Profile, error)
}

// Pusher publishes role metadata once a link materializes.
type Pusher interface {
	Push(ctx context.Context, acct *models.LinkedAccount, meta map[string]int) error
}

// Result describes a completed link for user-facing confirmation.
type Result struct {
	DiscordID   string
	DiscordName string
	NexusID     int64
	NexusName   string
	Created     bool
}

// Orchestrator sequences the two consent legs and materializes the
// LinkedAccount record.
type Orchestrator struct {
	discord DiscordLeg
	nexus   NexusLeg
	pending *pending.Store
	store   db.Store
	pusher  Pusher
	log     zerolog.Logger
}

func NewOrchestrator(d DiscordLeg, n NexusLeg, p *pending.Store, store db.Store, pusher Pusher, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		discord: d,
		nexus:   n,
		pending: p,
		store:   store,
		pusher:  pusher,
		log:     log.With().Str("component", "linking").Logger(),
	}
}

// StartFlow mints a correlation token and returns it with the Discord
// consent URL that embeds it as the state parameter. The caller stores the
// token in a signed, time-boxed cookie.
func (o *Orchestrator) StartFlow() (state, consentURL string, err error) {
	state, err = gonanoid.New()
	if err != nil {
		return "", "", fmt.Errorf("generate correlation token: %w", err)
	}
	return state, o.discord.AuthCodeURL(state), nil
}

// HandleDiscordCallback completes the first leg: it verifies state, swaps
// the code for Discord tokens, snapshots the identity into the pending store
// and returns the Nexus consent URL to forward the user into (the same
// correlation token is reused as state).
func (o *Orchestrator) HandleDiscordCallback(ctx context.Context, code, returnedState, cookieState string) (string, error) {
	if cookieState == "" || returnedState != cookieState {
		return "", ErrStateMismatch
	}

	tokens, err := o.discord.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	identity, err := o.discord.Identity(ctx, tokens.AccessToken)
	if err != nil {
		return "", err
	}

	link := pending.Link{
		DiscordID: identity.ID,
		Name:      identity.Name,
		Tokens:    tokens,
		CreatedAt: time.Now(),
	}
	if err := o.pending.Put(cookieState, link); err != nil {
		return "", err
	}

	o.log.Info().Str("discord_id", identity.ID).Msg("discord leg complete, forwarding to nexus consent")
	return o.nexus.AuthCodeURL(cookieState), nil
}

// HandleNexusCallback completes the second leg: it verifies state, consumes
// the pending link (exactly once, before any provider call), swaps the code
// for Nexus tokens, fetches the profile and upserts the LinkedAccount. The
// metadata push runs before the result is returned so newly granted roles
// appear immediately.
func (o *Orchestrator) HandleNexusCallback(ctx context.Context, code, returnedState, cookieState string) (Result, error) {
	if cookieState == "" || returnedState != cookieState {
		return Result{}, ErrStateMismatch
	}

	link, ok := o.pending.Consume(cookieState)
	if !ok {
		return Result{}, ErrMissingPendingLink
	}

	tokens, err := o.nexus.Exchange(ctx, code)
	if err != nil {
		return Result{}, err
	}

	profile, err := o.nexus.Profile(ctx, tokens.AccessToken)
	if err != nil {
		return Result{}, err
	}

	acct, err := o.store.GetByDiscordID(ctx, link.DiscordID)
	created := false
	switch {
	case err == nil:
		// Re-link: update in place, the Discord id stays the primary key.
	case errors.Is(err, db.ErrNotFound):
		acct = &models.LinkedAccount{DiscordID: link.DiscordID}
		created = true
	default:
		return Result{}, err
	}

	acct.NexusID = profile.NexusID()
	acct.Name = profile.Name
	acct.AvatarURL = profile.Avatar
	acct.Supporter = profile.Supporter()
	acct.Premium = profile.Premium()
	acct.ModAuthor = profile.ModAuthor()
	acct.Discord = link.Tokens
	acct.Nexus = tokens

	if created {
		err = o.store.Create(ctx, acct)
	} else {
		err = o.store.Update(ctx, acct)
	}
	if err != nil {
		return Result{}, fmt.Errorf("persist linked account: %w", err)
	}

	if err := o.pusher.Push(ctx, acct, rolemeta.Payload(profile)); err != nil {
		return Result{}, err
	}

	o.log.Info().
		Str("discord", link.Name).
		Str("nexus", profile.Name).
		Bool("created", created).
		Msg("account link complete")

	return Result{
		DiscordID:   link.DiscordID,
		DiscordName: link.Name,
		NexusID:     profile.NexusID(),
		NexusName:   profile.Name,
		Created:     created,
	}, nil
}
