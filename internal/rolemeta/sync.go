// Package rolemeta pushes derived membership metadata to Discord's
// role-connection endpoint for a linked account.
package rolemeta

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/auth/discord"
	"github.com/nexusmods/modlink/internal/auth/nexus"
	"github.com/nexusmods/modlink/internal/auth/token"
	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/db/models"
)

// PlatformName is the connection name shown on the Discord profile.
const PlatformName = "Nexus Mods"

// DiscordAPI is the slice of the Discord client the synchronizer needs.
type DiscordAPI interface {
	token.Refresher
	PutRoleConnection(ctx context.Context, accessToken string, rc discord.RoleConnection) error
}

// NexusAPI is the slice of the Nexus client the synchronizer needs.
type NexusAPI interface {
	token.Refresher
	Profile(ctx context.Context, accessToken string) (nexus.Profile, error)
}

// Payload derives the integer-coded metadata record from a profile. The
// endpoint accepts 0/1 integers, not booleans, and supporter is suppressed
// for premium members.
func Payload(p nexus.Profile) map[string]int {
	return map[string]int{
		"member":    1,
		"modauthor": asInt(p.ModAuthor()),
		"premium":   asInt(p.Premium()),
		"supporter": asInt(p.Supporter()),
	}
}

func asInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Synchronizer upserts role-connection metadata, always through a freshly
// validated Discord access token.
type Synchronizer struct {
	discord DiscordAPI
	nexus   NexusAPI
	tokens  *token.Manager
	store   db.Store
	log     zerolog.Logger
}

func NewSynchronizer(d DiscordAPI, n NexusAPI, tokens *token.Manager, store db.Store, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		discord: d,
		nexus:   n,
		tokens:  tokens,
		store:   store,
		log:     log.With().Str("component", "rolemeta").Logger(),
	}
}

// Push upserts meta for the account. Pushing identical metadata twice is a
// no-op from the caller's perspective.
func (s *Synchronizer) Push(ctx context.Context, acct *models.LinkedAccount, meta map[string]int) error {
	accessToken, err := s.tokens.Valid(ctx, &acct.Discord, s.discord, func(ctx context.Context) error {
		return s.store.Update(ctx, acct)
	})
	if err != nil {
		return fmt.Errorf("discord token for metadata push: %w", err)
	}

	rc := discord.RoleConnection{
		PlatformName:     PlatformName,
		PlatformUsername: acct.Name,
		Metadata:         meta,
	}
	if err := s.discord.PutRoleConnection(ctx, accessToken, rc); err != nil {
		return err
	}

	s.log.Info().Str("discord_id", acct.DiscordID).Fields(map[string]any{"metadata": meta}).Msg("metadata pushed")
	return nil
}

// PushCurrent fetches the live membership attributes and pushes them. When
// the Nexus side cannot be reached the push degrades to an empty payload
// rather than failing, so stale roles are cleared instead of kept.
func (s *Synchronizer) PushCurrent(ctx context.Context, acct *models.LinkedAccount) error {
	meta := map[string]int{}

	accessToken, err := s.tokens.Valid(ctx, &acct.Nexus, s.nexus, func(ctx context.Context) error {
		return s.store.Update(ctx, acct)
	})
	if err == nil {
		profile, perr := s.nexus.Profile(ctx, accessToken)
		if perr == nil {
			meta = Payload(profile)
		} else {
			s.log.Warn().Str("discord_id", acct.DiscordID).Err(perr).Msg("membership fetch failed, pushing empty metadata")
		}
	} else {
		s.log.Warn().Str("discord_id", acct.DiscordID).Err(err).Msg("nexus token invalid, pushing empty metadata")
	}

	return s.Push(ctx, acct, meta)
}

// Clear wipes the role-connection record; used when an account unlinks.
func (s *Synchronizer) Clear(ctx context.Context, acct *models.LinkedAccount) error {
	return s.Push(ctx, acct, map[string]int{})
}
