// Package refresh reconciles a linked account's cached state against the
// upstream Nexus Mods data, persisting only the differences and re-syncing
// role metadata when anything that feeds it changed.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexusmods/modlink/internal/auth/nexus"
	"github.com/nexusmods/modlink/internal/auth/token"
	"github.com/nexusmods/modlink/internal/db"
	"github.com/nexusmods/modlink/internal/db/models"
	"github.com/nexusmods/modlink/internal/nexusapi"
	"github.com/nexusmods/modlink/internal/rolemeta"
	"github.com/nexusmods/modlink/internal/stats"
)

// Cooldown bounds upstream call volume under repeated user-triggered
// refreshes. The gate is best-effort, not a mutual-exclusion lock; every
// downstream write is idempotent, so a narrow race is acceptable.
const Cooldown = time.Minute

// ErrCooldown means the account was reconciled too recently. It is a
// user-facing notice, not a failure.
var ErrCooldown = errors.New("account was refreshed recently")

// NexusClient is the users-service slice the engine needs.
type NexusClient interface {
	token.Refresher
	Profile(ctx context.Context, accessToken string) (nexus.Profile, error)
}

// ModAPI is the public-API slice the engine needs.
type ModAPI interface {
	ModInfo(ctx context.Context, accessToken, domain string, modID int64) (nexusapi.ModInfo, error)
	LiveDownloadCounts(ctx context.Context, gameID int64) ([]stats.ModDownloads, error)
}

// Pusher re-syncs role metadata after a reconcile that changed anything.
type Pusher interface {
	Push(ctx context.Context, acct *models.LinkedAccount, meta map[string]int) error
	PushCurrent(ctx context.Context, acct *models.LinkedAccount) error
}

// ModRef identifies a subscription in the summary.
type ModRef struct {
	Domain string
	ModID  int64
	Name   string
}

// Summary is the structured outcome of one reconcile pass. Failures in one
// section are recorded as notes and never abort sibling work.
type Summary struct {
	FieldsUpdated   []string
	ModsUpdated     []ModRef
	ModsRemoved     []ModRef
	ModCount        int
	UniqueDownloads int64
	RolesChanged    bool
	MetadataPushed  bool
	Notes           []string
}

// Engine is the reconciliation entry point.
type Engine struct {
	store  db.Store
	tokens *token.Manager
	nexus  NexusClient
	api    ModAPI
	stats  *stats.Cache
	pusher Pusher
	log    zerolog.Logger
}

func NewEngine(store db.Store, tokens *token.Manager, n NexusClient, api ModAPI, cache *stats.Cache, pusher Pusher, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		tokens: tokens,
		nexus:  n,
		api:    api,
		stats:  cache,
		pusher: pusher,
		log:    log.With().Str("component", "refresh").Logger(),
	}
}

// RefreshAccount diffs the stored account and subscription snapshot against
// freshly fetched upstream data. It returns db.ErrNotFound (wrapped) when no
// link exists and ErrCooldown when invoked inside the cooldown window; any
// other partial failure lands in the summary notes instead of an error.
func (e *Engine) RefreshAccount(ctx context.Context, discordID string) (*Summary, error) {
	acct, err := e.store.GetByDiscordID(ctx, discordID)
	if err != nil {
		return nil, err
	}

	if remaining := Cooldown - time.Since(acct.LastReconciled); remaining > 0 {
		return nil, fmt.Errorf("%w: try again in %s", ErrCooldown, remaining.Round(time.Second))
	}
	acct.LastReconciled = time.Now()

	summary := &Summary{}

	accessToken, tokenErr := e.tokens.Valid(ctx, &acct.Nexus, e.nexus, func(ctx context.Context) error {
		return e.store.Update(ctx, acct)
	})
	if tokenErr != nil {
		summary.Notes = append(summary.Notes, fmt.Sprintf("nexus authorization: %v", tokenErr))
	}

	var (
		profile    nexus.Profile
		profileOK  bool
		anyChanged bool
	)
	if tokenErr == nil {
		profile, profileOK = e.reconcileIdentity(ctx, acct, accessToken, summary)
		anyChanged = len(summary.FieldsUpdated) > 0
	}

	// The subscription pass runs even when the identity pass failed; the two
	// are fault-isolated.
	if tokenErr == nil {
		if e.reconcileSubscriptions(ctx, acct, accessToken, summary) {
			anyChanged = true
		}
	}

	// LastReconciled moved, so the account row is written even when nothing
	// else changed; that is what arms the cooldown gate.
	if err := e.store.Update(ctx, acct); err != nil {
		summary.Notes = append(summary.Notes, fmt.Sprintf("persist account: %v", err))
	}

	if anyChanged {
		var pushErr error
		if profileOK {
			pushErr = e.pusher.Push(ctx, acct, rolemeta.Payload(profile))
		} else {
			pushErr = e.pusher.PushCurrent(ctx, acct)
		}
		if pushErr != nil {
			summary.Notes = append(summary.Notes, fmt.Sprintf("metadata push: %v", pushErr))
		} else {
			summary.MetadataPushed = true
		}
	} else {
		e.log.Debug().Str("discord_id", discordID).Msg("nothing changed, metadata push skipped")
	}

	return summary, nil
}

// reconcileIdentity fetches the current profile and applies a field-level
// delta to the stored record. Membership flag changes set RolesChanged.
func (e *Engine) reconcileIdentity(ctx context.Context, acct *models.LinkedAccount, accessToken string, summary *Summary) (nexus.Profile, bool) {
	profile, err := e.nexus.Profile(ctx, accessToken)
	if err != nil {
		summary.Notes = append(summary.Notes, fmt.Sprintf("identity fetch: %v", err))
		return nexus.Profile{}, false
	}

	diff := func(name string, changed bool, apply func()) {
		if changed {
			apply()
			summary.FieldsUpdated = append(summary.FieldsUpdated, name)
		}
	}

	diff("user id", profile.NexusID() != acct.NexusID, func() { acct.NexusID = profile.NexusID() })
	diff("username", profile.Name != acct.Name, func() { acct.Name = profile.Name })
	diff("profile image", profile.Avatar != acct.AvatarURL, func() { acct.AvatarURL = profile.Avatar })

	roles := false
	diff("supporter membership", profile.Supporter() != acct.Supporter, func() { acct.Supporter = profile.Supporter(); roles = true })
	diff("premium membership", profile.Premium() != acct.Premium, func() { acct.Premium = profile.Premium(); roles = true })
	diff("mod author status", profile.ModAuthor() != acct.ModAuthor, func() { acct.ModAuthor = profile.ModAuthor(); roles = true })

	summary.RolesChanged = roles
	return profile, true
}

// reconcileSubscriptions walks every subscription, deleting withdrawn mods
// and persisting monotonic counter increases. One failing subscription never
// aborts the others. Returns true when anything was updated or removed.
func (e *Engine) reconcileSubscriptions(ctx context.Context, acct *models.LinkedAccount, accessToken string, summary *Summary) bool {
	subs, err := e.store.SubscriptionsByAccount(ctx, acct.DiscordID)
	if err != nil {
		summary.Notes = append(summary.Notes, fmt.Sprintf("load subscriptions: %v", err))
		return false
	}

	changed := false
	for i := range subs {
		sub := &subs[i]
		ref := ModRef{Domain: sub.Domain, ModID: sub.ModID, Name: sub.Name}

		info, err := e.api.ModInfo(ctx, accessToken, sub.Domain, sub.ModID)
		if err != nil {
			summary.Notes = append(summary.Notes, fmt.Sprintf("mod %s/%d: %v", sub.Domain, sub.ModID, err))
			// Still counts toward the aggregate: the stored snapshot survives.
			summary.ModCount++
			summary.UniqueDownloads += sub.UniqueDownloads
			continue
		}

		if info.Withdrawn() {
			if err := e.store.DeleteSubscription(ctx, sub); err != nil {
				summary.Notes = append(summary.Notes, fmt.Sprintf("remove mod %s/%d: %v", sub.Domain, sub.ModID, err))
				continue
			}
			// Removed mods are excluded from the aggregate download total.
			summary.ModsRemoved = append(summary.ModsRemoved, ref)
			changed = true
			continue
		}

		subChanged := false
		if info.Name != "" && info.Name != sub.Name {
			sub.Name = info.Name
			subChanged = true
		}

		if dls, err := e.modDownloads(ctx, info.GameID, sub.ModID); err != nil {
			summary.Notes = append(summary.Notes, fmt.Sprintf("downloads for %s/%d: %v", sub.Domain, sub.ModID, err))
		} else {
			// Counters are monotonic; a lower fetched value is stale upstream
			// data and is ignored.
			if dls.UniqueDownloads > sub.UniqueDownloads {
				sub.UniqueDownloads = dls.UniqueDownloads
				subChanged = true
			}
			if dls.TotalDownloads > sub.TotalDownloads {
				sub.TotalDownloads = dls.TotalDownloads
				subChanged = true
			}
		}

		if subChanged {
			if err := e.store.UpdateSubscription(ctx, sub); err != nil {
				summary.Notes = append(summary.Notes, fmt.Sprintf("update mod %s/%d: %v", sub.Domain, sub.ModID, err))
			} else {
				ref.Name = sub.Name
				summary.ModsUpdated = append(summary.ModsUpdated, ref)
				changed = true
			}
		}

		summary.ModCount++
		summary.UniqueDownloads += sub.UniqueDownloads
	}

	return changed
}

// modDownloads answers through the stats cache, fetching the game's CSV dump
// only on a miss. The cache is swept opportunistically after a fill.
func (e *Engine) modDownloads(ctx context.Context, gameID, modID int64) (stats.ModDownloads, error) {
	if dls, ok := e.stats.Mod(gameID, modID); ok {
		return dls, nil
	}

	rows, err := e.api.LiveDownloadCounts(ctx, gameID)
	if err != nil {
		return stats.ModDownloads{}, err
	}
	e.stats.Save(gameID, rows)
	e.stats.Sweep()

	dls, _ := e.stats.Mod(gameID, modID)
	return dls, nil
}
