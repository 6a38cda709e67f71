package models

import "time"

// TokenBundle is an OAuth access/refresh token pair with its absolute expiry.
// Each bundle is owned by exactly one LinkedAccount (or an in-flight pending
// link) and is never shared between records.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the bundle still has usable credentials at all;
// freshness of the access token is the token manager's concern.
func (b TokenBundle) Valid() bool {
	return b.RefreshToken != "" || (b.AccessToken != "" && time.Now().Before(b.ExpiresAt))
}

// LinkedAccount ties a Discord user to their Nexus Mods identity, along with
// the derived membership flags and the OAuth tokens for both platforms.
// There is at most one LinkedAccount per Discord id; the Nexus id is indexed
// but deliberately not unique (one Nexus account may be linked from several
// Discord accounts, matching upstream behaviour).
type LinkedAccount struct {
	DiscordID string `gorm:"primaryKey"`
	NexusID   int64  `gorm:"index"`
	Name      string
	AvatarURL string

	// Membership flags pushed to Discord as role-connection metadata.
	// Supporter is always stored as "supporter and not premium".
	Supporter bool
	Premium   bool
	ModAuthor bool

	Discord TokenBundle `gorm:"embedded;embeddedPrefix:discord_"`
	Nexus   TokenBundle `gorm:"embedded;embeddedPrefix:nexus_"`

	LastReconciled time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
