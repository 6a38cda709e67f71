package models

import "time"

// ModSubscription is a cached snapshot of one mod owned by a linked account.
// One row per (account, game domain, mod id). Download counters only ever
// move upwards; a lower value fetched upstream is treated as stale data.
type ModSubscription struct {
	ID        uint   `gorm:"primaryKey"`
	DiscordID string `gorm:"uniqueIndex:idx_account_mod"`
	Domain    string `gorm:"uniqueIndex:idx_account_mod"`
	ModID     int64  `gorm:"uniqueIndex:idx_account_mod"`

	Name            string
	UniqueDownloads int64
	TotalDownloads  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
