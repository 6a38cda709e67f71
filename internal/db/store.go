package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nexusmods/modlink/internal/db/models"
)

// ErrNotFound is returned when no record exists for the given identity.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract consumed by the linking and
// reconciliation components. It is a plain CRUD surface keyed by identity;
// all domain logic lives in the callers.
type Store interface {
	GetByDiscordID(ctx context.Context, discordID string) (*models.LinkedAccount, error)
	Create(ctx context.Context, acct *models.LinkedAccount) error
	Update(ctx context.Context, acct *models.LinkedAccount) error
	Delete(ctx context.Context, discordID string) error

	SubscriptionsByAccount(ctx context.Context, discordID string) ([]models.ModSubscription, error)
	UpdateSubscription(ctx context.Context, sub *models.ModSubscription) error
	DeleteSubscription(ctx context.Context, sub *models.ModSubscription) error
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

func (s *GormStore) GetByDiscordID(ctx context.Context, discordID string) (*models.LinkedAccount, error) {
	var acct models.LinkedAccount
	err := s.db.WithContext(ctx).First(&acct, "discord_id = ?", discordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account %s: %w", discordID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *GormStore) Create(ctx context.Context, acct *models.LinkedAccount) error {
	return s.db.WithContext(ctx).Create(acct).Error
}

func (s *GormStore) Update(ctx context.Context, acct *models.LinkedAccount) error {
	return s.db.WithContext(ctx).Save(acct).Error
}

func (s *GormStore) Delete(ctx context.Context, discordID string) error {
	res := s.db.WithContext(ctx).Delete(&models.LinkedAccount{}, "discord_id = ?", discordID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %s: %w", discordID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) SubscriptionsByAccount(ctx context.Context, discordID string) ([]models.ModSubscription, error) {
	var subs []models.ModSubscription
	err := s.db.WithContext(ctx).
		Where("discord_id = ?", discordID).
		Order("domain, mod_id").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *GormStore) UpdateSubscription(ctx context.Context, sub *models.ModSubscription) error {
	return s.db.WithContext(ctx).Save(sub).Error
}

func (s *GormStore) DeleteSubscription(ctx context.Context, sub *models.ModSubscription) error {
	return s.db.WithContext(ctx).Delete(&models.ModSubscription{}, sub.ID).Error
}
