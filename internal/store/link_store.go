package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tallyport/tallyport/internal/models"
)

// LinkStore persists identity-link audit rows.
type LinkStore struct {
	db *gorm.DB
}

// NewLinkStore creates a link store
func NewLinkStore(db *gorm.DB) *LinkStore {
	return &LinkStore{db: db}
}

// Upsert writes the link row, replacing any previous link for the requester.
func (s *LinkStore) Upsert(ctx context.Context, link *models.IdentityLink) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "requester_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "phone", "email", "updated_at"}),
	}).Create(link).Error
}
