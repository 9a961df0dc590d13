package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tallyport/tallyport/internal/models"
)

// OwnerDirectory is the read-only lookup from phone digits to owner records.
type OwnerDirectory struct {
	db *gorm.DB
}

// NewOwnerDirectory creates an owner directory
func NewOwnerDirectory(db *gorm.DB) *OwnerDirectory {
	return &OwnerDirectory{db: db}
}

// FindByPhone returns the owner record for a normalized phone number.
func (d *OwnerDirectory) FindByPhone(ctx context.Context, phone string) (*models.Owner, error) {
	var owner models.Owner
	err := d.db.WithContext(ctx).Where("phone = ?", phone).First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &owner, nil
}
