package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tallyport/tallyport/internal/models"
)

// ChallengeStore is the Postgres-backed store for one-time code challenges.
type ChallengeStore struct {
	db *gorm.DB
}

// NewChallengeStore creates a challenge store
func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// Create inserts a new challenge row. No uniqueness constraint exists on the
// (requester, phone) pair; concurrent starts race freely and the newest row
// wins at verification time.
func (s *ChallengeStore) Create(ctx context.Context, challenge *models.OtpChallenge) error {
	return s.db.WithContext(ctx).Create(challenge).Error
}

// Latest returns the most recently created challenge for the pair. The
// descending order with limit 1 is the concurrency strategy: older rows are
// never consulted, so they need no explicit invalidation.
func (s *ChallengeStore) Latest(ctx context.Context, requesterID int, phone string) (*models.OtpChallenge, error) {
	var challenge models.OtpChallenge
	err := s.db.WithContext(ctx).
		Where("requester_id = ? AND phone = ?", requesterID, phone).
		Order("created_at DESC").
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &challenge, nil
}

// MarkConsumed stamps a challenge as used so it cannot match again.
func (s *ChallengeStore) MarkConsumed(ctx context.Context, id int, when time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.OtpChallenge{}).
		Where("id = ?", id).
		Update("consumed_at", when).Error
}

// DeleteStale removes challenges that expired before the cutoff. Used by the
// background sweeper; verification never depends on rows being deleted.
func (s *ChallengeStore) DeleteStale(cutoff time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", cutoff).Delete(&models.OtpChallenge{})
	return result.RowsAffected, result.Error
}
