package models

import "time"

// IdentityLink records which portal user proved control of which owner record.
// It is an audit row for downstream lookups: the session cookie is issued
// whether or not this row could be written.
type IdentityLink struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	RequesterID int       `json:"requester_id" gorm:"uniqueIndex;not null"`
	OwnerID     string    `json:"owner_id" gorm:"not null"`
	Phone       string    `json:"phone" gorm:"not null"`
	Email       *string   `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for IdentityLink
func (IdentityLink) TableName() string {
	return "identity_links"
}
