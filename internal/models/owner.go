package models

import "time"

// Owner is a record in the phone-identified space that a portal user can
// prove control over. The dashboard token is the long-lived secret that the
// billing provider recognizes; it is read-only to this service.
type Owner struct {
	ID             string    `json:"id" gorm:"primaryKey"` // derived from phone digits
	Phone          string    `json:"phone" gorm:"uniqueIndex;not null"`
	DashboardToken string    `json:"-" gorm:"column:dashboard_token"`
	Email          *string   `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for Owner
func (Owner) TableName() string {
	return "owners"
}
