package models

import "time"

// OtpChallenge is an outstanding one-time code for a (requester, phone) pair.
// Only the hash of the code is stored; the plaintext lives exactly as long as
// the delivery request. Rows are never updated in place except to mark them
// consumed, and repeated start requests simply stack new rows: the newest row
// for a pair is the only one the verifier trusts.
type OtpChallenge struct {
	ID          int        `json:"id" gorm:"primaryKey;autoIncrement"`
	RequesterID int        `json:"requester_id" gorm:"not null;index:idx_otp_requester_phone"`
	Phone       string     `json:"phone" gorm:"not null;index:idx_otp_requester_phone"` // digits only
	CodeHash    string     `json:"-" gorm:"not null"`
	Salt        string     `json:"-" gorm:"not null"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	ConsumedAt  *time.Time `json:"consumed_at"`
}

// TableName specifies the table name for OtpChallenge
func (OtpChallenge) TableName() string {
	return "otp_challenges"
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *OtpChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Consumed reports whether the challenge has already been used.
func (c *OtpChallenge) Consumed() bool {
	return c.ConsumedAt != nil
}
