package link

import (
	"errors"
	"fmt"
)

// Sentinel errors for the linking flow. Messages are user-facing: every OTP
// failure must tell the user which corrective action applies (re-request vs
// re-type), and directory failures must not pretend to be user-correctable.
var (
	ErrInvalidPhone = errors.New("phone number must contain at least 10 digits")

	// ErrNoChallenge covers both "never requested" and "already used": in
	// either case the fix is the same, request a new code.
	ErrNoChallenge = errors.New("no verification code found, request a new one")

	ErrCodeExpired  = errors.New("verification code expired, request a new one")
	ErrCodeMismatch = errors.New("verification code is incorrect")

	ErrOwnerNotFound      = errors.New("no account is registered for this phone number")
	ErrOwnerMisconfigured = errors.New("account for this phone number has no dashboard token")
)

// DeliveryError wraps a messaging gateway failure. The stored challenge is
// left orphaned; the user retries by starting the flow again.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver verification code: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
