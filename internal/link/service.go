package link

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tallyport/tallyport/internal/models"
)

const (
	// ChallengeTTL is how long a delivered code stays valid.
	ChallengeTTL = 10 * time.Minute

	// callTimeout bounds every outbound storage and directory call so a slow
	// dependency cannot stall the request.
	callTimeout = 10 * time.Second
)

// ChallengeStore persists one-time code challenges.
type ChallengeStore interface {
	Create(ctx context.Context, challenge *models.OtpChallenge) error
	// Latest returns the newest challenge for the pair, consumed or not.
	// Older rows for the same pair are never authoritative.
	Latest(ctx context.Context, requesterID int, phone string) (*models.OtpChallenge, error)
	MarkConsumed(ctx context.Context, id int, when time.Time) error
}

// OwnerDirectory resolves a normalized phone number to an owner record.
type OwnerDirectory interface {
	FindByPhone(ctx context.Context, phone string) (*models.Owner, error)
}

// LinkStore persists the audit row tying a requester to an owner.
type LinkStore interface {
	Upsert(ctx context.Context, link *models.IdentityLink) error
}

// CodeSender delivers a plaintext code out of band.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Service implements the phone-linking flow: prove control of a
// phone-identified owner record with a one-time code, then hand back the
// owner whose dashboard token becomes the session credential.
type Service struct {
	challenges ChallengeStore
	owners     OwnerDirectory
	links      LinkStore
	sender     CodeSender
	now        func() time.Time
}

// NewService creates a linking service with explicitly injected dependencies.
func NewService(challenges ChallengeStore, owners OwnerDirectory, links LinkStore, sender CodeSender) *Service {
	return &Service{
		challenges: challenges,
		owners:     owners,
		links:      links,
		sender:     sender,
		now:        time.Now,
	}
}

// Start validates the phone, stores a hashed one-time code and requests its
// delivery. Repeated calls for the same pair stack rows; Verify only trusts
// the newest one.
func (s *Service) Start(ctx context.Context, requesterID int, rawPhone string) error {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return err
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}

	now := s.now()
	challenge := &models.OtpChallenge{
		RequesterID: requesterID,
		Phone:       phone,
		CodeHash:    HashCode(salt, code),
		Salt:        salt,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ChallengeTTL),
	}

	storeCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := s.challenges.Create(storeCtx, challenge); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := s.sender.SendCode(sendCtx, phone, code); err != nil {
		// The stored challenge stays orphaned; a later verify finds no
		// usable code and the user simply starts again.
		return &DeliveryError{Err: err}
	}

	return nil
}

// Verify checks a submitted code against the newest stored challenge and
// resolves the owner record. The audit link row is written on a detached
// goroutine: its failure never blocks session issuance.
func (s *Service) Verify(ctx context.Context, requesterID int, rawPhone, code string) (*models.Owner, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	challenge, err := s.challenges.Latest(lookupCtx, requesterID, phone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrNoChallenge
		}
		return nil, err
	}

	if challenge.Consumed() {
		return nil, ErrNoChallenge
	}
	if challenge.Expired(s.now()) {
		return nil, ErrCodeExpired
	}
	if !hashEqual(HashCode(challenge.Salt, code), challenge.CodeHash) {
		return nil, ErrCodeMismatch
	}

	// Single-use: mark the challenge consumed before issuing anything. A
	// failed update is logged and tolerated so a transient storage error
	// cannot lock out a user holding a correct code.
	consumeCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := s.challenges.MarkConsumed(consumeCtx, challenge.ID, s.now()); err != nil {
		log.Printf("Link: Failed to mark challenge %d consumed: %v", challenge.ID, err)
	}

	ownerCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	owner, err := s.owners.FindByPhone(ownerCtx, phone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	if owner.DashboardToken == "" {
		return nil, ErrOwnerMisconfigured
	}

	go s.persistLink(requesterID, owner, phone)

	return owner, nil
}

// persistLink writes the best-effort audit row. It runs detached from the
// request with its own timeout and logs-and-drops any failure.
func (s *Service) persistLink(requesterID int, owner *models.Owner, phone string) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	err := s.links.Upsert(ctx, &models.IdentityLink{
		RequesterID: requesterID,
		OwnerID:     owner.ID,
		Phone:       phone,
		Email:       owner.Email,
	})
	if err != nil {
		log.Printf("Link: Failed to persist identity link for requester %d: %v", requesterID, err)
	}
}
