package link

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tallyport/tallyport/internal/models"
)

// memChallengeStore is an in-memory ChallengeStore with the same
// newest-row-wins read behavior as the Postgres store.
type memChallengeStore struct {
	mu     sync.Mutex
	nextID int
	rows   []*models.OtpChallenge

	consumeErr error
}

func (s *memChallengeStore) Create(_ context.Context, challenge *models.OtpChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	challenge.ID = s.nextID
	copied := *challenge
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *memChallengeStore) Latest(_ context.Context, requesterID int, phone string) (*models.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.OtpChallenge
	for _, row := range s.rows {
		if row.RequesterID == requesterID && row.Phone == phone {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	copied := *matches[0]
	return &copied, nil
}

func (s *memChallengeStore) MarkConsumed(_ context.Context, id int, when time.Time) error {
	if s.consumeErr != nil {
		return s.consumeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			t := when
			row.ConsumedAt = &t
		}
	}
	return nil
}

type memOwnerDirectory struct {
	owners map[string]*models.Owner
}

func (d *memOwnerDirectory) FindByPhone(_ context.Context, phone string) (*models.Owner, error) {
	owner, ok := d.owners[phone]
	if !ok {
		return nil, models.ErrNotFound
	}
	return owner, nil
}

type mockLinkStore struct {
	upsertFn func(ctx context.Context, link *models.IdentityLink) error
	attempts chan *models.IdentityLink
}

func (s *mockLinkStore) Upsert(ctx context.Context, link *models.IdentityLink) error {
	if s.attempts != nil {
		s.attempts <- link
	}
	if s.upsertFn != nil {
		return s.upsertFn(ctx, link)
	}
	return nil
}

type mockSender struct {
	mu     sync.Mutex
	codes  []string
	sendFn func(ctx context.Context, phone, code string) error
}

func (m *mockSender) SendCode(ctx context.Context, phone, code string) error {
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, phone, code)
	}
	return nil
}

func (m *mockSender) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		t.Fatal("no code was sent")
	}
	return m.codes[len(m.codes)-1]
}

const testPhone = "19055551234"

func newTestService(t *testing.T) (*Service, *memChallengeStore, *memOwnerDirectory, *mockLinkStore, *mockSender) {
	t.Helper()
	challenges := &memChallengeStore{}
	owners := &memOwnerDirectory{owners: map[string]*models.Owner{
		testPhone: {ID: "own_" + testPhone, Phone: testPhone, DashboardToken: "dtok-secret"},
	}}
	links := &mockLinkStore{attempts: make(chan *models.IdentityLink, 4)}
	sender := &mockSender{}
	svc := NewService(challenges, owners, links, sender)
	return svc, challenges, owners, links, sender
}

func TestStartThenVerifySucceeds(t *testing.T) {
	svc, _, _, links, sender := newTestService(t)
	ctx := context.Background()

	if err := svc.Start(ctx, 1, "+1 (905) 555-1234"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	owner, err := svc.Verify(ctx, 1, testPhone, sender.lastCode(t))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if owner.DashboardToken != "dtok-secret" {
		t.Fatalf("unexpected owner: %+v", owner)
	}

	// Audit row is written on a detached goroutine.
	select {
	case written := <-links.attempts:
		if written.RequesterID != 1 || written.OwnerID != owner.ID {
			t.Fatalf("unexpected link row: %+v", written)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("identity link was never attempted")
	}
}

func TestVerifyReplayFails(t *testing.T) {
	svc, _, _, _, sender := newTestService(t)
	ctx := context.Background()

	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	code := sender.lastCode(t)

	if _, err := svc.Verify(ctx, 1, testPhone, code); err != nil {
		t.Fatalf("first Verify failed: %v", err)
	}

	if _, err := svc.Verify(ctx, 1, testPhone, code); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge on replay, got %v", err)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	svc, _, _, _, sender := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	svc.now = func() time.Time { return base.Add(ChallengeTTL + time.Second) }
	if _, err := svc.Verify(ctx, 1, testPhone, sender.lastCode(t)); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	svc, _, _, _, sender := newTestService(t)
	ctx := context.Background()

	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	code := sender.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := svc.Verify(ctx, 1, testPhone, wrong); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	// A mismatch must not burn the challenge: the correct code still works.
	if _, err := svc.Verify(ctx, 1, testPhone, code); err != nil {
		t.Fatalf("Verify with correct code after mismatch failed: %v", err)
	}
}

func TestVerifyWithoutChallenge(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	if _, err := svc.Verify(context.Background(), 1, testPhone, "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("expected ErrNoChallenge, got %v", err)
	}
}

func TestStartRejectsShortPhone(t *testing.T) {
	svc, challenges, _, _, sender := newTestService(t)

	if err := svc.Start(context.Background(), 1, "555-1234"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
	if len(challenges.rows) != 0 {
		t.Fatal("no challenge should be stored for an invalid phone")
	}
	if len(sender.codes) != 0 {
		t.Fatal("no code should be sent for an invalid phone")
	}
}

func TestNewestChallengeWins(t *testing.T) {
	svc, _, _, _, sender := newTestService(t)
	ctx := context.Background()

	// Two quick starts; give the rows distinct timestamps.
	base := time.Now()
	svc.now = func() time.Time { return base }
	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	svc.now = func() time.Time { return base.Add(time.Second) }
	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	sender.mu.Lock()
	c1, c2 := sender.codes[0], sender.codes[1]
	sender.mu.Unlock()

	if c1 != c2 {
		if _, err := svc.Verify(ctx, 1, testPhone, c1); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected ErrCodeMismatch for superseded code, got %v", err)
		}
	}
	if _, err := svc.Verify(ctx, 1, testPhone, c2); err != nil {
		t.Fatalf("Verify with newest code failed: %v", err)
	}
}

func TestVerifyOwnerNotFound(t *testing.T) {
	svc, _, owners, _, sender := newTestService(t)
	ctx := context.Background()
	delete(owners.owners, testPhone)

	// Delivery has no owner dependency: start succeeds for an unknown phone.
	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := svc.Verify(ctx, 1, testPhone, sender.lastCode(t)); !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
}

func TestVerifyOwnerMisconfigured(t *testing.T) {
	svc, _, owners, _, sender := newTestService(t)
	ctx := context.Background()
	owners.owners[testPhone].DashboardToken = ""

	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := svc.Verify(ctx, 1, testPhone, sender.lastCode(t)); !errors.Is(err, ErrOwnerMisconfigured) {
		t.Fatalf("expected ErrOwnerMisconfigured, got %v", err)
	}
}

func TestConsumeFailureDoesNotBlockVerify(t *testing.T) {
	svc, challenges, _, _, sender := newTestService(t)
	ctx := context.Background()
	challenges.consumeErr = errors.New("update failed")

	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A transient failure to stamp the challenge consumed must not lock out
	// a user holding the correct code.
	if _, err := svc.Verify(ctx, 1, testPhone, sender.lastCode(t)); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestLinkPersistFailureDoesNotBlockVerify(t *testing.T) {
	svc, _, _, links, sender := newTestService(t)
	ctx := context.Background()
	links.upsertFn = func(context.Context, *models.IdentityLink) error {
		return errors.New("audit table unavailable")
	}

	if err := svc.Start(ctx, 1, testPhone); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	owner, err := svc.Verify(ctx, 1, testPhone, sender.lastCode(t))
	if err != nil {
		t.Fatalf("Verify must succeed despite audit write failure, got %v", err)
	}
	if owner.DashboardToken == "" {
		t.Fatal("owner token missing")
	}

	select {
	case <-links.attempts:
	case <-time.After(2 * time.Second):
		t.Fatal("identity link write was never attempted")
	}
}

func TestStartDeliveryFailureLeavesOrphanedChallenge(t *testing.T) {
	svc, challenges, _, _, sender := newTestService(t)
	sender.sendFn = func(context.Context, string, string) error {
		return errors.New("gateway down")
	}

	err := svc.Start(context.Background(), 1, testPhone)
	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}

	// The challenge row stays behind; a retry will simply supersede it.
	if len(challenges.rows) != 1 {
		t.Fatalf("expected 1 orphaned challenge, got %d", len(challenges.rows))
	}
}
