package billing

import (
	"context"
	"errors"
	"log"
	"time"
)

// Outcome is the terminal state of a reconciliation loop.
type Outcome string

const (
	// OutcomeActivated means the effective plan reached the target.
	OutcomeActivated Outcome = "activated"

	// OutcomeStalled means the ceiling elapsed first. The payment went
	// through; only the webhook propagation is late.
	OutcomeStalled Outcome = "stalled"
)

// StalledMessage explains a stalled reconciliation to the user. It must never
// read as a payment failure.
const StalledMessage = "Your payment was received but activation is taking longer than expected. Your plan will update automatically within a few minutes."

// Clock abstracts time for the polling loop so the interval and ceiling are
// testable without wall-clock waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// StatusFunc fetches the current entitlement snapshot.
type StatusFunc func(ctx context.Context) (*Snapshot, error)

// Reconciler polls the entitlement state after a payment action until the
// effective plan matches the target or a deadline passes. It never mutates
// entitlement state: the provider's webhook pipeline is the only writer, the
// loop just papers over its propagation delay.
type Reconciler struct {
	status   StatusFunc
	interval time.Duration
	ceiling  time.Duration
	clock    Clock
}

// NewReconciler creates a reconciler with production timing: a check every
// 2.5 seconds under a 20 second ceiling.
func NewReconciler(status StatusFunc) *Reconciler {
	return &Reconciler{
		status:   status,
		interval: 2500 * time.Millisecond,
		ceiling:  20 * time.Second,
		clock:    realClock{},
	}
}

// Await runs the polling loop. It checks immediately, then on the fixed
// interval. Returns ErrUnlinked if the provider stops recognizing the
// credential mid-poll (that state can never converge), or the context error
// if the caller goes away.
func (r *Reconciler) Await(ctx context.Context, targetPlan string) (Outcome, error) {
	deadline := r.clock.Now().Add(r.ceiling)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		snapshot, err := r.status(ctx)
		switch {
		case err == nil && !snapshot.Linked:
			return "", ErrUnlinked
		case err == nil && snapshot.EffectivePlan == targetPlan:
			return OutcomeActivated, nil
		case err != nil && errors.Is(err, ErrUnlinked):
			return "", ErrUnlinked
		case err != nil:
			// Transient: keep polling until the ceiling.
			log.Printf("Reconcile: status check failed: %v", err)
		}

		if r.clock.Now().After(deadline) {
			return OutcomeStalled, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.clock.After(r.interval):
		}
	}
}
