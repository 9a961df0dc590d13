package jobs

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tallyport/tallyport/internal/store"
)

// Scheduler manages background jobs
type Scheduler struct {
	cron       *cron.Cron
	challenges *store.ChallengeStore
}

// NewScheduler creates a new job scheduler
func NewScheduler(challenges *store.ChallengeStore) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		challenges: challenges,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	// Sweep stale OTP challenges hourly at minute 7. Verification never
	// depends on this: expiry is checked from the row's timestamp.
	s.cron.AddFunc("7 * * * *", func() {
		s.sweepChallenges()
	})

	s.cron.Start()
	log.Println("Job scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Job scheduler stopped")
}

// sweepChallenges removes challenge rows that expired more than a day ago
func (s *Scheduler) sweepChallenges() {
	cutoff := time.Now().Add(-24 * time.Hour)

	deleted, err := s.challenges.DeleteStale(cutoff)
	if err != nil {
		log.Printf("Failed to sweep stale challenges: %v", err)
		return
	}

	if deleted > 0 {
		log.Printf("Swept %d stale challenges", deleted)
	}
}
