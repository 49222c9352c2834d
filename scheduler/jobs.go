package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"twse_alert_backend/services/history"
	"twse_alert_backend/services/watchlist"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	store   *watchlist.Store
	history *history.Service
	reset   string // "HH:MM" local wall-clock time
}

// NewScheduler creates a new scheduler instance. history may be nil
// when no history database is configured.
func NewScheduler(store *watchlist.Store, hist *history.Service, location *time.Location, resetTime string) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(location),
		store:   store,
		history: hist,
		reset:   resetTime,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Reset the trigger ledger once per day after market close. When
	// the process starts after the reset time has already passed, the
	// first run lands on tomorrow.
	s.cron.Every(1).Day().At(s.reset).Do(func() {
		s.resetTriggers()
	})

	// Cleanup old alert history weekly on Sunday at 01:00
	if s.history != nil {
		s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
			s.cleanupHistory()
		})
	}

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// resetTriggers clears the fired-today state on every watch item so
// rules re-arm for the next trading day.
func (s *Scheduler) resetTriggers() {
	log.Println("Resetting watchlist trigger ledger...")
	if err := s.store.ResetTriggered(); err != nil {
		log.Printf("Error resetting triggers: %v", err)
		return
	}
	log.Println("Trigger ledger reset completed")
}

// cleanupHistory removes old alert history rows to save storage.
func (s *Scheduler) cleanupHistory() {
	log.Println("Cleaning up old alert history...")
	s.history.Cleanup()
	log.Println("Cleanup completed")
}
