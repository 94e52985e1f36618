// Package scheduler runs sync jobs on a worker pool. The Dispatcher is the
// single entry point for enqueueing work; the Scheduler triggers periodic
// incremental syncs for every active connection at configured times of day.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"moneta/internal/domain/connection"
	syncdomain "moneta/internal/domain/sync"
)

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Scheduler fans out incremental sync jobs for all active connections at the
// configured times of day. Enqueues go through the dispatcher, so a
// connection already syncing (say, from a webhook moments earlier) is not
// double-queued.
type Scheduler struct {
	dispatcher    *Dispatcher
	connRepo      connection.Repository
	scheduleTimes []ScheduleTime
	runOnStartup  bool

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRunKey  string
	mu          sync.Mutex
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	ScheduleTimes []string
	RunOnStartup  bool
}

// NewScheduler creates a scheduler that triggers syncs through the given
// dispatcher.
func NewScheduler(config SchedulerConfig, dispatcher *Dispatcher, connRepo connection.Repository) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	if len(scheduleTimes) == 0 {
		return nil, fmt.Errorf("at least one schedule time is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	log.Printf("Scheduler initialized with %d schedule times: %v", len(scheduleTimes), config.ScheduleTimes)

	return &Scheduler{
		dispatcher:    dispatcher,
		connRepo:      connRepo,
		scheduleTimes: scheduleTimes,
		runOnStartup:  config.RunOnStartup,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	if s.runOnStartup {
		log.Println("Scheduler: Running initial sync fan-out on startup")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fanOut()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Println("Scheduler started")
}

// scheduleLoop is the main scheduling loop.
func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	log.Println("Scheduler loop started, checking every minute")

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Scheduler loop: Context cancelled, shutting down")
			return

		case now := <-ticker.C:
			if s.shouldRun(now) {
				log.Printf("Scheduler: Triggered at %s", now.Format("15:04"))
				s.fanOut()
			}
		}
	}
}

// shouldRun checks if the current time matches any scheduled time. The key
// guard keeps a single minute from firing twice when ticks land unevenly.
func (s *Scheduler) shouldRun(now time.Time) bool {
	currentKey := now.Format("2006-01-02-15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRunKey == currentKey {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRunKey = currentKey
			return true
		}
	}

	return false
}

// fanOut enqueues an incremental sync for every active connection.
func (s *Scheduler) fanOut() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	conns, err := s.connRepo.ListActive(ctx)
	if err != nil {
		log.Printf("Scheduler: Failed to list active connections: %v", err)
		return
	}

	if len(conns) == 0 {
		log.Println("Scheduler: No active connections to sync")
		return
	}

	enqueued := 0
	for _, conn := range conns {
		ok, err := s.dispatcher.Enqueue(conn.ID, syncdomain.ModeIncremental, map[string]string{"trigger": "scheduler"}, 0)
		if err != nil {
			log.Printf("Scheduler: Failed to enqueue sync for connection %s: %v", conn.ID, err)
			continue
		}
		if ok {
			enqueued++
		}
	}

	log.Printf("Scheduler: Enqueued %d/%d incremental syncs", enqueued, len(conns))
}

// TriggerNow manually triggers a fan-out immediately.
func (s *Scheduler) TriggerNow() {
	log.Println("Scheduler: Manual trigger")
	go s.fanOut()
}

// GetNextScheduledTime returns the next scheduled run time.
func (s *Scheduler) GetNextScheduledTime() time.Time {
	now := time.Now()

	for _, st := range s.scheduleTimes {
		scheduledTime := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if scheduledTime.After(now) {
			return scheduledTime
		}
	}

	if len(s.scheduleTimes) > 0 {
		st := s.scheduleTimes[0]
		tomorrow := now.AddDate(0, 0, 1)
		return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), st.Hour, st.Minute, 0, 0, now.Location())
	}

	return time.Time{}
}

// Shutdown gracefully stops the scheduler loop. The dispatcher (and its
// worker pool) is shut down separately by the owner that started it.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	log.Println("Scheduler: Initiating graceful shutdown...")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Scheduler: Scheduler loop stopped gracefully")
	case <-time.After(timeout):
		log.Println("Scheduler: Timeout waiting for scheduler loop to stop")
	}

	log.Println("Scheduler: Shutdown complete")
}
