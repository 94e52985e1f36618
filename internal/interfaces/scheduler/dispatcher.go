package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	syncdomain "moneta/internal/domain/sync"
)

// JobFactory builds the job that will run for an accepted enqueue. Injected
// so the dispatcher stays decoupled from sync wiring.
type JobFactory func(connectionID string, mode syncdomain.Mode, metadata map[string]string) Job

// DispatcherConfig holds the dispatcher's uniqueness windows and the worker
// pool sizing.
type DispatcherConfig struct {
	// IncrementalWindow collapses repeat incremental enqueues for the same
	// connection (webhook bursts, scheduler overlap).
	IncrementalWindow time.Duration

	// InitialWindow collapses repeat initial-import enqueues. Wider than the
	// incremental window because initial imports run long.
	InitialWindow time.Duration

	WorkerCount int
	JobDelay    time.Duration
	QueueSize   int
}

// Dispatcher owns the worker pool and enforces job uniqueness: at most one
// pending (connection, mode) job per window. Everything that wants a sync to
// happen (webhooks, the scheduler, manual refresh) goes through Enqueue.
type Dispatcher struct {
	cfg     DispatcherConfig
	pool    *WorkerPool
	factory JobFactory

	mu      sync.Mutex
	pending map[string]time.Time

	now func() time.Time
}

// NewDispatcher creates a dispatcher and its worker pool. Start must be
// called before jobs run.
func NewDispatcher(cfg DispatcherConfig, factory JobFactory) *Dispatcher {
	if cfg.IncrementalWindow <= 0 {
		cfg.IncrementalWindow = time.Minute
	}
	if cfg.InitialWindow <= 0 {
		cfg.InitialWindow = 5 * time.Minute
	}

	return &Dispatcher{
		cfg:     cfg,
		pool:    NewWorkerPool(cfg.WorkerCount, cfg.JobDelay, cfg.QueueSize),
		factory: factory,
		pending: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.pool.Start()
}

// Shutdown drains the worker pool.
func (d *Dispatcher) Shutdown(timeout time.Duration) {
	d.pool.Shutdown(timeout)
}

// Enqueue schedules a sync job for the connection. It reports false when an
// equivalent job was already accepted within the uniqueness window; the
// pending run will pick up whatever state prompted this enqueue, so a
// collapsed enqueue is success, not failure. delay defers submission to the
// pool without holding a worker.
func (d *Dispatcher) Enqueue(connectionID string, mode syncdomain.Mode, metadata map[string]string, delay time.Duration) (bool, error) {
	key := connectionID + "|" + string(mode)
	now := d.now()

	d.mu.Lock()
	if expiry, ok := d.pending[key]; ok && now.Before(expiry) {
		d.mu.Unlock()
		log.Printf("Dispatcher: %s sync for connection %s already pending, collapsing", mode, connectionID)
		return false, nil
	}
	d.pending[key] = now.Add(d.window(mode) + delay)
	d.prune(now)
	d.mu.Unlock()

	job := d.factory(connectionID, mode, metadata)

	if delay > 0 {
		time.AfterFunc(delay, func() {
			if err := d.pool.Submit(job); err != nil {
				d.release(key)
				log.Printf("Dispatcher: failed to submit delayed job for connection %s: %v", connectionID, err)
			}
		})
		return true, nil
	}

	if err := d.pool.Submit(job); err != nil {
		d.release(key)
		return false, fmt.Errorf("failed to submit sync job: %w", err)
	}
	return true, nil
}

func (d *Dispatcher) window(mode syncdomain.Mode) time.Duration {
	if mode == syncdomain.ModeInitial {
		return d.cfg.InitialWindow
	}
	return d.cfg.IncrementalWindow
}

// release clears a pending entry after a failed submission so the next
// enqueue is not suppressed by a job that never ran.
func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

// prune drops expired entries. Called under mu.
func (d *Dispatcher) prune(now time.Time) {
	for key, expiry := range d.pending {
		if !now.Before(expiry) {
			delete(d.pending, key)
		}
	}
}
