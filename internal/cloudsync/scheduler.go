package cloudsync

import (
	"context"
	"time"
)

// Priority selects the debounce delay of a scheduled sync.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running        bool          `json:"running" yaml:"running"`
	Syncing        bool          `json:"syncing" yaml:"syncing"`
	LastSyncTime   *time.Time    `json:"lastSyncTime,omitempty" yaml:"lastSyncTime,omitempty"`
	LastResult     *Result       `json:"lastResult,omitempty" yaml:"lastResult,omitempty"`
	DebounceNormal time.Duration `json:"debounceNormal" yaml:"debounceNormal"`
	DebounceHigh   time.Duration `json:"debounceHigh" yaml:"debounceHigh"`
}

// Start launches the background loop and schedules an initial sync.
// Calling Start on a running orchestrator does nothing.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Debug("sync service already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	go o.loop(loopCtx, done)
	o.logger.Info("cloud sync service started", "budgetId", short(o.opts.BudgetID))

	o.ScheduleSync(PriorityNormal)
}

// loop runs queued syncs one at a time until ctx is cancelled.
func (o *Orchestrator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.queue:
			if ctx.Err() != nil {
				return
			}
			// The result is logged and kept for Status.
			_, _ = o.ForceSync(ctx)
		}
	}
}

// ScheduleSync queues a sync after the debounce delay for priority,
// restarting the delay if a sync is already pending. Ignored unless started.
func (o *Orchestrator) ScheduleSync(priority Priority) {
	delay := o.opts.DebounceNormal
	if priority == PriorityHigh {
		delay = o.opts.DebounceHigh
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		o.logger.Debug("sync service not running, ignoring schedule request")
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(delay, o.enqueue)
}

// TriggerCriticalSync cancels any pending debounce and queues a sync now.
// Ignored unless started.
func (o *Orchestrator) TriggerCriticalSync(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.logger.Info("critical change detected, triggering immediate sync", "reason", reason)
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.enqueue()
}

// enqueue queues one sync. Requests made while one is already queued
// collapse into it.
func (o *Orchestrator) enqueue() {
	select {
	case o.queue <- struct{}{}:
	default:
	}
}

// Stop cancels pending syncs and waits for the loop, including any sync it
// is running, to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.running = false
	o.cancel()
	done := o.done
	o.mu.Unlock()

	<-done
	// Drop a request that raced with shutdown.
	select {
	case <-o.queue:
	default:
	}
	o.logger.Info("cloud sync service stopped", "budgetId", short(o.opts.BudgetID))
}

// Status reports whether the loop runs, whether a sync is in flight and the
// last outcome.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		Running:        o.running,
		Syncing:        o.syncing.Load(),
		LastResult:     o.lastResult,
		DebounceNormal: o.opts.DebounceNormal,
		DebounceHigh:   o.opts.DebounceHigh,
	}
	if !o.lastSync.IsZero() {
		t := o.lastSync
		st.LastSyncTime = &t
	}
	return st
}
