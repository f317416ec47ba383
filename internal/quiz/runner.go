package quiz

import (
	"sync"
	"time"
)

// Runner drives an engine's countdown at a fixed cadence. The engine itself
// never owns the clock; stopping the runner on completion, logout or reset
// plus the engine's completed-check guarantees a stale tick is a no-op.
type Runner struct {
	stop     chan struct{}
	stopOnce sync.Once
}

// StartRunner begins ticking the engine every interval. onExpire fires once,
// from the runner goroutine, when the countdown completes the session.
func StartRunner(e *Engine, interval time.Duration, onExpire func()) *Runner {
	r := &Runner{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Tick()
				if !e.Active() {
					if onExpire != nil {
						onExpire()
					}
					return
				}
			case <-r.stop:
				return
			}
		}
	}()
	return r
}

// Stop cancels the countdown. Safe to call more than once; a tick already in
// flight lands on a completed or reset engine and does nothing.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
