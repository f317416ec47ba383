package realtime

import (
	"context"
	"time"
)

// RevisionSource exposes the store's change counter.
type RevisionSource interface {
	Revision(ctx context.Context) int64
}

// Watcher polls the store revision at a fixed interval and republishes a
// coarse change event when it moved. It guarantees bounded visibility
// latency, not zero latency; intermediate revisions can be skipped.
type Watcher struct {
	cancel context.CancelFunc
}

// StartWatcher begins polling src every interval until Stop is called or the
// parent context is done.
func StartWatcher(parent context.Context, src RevisionSource, hub *Hub, interval time.Duration) *Watcher {
	ctx, cancel := context.WithCancel(parent)
	w := &Watcher{cancel: cancel}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := src.Revision(ctx)
		for {
			select {
			case <-ticker.C:
				rev := src.Revision(ctx)
				if rev != last {
					last = rev
					hub.Publish(TopicChanged, rev)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return w
}

// Stop halts polling.
func (w *Watcher) Stop() {
	w.cancel()
}
