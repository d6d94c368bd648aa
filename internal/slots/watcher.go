package slots

import (
	"context"
	"sync"
	"time"

	"github.com/farmacia-suite/citas-client/internal/farmacia"
)

// Update is the outcome of one slot resolution delivered to the view.
type Update struct {
	Day   time.Time
	Slots []farmacia.Slot
	Err   error
}

// Watcher serializes slot resolution for a single date selector. Each
// Select supersedes the previous one: the in-flight fetch is cancelled and
// its response, should it still arrive, is discarded. Whatever order
// responses arrive in, only the most recently selected date is ever
// applied.
type Watcher struct {
	resolver *Resolver
	onUpdate func(Update)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewWatcher wires a watcher to a resolver. onUpdate is invoked (on the
// fetching goroutine) once per non-superseded resolution.
func NewWatcher(r *Resolver, onUpdate func(Update)) *Watcher {
	if r == nil {
		panic("slots: resolver cannot be nil")
	}
	if onUpdate == nil {
		panic("slots: onUpdate cannot be nil")
	}
	return &Watcher{resolver: r, onUpdate: onUpdate}
}

// Select switches the watcher to a new date and starts resolving it.
func (w *Watcher) Select(ctx context.Context, day time.Time) {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	if w.cancel != nil {
		w.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		defer cancel()
		resolved, err := w.resolver.Resolve(fetchCtx, day)

		w.mu.Lock()
		stale := gen != w.gen
		w.mu.Unlock()
		if stale {
			w.resolver.metrics.ObserveStaleDiscard()
			return
		}
		w.onUpdate(Update{Day: day, Slots: resolved, Err: err})
	}()
}

// Close cancels any outstanding fetch and marks it superseded. Called when
// the view navigates away.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}
