// Package clicks records redirect visits asynchronously. Resolution
// enqueues a code into a buffered channel; a background loop aggregates
// pending codes and flushes per-code deltas into the storage counter on a
// ticker and on shutdown. Accounting is best-effort: it never blocks or
// fails a redirect.
package clicks

import (
	"context"
	"fmt"
	"time"

	"github.com/linkcutapp/linkcut/internal/logger"
)

type clickIncrementer interface {
	IncrementClicks(ctx context.Context, code string, delta int64) error
}

// Recorder buffers click events and flushes them in batches.
type Recorder struct {
	queue         chan string
	db            clickIncrementer
	flushInterval time.Duration
	errorChannel  chan error
}

// New creates a Recorder with the given queue capacity and flush interval.
func New(db clickIncrementer, queueCapacity int, flushInterval time.Duration) *Recorder {
	return &Recorder{
		queue:         make(chan string, queueCapacity),
		db:            db,
		flushInterval: flushInterval,
		errorChannel:  make(chan error, queueCapacity),
	}
}

// Record enqueues one click for the code. When the queue is full the click
// is dropped; counters are eventually accurate, not transactional.
func (r *Recorder) Record(code string) {
	select {
	case r.queue <- code:
	default:
		logger.Log.Debugw("click queue full, dropping click", "code", code)
	}
}

// Run starts the background flush loop. Cancelling ctx flushes what is left
// and stops the loop. The returned channel is closed once the final flush is
// done, so callers can wait for it before tearing down the storage.
func (r *Recorder) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(r.errorChannel)

		ticker := time.NewTicker(r.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.Flush(context.Background()); err != nil {
					r.reportError(err)
				}
			case <-ctx.Done():
				if err := r.Flush(context.Background()); err != nil {
					r.reportError(err)
				}
				return
			}
		}
	}()

	return done
}

// Flush drains the queue and applies the aggregated per-code deltas. It is
// called by the background loop and directly on shutdown.
func (r *Recorder) Flush(ctx context.Context) error {
	deltas := r.drain()
	if len(deltas) == 0 {
		return nil
	}

	var firstErr error
	for code, delta := range deltas {
		if err := r.db.IncrementClicks(ctx, code, delta); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("incrementing clicks for %q: %w", code, err)
			}
			continue
		}
	}

	return firstErr
}

// ListenErrors forwards flush errors to the callback on a background
// goroutine. The goroutine exits when the flush loop closes the channel.
func (r *Recorder) ListenErrors(callback func(error)) {
	go func() {
		for err := range r.errorChannel {
			callback(err)
		}
	}()
}

func (r *Recorder) drain() map[string]int64 {
	deltas := map[string]int64{}
	for {
		select {
		case code := <-r.queue:
			deltas[code]++
		default:
			return deltas
		}
	}
}

func (r *Recorder) reportError(err error) {
	select {
	case r.errorChannel <- err:
	default:
	}
}
