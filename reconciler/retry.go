package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/atomic"
)

const retryBatch = 100

// RetryWorker periodically re-applies dead-lettered events.
type RetryWorker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	r         *Reconciler
	letters   DeadLetters
	interval  time.Duration
	inProcess *atomic.Bool
	done      chan struct{}
}

func NewRetryWorker(ctx context.Context, r *Reconciler, letters DeadLetters, interval time.Duration) *RetryWorker {
	ctx, cancel := context.WithCancel(ctx)
	return &RetryWorker{
		ctx:       ctx,
		cancel:    cancel,
		r:         r,
		letters:   letters,
		interval:  interval,
		inProcess: atomic.NewBool(false),
		done:      make(chan struct{}),
	}
}

func (w *RetryWorker) Start() {
	go func() {
		defer close(w.done)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !w.inProcess.CAS(false, true) {
					continue
				}
				// inline so Stop returns only after the batch is done
				if _, err := w.RetryOnce(w.ctx); err != nil && w.ctx.Err() == nil {
					log.Errorw("dead letter retry failed", "err", err)
				}
				w.inProcess.Store(false)
			case <-w.ctx.Done():
				return
			}
		}
	}()
}

func (w *RetryWorker) Stop() {
	w.cancel()
	<-w.done
}

// RetryOnce re-applies one batch of dead letters and returns how many were
// resolved.
func (w *RetryWorker) RetryOnce(ctx context.Context) (int, error) {
	letters, err := w.letters.PendingDeadLetters(ctx, retryBatch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, dl := range letters {
		var ev Event
		if err := json.Unmarshal(dl.Payload, &ev); err != nil {
			if err := w.letters.FailDeadLetter(ctx, dl.ID, "undecodable payload: "+err.Error()); err != nil {
				return resolved, err
			}
			continue
		}

		if _, err := w.r.Apply(ctx, &ev); err != nil {
			log.Warnw("dead letter still failing", "id", dl.ID, "event", dl.Kind, "attempts", dl.Attempts+1, "err", err)
			if err := w.letters.FailDeadLetter(ctx, dl.ID, err.Error()); err != nil {
				return resolved, err
			}
			continue
		}

		if err := w.letters.ResolveDeadLetter(ctx, dl.ID); err != nil {
			return resolved, err
		}
		resolved++
		log.Infow("dead letter resolved", "id", dl.ID, "event", dl.Kind)
	}
	return resolved, nil
}
