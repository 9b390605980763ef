package recognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// greetingPlayer serializes greeting responses. Events only enqueue work
// and nudge the player; the loop picks the best pending greeting after
// the dispatch that produced it has finished, so a batch of simultaneous
// confirmations is ordered by confidence rather than arrival.
type greetingPlayer struct {
	signal  chan struct{}
	closeCh chan struct{}
	done    chan struct{}

	// batchWindow delays the first pop after a nudge so every event of
	// the frame that triggered it lands in the queue before ordering is
	// decided.
	batchWindow time.Duration

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func newGreetingPlayer(batchWindow time.Duration) *greetingPlayer {
	return &greetingPlayer{
		signal:      make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
		batchWindow: batchWindow,
	}
}

func (p *greetingPlayer) CanIngest() bool {
	if p == nil {
		return false
	}

	select {
	case <-p.closeCh:
		return false
	default:
		return true
	}
}

// Nudge wakes the loop to check the pending queue. Multiple nudges
// coalesce; the loop drains the queue fully on each wakeup anyway.
func (p *greetingPlayer) Nudge() {
	if p == nil || !p.CanIngest() {
		return
	}

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *greetingPlayer) StartLoop(baseCtx context.Context, respond func(context.Context) bool) (started bool) {
	if p == nil || respond == nil || !p.CanIngest() {
		return false
	}

	p.startOnce.Do(func() {
		if !p.CanIngest() {
			return
		}

		started = true
		p.started.Store(true)
		go func() {
			defer close(p.done)

			for {
				select {
				case <-p.closeCh:
					return
				case <-p.signal:
					if !p.CanIngest() {
						return
					}
					if p.batchWindow > 0 {
						timer := time.NewTimer(p.batchWindow)
						select {
						case <-p.closeCh:
							timer.Stop()
							return
						case <-timer.C:
						}
					}
					// Keep responding until the queue is empty, then go
					// back to waiting for a nudge.
					for respond(baseCtx) {
						if !p.CanIngest() {
							return
						}
					}
				}
			}
		}()
	})

	return started
}

func (p *greetingPlayer) Stop() {
	if p == nil {
		return
	}

	p.endOnce.Do(func() { close(p.closeCh) })
}

func (p *greetingPlayer) AwaitDone() {
	if p == nil {
		return
	}

	if p.started.Load() {
		<-p.done
	}
}
