// Package dispatch implements C10: a bounded-channel, fire-and-forget
// worker pool used by MessageRouter's non-waiting fan-out mode. It is
// grounded on the teacher's audit-log async delivery queue: a buffered
// channel drained by background goroutines, with atomic counters for
// observability instead of a second lock.
package dispatch

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool is a fixed-size worker pool draining a bounded job queue.
type Pool struct {
	jobs chan func()
	log  *zap.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}

	enqueued atomic.Int64
	dropped  atomic.Int64
	done     atomic.Int64
}

// New starts a Pool with workers goroutines draining a queue of the
// given capacity.
func New(workers, queueCapacity int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}

	p := &Pool{
		jobs:   make(chan func(), queueCapacity),
		log:    log,
		stopCh: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
		p.done.Add(1)
	}
}

// Enqueue submits job for fire-and-forget execution. It never blocks
// the caller: a full queue drops the job and logs, reflecting the
// best-effort forwarding contract of spec.md's Non-goals.
func (p *Pool) Enqueue(job func()) {
	select {
	case p.jobs <- job:
		p.enqueued.Add(1)
	default:
		p.dropped.Add(1)
		if p.log != nil {
			p.log.Warn("dispatch queue full, job dropped")
		}
	}
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() (enqueued, dropped, done int64) {
	return p.enqueued.Load(), p.dropped.Load(), p.done.Load()
}

// Close stops accepting new jobs and waits for the queue to drain,
// letting already-enqueued sends finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
