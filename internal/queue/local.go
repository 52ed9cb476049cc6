package queue

import (
	"context"
	"fmt"
	"sync"

	"intake-portal/internal/shared/metrics"
	"intake-portal/internal/shared/telemetry"
)

// LocalPool is an in-process queue: a buffered channel drained by a fixed number of goroutines.
type LocalPool struct {
	handler Handler
	jobs    chan string
	workers int

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewLocalPool creates a pool with the given worker count and buffer size.
func NewLocalPool(workers, buffer int, handler Handler) *LocalPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalPool{handler: handler, jobs: make(chan string, buffer), workers: workers}
}

// Start launches the workers. Handlers run under a context derived from ctx.
func (p *LocalPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Send enqueues msg, blocking while the buffer is full.
func (p *LocalPool) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode local message: %w", err)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- string(payload):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages, lets workers finish what is buffered and waits for them.
// If ctx ends first, in-flight handlers are canceled.
func (p *LocalPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *LocalPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for body := range p.jobs {
		metrics.IncQueueJobsReceived()
		if err := p.handle(ctx, body); err != nil {
			telemetry.Error("queue.local.handle_failed", map[string]any{
				"worker": id,
				"error":  err,
			})
		}
	}
}

func (p *LocalPool) handle(ctx context.Context, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.handler(ctx, body)
}

var _ Client = (*LocalPool)(nil)
