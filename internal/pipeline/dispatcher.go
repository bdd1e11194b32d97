package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zavaops/ticketflow/internal/common"
)

const workerQueueDepth = 16

// job is one stage run for one ticket.
type job struct {
	ticketID string
	stage    Stage
}

// Dispatcher runs pipeline stages in the background, serialized per ticket:
// each ticket gets a lazily created worker goroutine with its own queue, so
// two triggers for the same ticket never interleave while different tickets
// process concurrently. Idle workers drain away after idleAfter.
type Dispatcher struct {
	orc       *Orchestrator
	logger    *slog.Logger
	idleAfter time.Duration

	mu      sync.Mutex
	workers map[string]chan job
	closed  bool

	quit    chan struct{}
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIdleAfter sets how long a ticket worker lingers without jobs before
// exiting.
func WithIdleAfter(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.idleAfter = d }
}

func NewDispatcher(orc *Orchestrator, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		orc:       orc,
		logger:    logger,
		idleAfter: time.Minute,
		workers:   make(map[string]chan job),
		quit:      make(chan struct{}),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues one stage run for a ticket. It returns immediately; the
// stage runs on the ticket's worker goroutine. A full per-ticket queue is
// reported as an error rather than blocking the caller.
func (d *Dispatcher) Submit(ticketID string, stage Stage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return common.NewAppError("DISPATCHER_CLOSED", "dispatcher is shut down", common.ErrUnavailable)
	}

	ch, ok := d.workers[ticketID]
	if !ok {
		ch = make(chan job, workerQueueDepth)
		d.workers[ticketID] = ch
		d.wg.Add(1)
		go d.worker(ticketID, ch)
	}

	select {
	case ch <- job{ticketID: ticketID, stage: stage}:
		return nil
	default:
		return common.NewAppError("TICKET_BUSY",
			fmt.Sprintf("ticket %s has too many queued stage runs", ticketID),
			common.ErrConflict)
	}
}

// Pending reports how many ticket workers are currently alive.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) worker(ticketID string, ch chan job) {
	defer d.wg.Done()
	idle := time.NewTimer(d.idleAfter)
	defer idle.Stop()

	for {
		select {
		case j := <-ch:
			d.run(j)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.idleAfter)
		case <-idle.C:
			// Exit only when no job raced in: Submit sends while holding
			// the same lock, so an empty queue here means the map entry
			// can go.
			d.mu.Lock()
			if len(ch) == 0 {
				delete(d.workers, ticketID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleAfter)
		case <-d.quit:
			// Drain queued jobs before exiting so accepted work still runs.
			for {
				select {
				case j := <-ch:
					d.run(j)
				default:
					d.mu.Lock()
					delete(d.workers, ticketID)
					d.mu.Unlock()
					return
				}
			}
		case <-d.baseCtx.Done():
			d.mu.Lock()
			delete(d.workers, ticketID)
			d.mu.Unlock()
			return
		}
	}
}

func (d *Dispatcher) run(j job) {
	start := time.Now()
	d.logger.Info("dispatch.stage.start", "ticket_id", j.ticketID, "stage", j.stage.String())
	if err := d.orc.Run(d.baseCtx, j.stage, j.ticketID); err != nil {
		d.logger.Error("dispatch.stage.failed",
			"ticket_id", j.ticketID, "stage", j.stage.String(),
			"elapsed_ms", time.Since(start).Milliseconds(), "err", err)
		return
	}
	d.logger.Info("dispatch.stage.done",
		"ticket_id", j.ticketID, "stage", j.stage.String(),
		"elapsed_ms", time.Since(start).Milliseconds())
}

// Shutdown stops accepting work and waits for in-flight stages, up to the
// context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.quit)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatch.shutdown.clean")
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("dispatch.shutdown.forced")
	}
}
