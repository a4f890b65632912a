package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Recurring is a task that queues its own next run after completing.
type Recurring struct {
	Type  string
	Every time.Duration
}

// Runner executes queued tasks on a pool of workers.
type Runner struct {
	queue       *Queue
	handlers    map[string]Handler
	recurring   map[string]time.Duration
	logger      *slog.Logger
	workerCount int
	poll        time.Duration
	stop        chan struct{}
	once        sync.Once
	wg          sync.WaitGroup
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithPollInterval sets how long idle workers wait before polling again.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.poll = d }
}

// WithRecurring registers tasks that repeat on an interval.
func WithRecurring(rs ...Recurring) RunnerOption {
	return func(r *Runner) {
		for _, rec := range rs {
			r.recurring[rec.Type] = rec.Every
		}
	}
}

func NewRunner(queue *Queue, handlers map[string]Handler, logger *slog.Logger, workerCount int, opts ...RunnerOption) *Runner {
	if workerCount <= 0 {
		workerCount = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		queue:       queue,
		handlers:    handlers,
		recurring:   map[string]time.Duration{},
		logger:      logger,
		workerCount: workerCount,
		poll:        500 * time.Millisecond,
		stop:        make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start requeues interrupted tasks, seeds recurring tasks and launches the
// workers.
func (r *Runner) Start(ctx context.Context) error {
	if n, err := r.queue.Recover(ctx); err != nil {
		return err
	} else if n > 0 {
		r.logger.Info("requeued interrupted tasks", slog.Int64("count", n))
	}
	for typ := range r.recurring {
		pending, err := r.queue.Pending(ctx, typ)
		if err != nil {
			return err
		}
		if !pending {
			if _, err := r.queue.QueueAdhoc(ctx, typ, nil); err != nil {
				return err
			}
		}
	}
	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	return nil
}

// Stop signals workers to stop and waits for them.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			r.logger.Debug("worker stopping", slog.Int("id", id))
			return
		case <-ctx.Done():
			r.logger.Debug("context canceled, worker exiting", slog.Int("id", id))
			return
		default:
		}
		t, err := r.queue.FetchNext(ctx)
		if err != nil {
			r.logger.Error("fetch task", slog.Any("err", err))
			r.wait(ctx, time.Second)
			continue
		}
		if t == nil {
			r.wait(ctx, r.poll)
			continue
		}
		r.RunOne(ctx, t)
	}
}

func (r *Runner) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.stop:
	case <-ctx.Done():
	}
}

// RunOne executes a claimed task and records the outcome.
func (r *Runner) RunOne(ctx context.Context, t *Task) {
	log := r.logger.With(slog.Int64("task", t.ID), slog.String("type", t.Type))
	h, ok := r.handlers[t.Type]
	if !ok {
		t.Status = StatusFailed
		t.LastError = "no handler"
		if err := r.queue.MoveToFailed(ctx, t); err != nil {
			log.Error("move to failed", slog.Any("err", err))
		}
		return
	}

	start := time.Now()
	err := h(ctx, t)
	if err == nil {
		if err := r.queue.Complete(ctx, t); err != nil {
			log.Error("complete task", slog.Any("err", err))
		}
		log.Debug("task done", slog.Duration("duration", time.Since(start)))
		r.reschedule(ctx, t)
		return
	}

	t.Attempts++
	t.LastError = err.Error()
	if errors.Is(err, ErrPermanent) || t.Attempts >= t.MaxAttempts {
		t.Status = StatusFailed
		log.Warn("task failed", slog.Int("attempts", t.Attempts), slog.Any("err", err))
		if mvErr := r.queue.MoveToFailed(ctx, t); mvErr != nil {
			log.Error("move to failed", slog.Any("err", mvErr))
		}
		r.reschedule(ctx, t)
		return
	}
	next := time.Now().Add(BackoffDuration(t.Attempts))
	t.NextTryAt = &next
	t.Status = StatusRetry
	if upErr := r.queue.Update(ctx, t); upErr != nil {
		log.Error("update task for retry", slog.Any("err", upErr))
	}
}

func (r *Runner) reschedule(ctx context.Context, t *Task) {
	every, ok := r.recurring[t.Type]
	if !ok {
		return
	}
	// ad-hoc runs of a recurring type must not start a second chain
	pending, err := r.queue.Pending(ctx, t.Type)
	if err != nil {
		r.logger.Error("check pending recurring task", slog.String("type", t.Type), slog.Any("err", err))
		return
	}
	if pending {
		return
	}
	if _, err := r.queue.Schedule(ctx, t.Type, nil, time.Now().Add(every)); err != nil {
		r.logger.Error("reschedule recurring task", slog.String("type", t.Type), slog.Any("err", err))
	}
}
