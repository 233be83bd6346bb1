package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job builds the message to send. Building runs on a worker, so lookups such
// as recipient addresses never delay the request that produced the event. A
// job returning a nil message is skipped.
type Job func(ctx context.Context) (*Message, error)

// Recorder receives delivery outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	Notification(result string)
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) Notification(string) {}
func (nopRecorder) QueueDepth(int)      {}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher runs notification jobs on a fixed worker pool fed by a bounded
// queue. Enqueue never blocks; a full queue drops the job.
type Dispatcher struct {
	sender  Sender
	logger  zerolog.Logger
	rec     Recorder
	timeout time.Duration

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger zerolog.Logger, rec Recorder) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if rec == nil {
		rec = nopRecorder{}
	}

	d := &Dispatcher{
		sender:  sender,
		logger:  logger.With().Str("component", "notification_dispatcher").Logger(),
		rec:     rec,
		timeout: cfg.SendTimeout,
		jobs:    make(chan Job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands a job to the pool without waiting.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.jobs <- job:
		d.rec.QueueDepth(len(d.jobs))
		return nil
	default:
		d.rec.Notification("dropped")
		d.logger.Warn().Int("queue_size", cap(d.jobs)).Msg("notification queue full, dropping event")
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.rec.QueueDepth(len(d.jobs))
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.rec.Notification("failed")
			d.logger.Error().Interface("panic", r).Msg("notification job panicked")
		}
	}()

	msg, err := job(ctx)
	if err != nil {
		d.rec.Notification("failed")
		d.logger.Warn().Err(err).Msg("notification build failed")
		return
	}
	if msg == nil {
		return
	}

	if err := d.sender.Send(ctx, *msg); err != nil {
		d.rec.Notification("failed")
		d.logger.Warn().Err(err).Str("to", msg.RecipientEmail).Str("subject", msg.Subject).Msg("notification send failed")
		return
	}
	d.rec.Notification("sent")
}

// Close stops accepting jobs and waits for queued ones to finish or for ctx
// to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
