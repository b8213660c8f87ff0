// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
)

// Dispatcher defaults.
const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 256
	DefaultSendTimeout = 30 * time.Second
)

var (
	// ErrQueueFull is returned when every queue slot is taken.
	ErrQueueFull = errors.New("notification queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

type job struct {
	ctx context.Context
	msg Message
}

// Dispatcher renders notifications and hands them to a bounded pool of
// workers. Notify never waits for delivery.
type Dispatcher struct {
	sender  Sender
	catalog *Catalog
	cfg     DispatcherConfig
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts the workers. A nil catalog uses DefaultCatalog.
func NewDispatcher(sender Sender, catalog *Catalog, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		sender:  sender,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan job, cfg.QueueSize),
	}
	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.work()
	}
	return d
}

// Notify renders n and queues it. The caller's cancellation does not reach
// delivery; its values (trace context) do.
func (d *Dispatcher) Notify(ctx context.Context, n auth.Notification) error {
	msg, err := d.catalog.Render(n)
	if err != nil {
		Notifications.WithLabelValues(string(n.Kind), StatusRejected).Inc()
		return err
	}
	if msg.To == "" {
		Notifications.WithLabelValues(string(n.Kind), StatusRejected).Inc()
		return oops.Code("NOTIFY_NO_RECIPIENT").With("kind", string(n.Kind)).Errorf("notification has no recipient")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return oops.Code("NOTIFY_CLOSED").Wrap(ErrClosed)
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		QueueDepth.Inc()
		return nil
	default:
		Notifications.WithLabelValues(string(n.Kind), StatusDropped).Inc()
		return oops.Code("NOTIFY_QUEUE_FULL").
			With("kind", string(n.Kind)).
			With("queue_size", d.cfg.QueueSize).
			Wrap(ErrQueueFull)
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
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
		return oops.Code("NOTIFY_DRAIN_TIMEOUT").With("pending", len(d.queue)).Wrap(ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		QueueDepth.Dec()
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(ctx, j.msg)
	SendDuration.WithLabelValues(j.msg.Template).Observe(time.Since(start).Seconds())

	if err != nil {
		Notifications.WithLabelValues(j.msg.Template, StatusFailed).Inc()
		d.logger.WarnContext(ctx, "notification delivery failed", "notification", j.msg, "error", err)
		return
	}
	Notifications.WithLabelValues(j.msg.Template, StatusSent).Inc()
	d.logger.DebugContext(ctx, "notification delivered", "notification", j.msg)
}

var _ auth.Notifier = (*Dispatcher)(nil)
