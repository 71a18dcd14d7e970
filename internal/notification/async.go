package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async delivers alerts from a background goroutine so the caller never
// blocks on the network. Alerts are dropped when the queue is full.
type Async struct {
	next    Notifier
	queue   chan Alert
	timeout time.Duration
	logger  *slog.Logger

	// OnDrop is called for each alert dropped on a full queue (for metrics).
	OnDrop func()

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsync starts the delivery goroutine. Close drains the queue.
func NewAsync(next Notifier, queueSize int, timeout time.Duration, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:    next,
		queue:   make(chan Alert, queueSize),
		timeout: timeout,
		logger:  logger.With("component", "notify"),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

// Send enqueues the alert. It returns nil even when the alert is dropped.
func (a *Async) Send(_ context.Context, alert Alert) error {
	select {
	case a.queue <- alert:
	default:
		a.logger.Warn("notification queue full, dropping alert", "title", alert.Title)
		if a.OnDrop != nil {
			a.OnDrop()
		}
	}
	return nil
}

func (a *Async) loop() {
	defer a.wg.Done()
	for alert := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Send(ctx, alert); err != nil {
			a.logger.Warn("notification delivery failed", "title", alert.Title, "error", err)
		}
		cancel()
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered.
// Send must not be called after Close.
func (a *Async) Close() {
	a.closeOnce.Do(func() { close(a.queue) })
	a.wg.Wait()
}
