package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"cryptoagent/internal/breaker"
)

// Sink publishes raw messages. *Store implements it.
type Sink interface {
	Publish(ctx context.Context, channel string, msg []byte) error
}

type pendingMessage struct {
	Channel string
	Data    []byte
}

// Publisher publishes JSON messages to a Sink. While the sink's circuit is
// open, messages are buffered locally (oldest dropped when full) and flushed
// once a publish succeeds again.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	buffer []pendingMessage
	maxBuf int

	// Callbacks
	OnBuffer func()          // called when a message is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered messages
}

// NewPublisher creates a Publisher over sink.
func NewPublisher(sink Sink, maxBufferSize int, logger *slog.Logger) *Publisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sink:   sink,
		logger: logger.With("component", "redis-publisher"),
		buffer: make([]pendingMessage, 0, 16),
		maxBuf: maxBufferSize,
	}
}

// Publish marshals v and publishes it on channel. Messages rejected by an open
// circuit are buffered and nil is returned.
func (p *Publisher) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = p.sink.Publish(ctx, channel, data)
	if errors.Is(err, breaker.ErrCircuitOpen) {
		p.bufferMessage(channel, data)
		return nil
	}
	if err != nil {
		return err
	}
	p.flush(ctx)
	return nil
}

func (p *Publisher) bufferMessage(channel string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		// Buffer full, drop oldest
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, pendingMessage{Channel: channel, Data: data})

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered messages. Messages that fail again are dropped.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]pendingMessage, 0, 16)
	p.mu.Unlock()

	flushed := 0
	for _, m := range toFlush {
		if err := p.sink.Publish(ctx, m.Channel, m.Data); err != nil {
			p.logger.Warn("buffered publish failed", "channel", m.Channel, "error", err)
			continue
		}
		flushed++
	}

	p.logger.Info("flushed buffered messages", "count", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered messages waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}
