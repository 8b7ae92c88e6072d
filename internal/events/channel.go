package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const deliverTimeout = 10 * time.Second

// ChannelPublisher hands events to a Notifier through a buffered channel
// drained by a single goroutine. Publish never blocks: when the buffer is
// full the event is dropped and logged.
type ChannelPublisher struct {
	ch       chan StatusChanged
	notifier Notifier
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewChannelPublisher(notifier Notifier, buffer int, log *slog.Logger) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	p := &ChannelPublisher{
		ch:       make(chan StatusChanged, buffer),
		notifier: notifier,
		log:      log.With(slog.String("component", "events.channel")),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *ChannelPublisher) Publish(ctx context.Context, ev StatusChanged) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("publisher closed; dropping event", slog.String("booking_number", ev.BookingNumber))
		return nil
	}
	select {
	case p.ch <- ev:
		return nil
	default:
		p.log.Warn("event buffer full; dropping event",
			slog.String("booking_number", ev.BookingNumber),
			slog.String("current", string(ev.Current)),
		)
		return nil
	}
}

// Close stops accepting events and waits until the buffered ones have been
// delivered.
func (p *ChannelPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *ChannelPublisher) run() {
	defer close(p.done)
	for ev := range p.ch {
		p.deliver(ev)
	}
}

func (p *ChannelPublisher) deliver(ev StatusChanged) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("notifier panicked", slog.Any("panic", r), slog.String("booking_number", ev.BookingNumber))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := p.notifier.StatusChanged(ctx, ev); err != nil {
		p.log.Warn("notifier failed", slog.Any("err", err), slog.String("booking_number", ev.BookingNumber))
	}
}
