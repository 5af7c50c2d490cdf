package notification

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/events"
	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

// DefaultClientBuffer is the per-client SSE queue length.
const DefaultClientBuffer = 32

// Message is one SSE frame.
type Message struct {
	Event string
	Data  []byte
}

// Subscription is a connected SSE client. C is closed when the subscription
// ends.
type Subscription struct {
	C <-chan Message

	ch      chan Message
	station string
	hub     *Broadcaster
	once    sync.Once
}

// Close unregisters the client. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Broadcaster fans events out to SSE clients. A client that falls behind
// loses messages instead of stalling the event bus.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*Subscription]struct{}
	buffer  int
	closed  bool
	metrics *metrics.NotificationMetrics
}

// NewBroadcaster creates an SSE hub. buffer <= 0 selects DefaultClientBuffer.
func NewBroadcaster(buffer int, m *metrics.NotificationMetrics) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Broadcaster{
		clients: make(map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: m,
	}
}

// Subscribe registers a client. An empty station receives every station.
func (b *Broadcaster) Subscribe(station string) *Subscription {
	ch := make(chan Message, b.buffer)
	sub := &Subscription{C: ch, ch: ch, station: station, hub: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	b.clients[sub] = struct{}{}
	b.metrics.SSEClientConnected(1)

	GetLogger().Debug("sse client connected",
		logger.String("station", station),
		logger.Int("clients", len(b.clients)))
	return sub
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[sub]; !ok {
		return
	}
	delete(b.clients, sub)
	close(sub.ch)
	b.metrics.SSEClientConnected(-1)
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Name implements events.EventConsumer
func (b *Broadcaster) Name() string { return "sse" }

// ProcessEvent implements events.EventConsumer
func (b *Broadcaster) ProcessEvent(event events.Event) error {
	var payload any
	switch e := event.(type) {
	case *events.NowPlayingEvent:
		payload = nowPlayingMessage(e)
	case *events.DuplicateAlertEvent:
		payload = duplicateAlertMessage(e)
	default:
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryBroadcast).
			Context("operation", "marshal_sse").
			Build()
	}
	msg := Message{Event: event.EventType(), Data: data}
	slug := event.StationSlug()
	channels := event.Channels()

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.clients {
		if sub.station != "" && !slices.Contains(channels, events.StationChannel(sub.station)) {
			continue
		}
		select {
		case sub.ch <- msg:
			b.metrics.RecordSSEMessage(msg.Event)
		default:
			b.metrics.RecordSSEDropped()
			GetLogger().Debug("sse client buffer full, message dropped",
				logger.String("station", slug),
				logger.String("event", msg.Event))
		}
	}
	return nil
}

// Close disconnects every client and rejects new subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.clients {
		close(sub.ch)
		delete(b.clients, sub)
		b.metrics.SSEClientConnected(-1)
	}
}
