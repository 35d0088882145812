// Package bus is the broadcast channel between the interceptor and the
// presenter. The two components never hold references to each other; every
// exchange goes through here as an asynchronous, fire-and-forget message.
// Delivery is at-most-once per subscriber and unordered across subscribers.
package bus

import (
	"log/slog"
	"sync"

	"github.com/ewalden/chatstamp/internal/timestamp"
)

// Message type tags. The schema is a closed set: a message carries exactly
// one of the payload fields below, selected by Type.
const (
	TypeTimestamps    = "TIMESTAMPS"
	TypeConversations = "CONVERSATIONS"
	TypeDrainRequest  = "DRAIN_REQUEST"
)

// Message is one tagged variant on the wire.
type Message struct {
	Type          string                            `json:"type"`
	Timestamps    map[string]timestamp.Message      `json:"timestamps,omitempty"`
	Conversations map[string]timestamp.Conversation `json:"conversations,omitempty"`
}

// Envelope wraps a message with its sender origin. Receivers drop
// envelopes whose origin does not match their own.
type Envelope struct {
	Origin  string
	Message Message
}

// subscriberQueueLen bounds each subscriber's mailbox. Publish never
// blocks; when a mailbox is full the envelope is dropped for that
// subscriber, matching the channel's at-most-once contract.
const subscriberQueueLen = 64

type subscriber struct {
	ch chan Envelope
}

// Bus fans envelopes out to subscribers, each served by its own goroutine
// so a slow handler cannot stall a publisher.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []*subscriber
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler. The handler runs on a dedicated goroutine
// and receives envelopes in publish order for this subscriber only; no
// ordering holds across subscribers.
func (b *Bus) Subscribe(handler func(Envelope)) {
	sub := &subscriber{ch: make(chan Envelope, subscriberQueueLen)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for env := range sub.ch {
			handler(env)
		}
	}()
}

// Publish delivers the envelope to every subscriber without blocking.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default:
			b.logger.Debug("bus subscriber queue full, dropping message",
				slog.String("type", env.Message.Type))
		}
	}
}
