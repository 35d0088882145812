// Package intercept wraps the proxy's network transport to lift message
// and conversation creation times out of backend responses the host
// application already receives. It never blocks, alters, or delays those
// responses: every extraction path fails open, and the worst outcome of
// any fault here is a missing timestamp downstream.
package intercept

import (
	"log/slog"

	"github.com/ewalden/chatstamp/internal/bus"
	"github.com/ewalden/chatstamp/internal/timestamp"
)

// Interceptor owns the replay buffers and the broadcast side of the bus.
// Construct exactly one per process, before the proxy serves its first
// request, so no traffic bypasses the wrapped transport.
type Interceptor struct {
	origin string
	buffer *Buffer
	bus    *bus.Bus
	logger *slog.Logger
}

func New(b *bus.Bus, origin string, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Interceptor{
		origin: origin,
		buffer: NewBuffer(),
		bus:    b,
		logger: logger,
	}
	b.Subscribe(i.handleEnvelope)
	return i
}

// handleEnvelope answers drain requests. Everything else on the bus is
// outbound from our point of view.
func (i *Interceptor) handleEnvelope(env bus.Envelope) {
	if env.Origin != i.origin {
		return
	}
	if env.Message.Type != bus.TypeDrainRequest {
		return
	}
	i.drain()
}

// drain re-broadcasts the entire accumulated buffers, each category only
// if non-empty, using the same message types as incremental broadcasts.
// Replay is idempotent for receivers, so no delivery tracking is needed.
func (i *Interceptor) drain() {
	if snap := i.buffer.MessageSnapshot(); len(snap) > 0 {
		i.bus.Publish(bus.Envelope{
			Origin:  i.origin,
			Message: bus.Message{Type: bus.TypeTimestamps, Timestamps: snap},
		})
	}
	if snap := i.buffer.ConversationSnapshot(); len(snap) > 0 {
		i.bus.Publish(bus.Envelope{
			Origin:  i.origin,
			Message: bus.Message{Type: bus.TypeConversations, Conversations: snap},
		})
	}
}

// publishMessages merges a freshly extracted batch into the buffer and
// broadcasts the batch (not the whole buffer). Empty batches are dropped
// to avoid noise.
func (i *Interceptor) publishMessages(batch map[string]timestamp.Message) {
	if len(batch) == 0 {
		return
	}
	i.buffer.MergeMessages(batch)
	i.bus.Publish(bus.Envelope{
		Origin:  i.origin,
		Message: bus.Message{Type: bus.TypeTimestamps, Timestamps: batch},
	})
	i.logger.Debug("broadcast message timestamps", slog.Int("count", len(batch)))
}

func (i *Interceptor) publishConversations(batch map[string]timestamp.Conversation) {
	if len(batch) == 0 {
		return
	}
	i.buffer.MergeConversations(batch)
	i.bus.Publish(bus.Envelope{
		Origin:  i.origin,
		Message: bus.Message{Type: bus.TypeConversations, Conversations: batch},
	})
	i.logger.Debug("broadcast conversation timestamps", slog.Int("count", len(batch)))
}
