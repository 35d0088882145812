// Package presenter consumes timestamp broadcasts and decides when the
// rendering collaborator needs to run. It has no visibility into network
// traffic; its record maps are populated exclusively from bus messages,
// so they trail the interceptor's buffers until the next broadcast or
// drain reply arrives (eventual, not immediate, consistency).
package presenter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ewalden/chatstamp/internal/bus"
	"github.com/ewalden/chatstamp/internal/timestamp"
)

// Renderer owns all output concerns. It receives the full current record
// map for a category whenever that category gained at least one new id.
type Renderer interface {
	RenderMessages(map[string]timestamp.Message)
	RenderConversations(map[string]timestamp.Conversation)
}

// drainOffsets are measured from Start. The interceptor's buffers may
// still be filling when we come up, so we ask again twice; anything
// arriving after the last drain reaches us via live broadcast only.
var drainOffsets = []time.Duration{0, time.Second, 3 * time.Second}

type Presenter struct {
	origin   string
	bus      *bus.Bus
	renderer Renderer
	logger   *slog.Logger

	mu            sync.RWMutex
	messages      map[string]timestamp.Message
	conversations map[string]timestamp.Conversation
}

func New(b *bus.Bus, origin string, renderer Renderer, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Presenter{
		origin:        origin,
		bus:           b,
		renderer:      renderer,
		logger:        logger,
		messages:      make(map[string]timestamp.Message),
		conversations: make(map[string]timestamp.Conversation),
	}
	b.Subscribe(p.handleEnvelope)
	return p
}

// Start kicks off the drain schedule. Requests are fire-and-forget: no
// acknowledgment is tracked and there are no retries beyond the fixed
// offsets.
func (p *Presenter) Start(ctx context.Context) {
	go func() {
		var elapsed time.Duration
		for _, offset := range drainOffsets {
			if wait := offset - elapsed; wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
			elapsed = offset
			p.requestDrain()
		}
	}()
}

func (p *Presenter) requestDrain() {
	p.bus.Publish(bus.Envelope{
		Origin:  p.origin,
		Message: bus.Message{Type: bus.TypeDrainRequest},
	})
}

func (p *Presenter) handleEnvelope(env bus.Envelope) {
	if env.Origin != p.origin {
		return
	}
	switch env.Message.Type {
	case bus.TypeTimestamps:
		p.mergeMessages(env.Message.Timestamps)
	case bus.TypeConversations:
		p.mergeConversations(env.Message.Conversations)
	}
}

// mergeMessages folds a batch into the record map. Inserts are counted
// before the unconditional overwrite so duplicate redelivery (a drain
// replay, say) merges idempotently without re-triggering a render.
func (p *Presenter) mergeMessages(batch map[string]timestamp.Message) {
	if len(batch) == 0 {
		return
	}
	p.mu.Lock()
	fresh := 0
	for id, ts := range batch {
		if _, ok := p.messages[id]; !ok {
			fresh++
		}
		p.messages[id] = ts
	}
	var snapshot map[string]timestamp.Message
	if fresh > 0 {
		snapshot = copyMessages(p.messages)
	}
	p.mu.Unlock()

	if fresh > 0 {
		p.logger.Debug("new message timestamps", slog.Int("count", fresh))
		p.renderer.RenderMessages(snapshot)
	}
}

func (p *Presenter) mergeConversations(batch map[string]timestamp.Conversation) {
	if len(batch) == 0 {
		return
	}
	p.mu.Lock()
	fresh := 0
	for id, ts := range batch {
		if _, ok := p.conversations[id]; !ok {
			fresh++
		}
		p.conversations[id] = ts
	}
	var snapshot map[string]timestamp.Conversation
	if fresh > 0 {
		snapshot = copyConversations(p.conversations)
	}
	p.mu.Unlock()

	if fresh > 0 {
		p.logger.Debug("new conversation timestamps", slog.Int("count", fresh))
		p.renderer.RenderConversations(snapshot)
	}
}

// Messages returns a copy of the current record map.
func (p *Presenter) Messages() map[string]timestamp.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyMessages(p.messages)
}

// Conversations returns a copy of the current record map.
func (p *Presenter) Conversations() map[string]timestamp.Conversation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyConversations(p.conversations)
}

func copyMessages(m map[string]timestamp.Message) map[string]timestamp.Message {
	out := make(map[string]timestamp.Message, len(m))
	for id, ts := range m {
		out[id] = ts
	}
	return out
}

func copyConversations(m map[string]timestamp.Conversation) map[string]timestamp.Conversation {
	out := make(map[string]timestamp.Conversation, len(m))
	for id, ts := range m {
		out[id] = ts
	}
	return out
}
