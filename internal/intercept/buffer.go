package intercept

import (
	"sync"

	"github.com/ewalden/chatstamp/internal/timestamp"
)

// Buffer holds every record extracted since process start. It grows
// monotonically for the lifetime of the interceptor and is never cleared;
// it exists so a consumer attaching late can ask for a full replay (drain)
// instead of the interceptor tracking per-consumer delivery state.
//
// Merges are overwrite-by-key and therefore commutative: concurrent
// in-flight requests may merge in any order without a coarser lock.
// Future changes must preserve that property or add one.
type Buffer struct {
	mu            sync.RWMutex
	messages      map[string]timestamp.Message
	conversations map[string]timestamp.Conversation
}

func NewBuffer() *Buffer {
	return &Buffer{
		messages:      make(map[string]timestamp.Message),
		conversations: make(map[string]timestamp.Conversation),
	}
}

// MergeMessages folds a batch into the buffer.
func (b *Buffer) MergeMessages(batch map[string]timestamp.Message) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ts := range batch {
		b.messages[id] = ts
	}
}

// MergeConversations folds a batch into the buffer.
func (b *Buffer) MergeConversations(batch map[string]timestamp.Conversation) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ts := range batch {
		b.conversations[id] = ts
	}
}

// MessageSnapshot returns a copy of the accumulated message records.
func (b *Buffer) MessageSnapshot() map[string]timestamp.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]timestamp.Message, len(b.messages))
	for id, ts := range b.messages {
		out[id] = ts
	}
	return out
}

// ConversationSnapshot returns a copy of the accumulated conversation records.
func (b *Buffer) ConversationSnapshot() map[string]timestamp.Conversation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]timestamp.Conversation, len(b.conversations))
	for id, ts := range b.conversations {
		out[id] = ts
	}
	return out
}
