package intercept

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/ewalden/chatstamp/internal/timestamp"
)

// streamTap wraps a live event-stream body so timestamps can be lifted out
// of it while the host keeps consuming it. The contract is strict: every
// byte read from the underlying body is returned to the caller unmodified
// and immediately, extraction never applies backpressure, and a fault in
// extraction must never surface through Read or Close.
type streamTap struct {
	body    io.ReadCloser
	scan    eventScanner
	flushed bool
}

func newStreamTap(body io.ReadCloser, emit func(map[string]timestamp.Message)) *streamTap {
	return &streamTap{body: body, scan: eventScanner{emit: emit}}
}

func (t *streamTap) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)
	if n > 0 {
		t.observe(p[:n])
	}
	if err != nil {
		// Stream is over (EOF or a transport fault); whatever text is
		// still pending forms the final event.
		t.flush()
	}
	return n, err
}

// Close propagates cancellation to the underlying stream so an abandoned
// read does not leave an orphaned connection behind.
func (t *streamTap) Close() error {
	t.flush()
	return t.body.Close()
}

// observe feeds a copy of the forwarded bytes to the scanner. A panic in
// the scanner is swallowed: the worst case is a lost timestamp, never a
// broken stream for the host.
func (t *streamTap) observe(chunk []byte) {
	defer func() { _ = recover() }()
	t.scan.feed(chunk)
}

func (t *streamTap) flush() {
	if t.flushed {
		return
	}
	t.flushed = true
	defer func() { _ = recover() }()
	t.scan.finish()
}

// eventScanner accumulates decoded stream text and splits it into discrete
// events on the blank-line delimiter. Partial trailing text is retained
// until the next chunk; finish parses whatever remains as a final event.
type eventScanner struct {
	pending bytes.Buffer
	emit    func(map[string]timestamp.Message)
}

var eventDelimiter = []byte("\n\n")

func (s *eventScanner) feed(chunk []byte) {
	s.pending.Write(chunk)
	for {
		raw := s.pending.Bytes()
		idx := bytes.Index(raw, eventDelimiter)
		if idx < 0 {
			return
		}
		event := make([]byte, idx)
		copy(event, raw[:idx])
		s.pending.Next(idx + len(eventDelimiter))
		s.handleEvent(event)
	}
}

func (s *eventScanner) finish() {
	if s.pending.Len() == 0 {
		return
	}
	event := s.pending.Bytes()
	s.pending = bytes.Buffer{}
	s.handleEvent(event)
}

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// handleEvent parses one complete stream event. Each data line is decoded
// independently; decode failures and the termination sentinel are ignored.
func (s *eventScanner) handleEvent(event []byte) {
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if len(payload) == 0 || bytes.Equal(payload, doneSentinel) {
			continue
		}
		s.handlePayload(payload)
	}
}

// streamEvent covers the envelope shapes that carry a message record: the
// input-message envelope sent when the user's turn is acknowledged, a
// top-level message on the first assistant turn, and the delta envelope
// used on subsequent turns. Events of any other shape decode to all-nil
// fields or fail to decode at all; both yield nothing.
type streamEvent struct {
	Type         string          `json:"type"`
	InputMessage *wireMessage    `json:"input_message"`
	Message      *wireMessage    `json:"message"`
	V            json.RawMessage `json:"v"`
}

type streamDelta struct {
	Message *wireMessage `json:"message"`
}

func (s *eventScanner) handlePayload(payload []byte) {
	var evt streamEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return
	}

	batch := make(map[string]timestamp.Message)
	for _, msg := range []*wireMessage{evt.InputMessage, evt.Message, deltaMessage(evt.V)} {
		if ts, id, ok := messageTimestamp(msg); ok {
			batch[id] = ts
		}
	}
	if len(batch) > 0 {
		// Broadcast immediately rather than at stream end; the value is
		// useful to the presenter as soon as it is known.
		s.emit(batch)
	}
}

// deltaMessage digs a message out of a delta envelope. The "v" field holds
// a full object on turn boundaries and plain text on content deltas; only
// the former carries a message.
func deltaMessage(raw json.RawMessage) *wireMessage {
	if len(raw) == 0 {
		return nil
	}
	var d streamDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return d.Message
}
