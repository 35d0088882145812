package intercept

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Transport decorates an inner round tripper with timestamp extraction.
// It is behaviorally transparent: same response, same error, identical
// body bytes. Each in-flight request carries its own extraction state and
// buffer merges are commutative, so concurrent calls need no coordination
// beyond the buffer's own lock.
type Transport struct {
	inner       http.RoundTripper
	interceptor *Interceptor
	logger      *slog.Logger
}

// Transport wraps inner with extraction. A nil inner falls back to
// http.DefaultTransport.
func (i *Interceptor) Transport(inner http.RoundTripper) http.RoundTripper {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{inner: inner, interceptor: i, logger: i.logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	t.observe(req, resp)
	return resp, nil
}

// observe classifies the call and runs extraction. Any panic below is a
// bug in extraction, not a reason to damage the host's response; the
// original response object is already in the caller's hands.
func (t *Transport) observe(req *http.Request, resp *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("extraction panic suppressed", slog.Any("panic", r))
		}
	}()

	var u *url.URL
	if req != nil {
		u = req.URL
	}

	switch classify(u, resp) {
	case kindConversationDetail:
		t.observeJSON(resp, func(body []byte) {
			t.interceptor.publishMessages(extractDetail(body))
		})
	case kindConversationList:
		t.observeJSON(resp, func(body []byte) {
			t.interceptor.publishConversations(extractList(body))
		})
	case kindLiveStream:
		resp.Body = newStreamTap(resp.Body, t.interceptor.publishMessages)
	}
}

// observeJSON consumes the body, hands the host back a byte-identical
// replacement (including any read error, surfaced in its original
// position), and runs extraction on the copy.
func (t *Transport) observeJSON(resp *http.Response, extract func([]byte)) {
	if resp.Body == nil {
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()

	replay := io.Reader(bytes.NewReader(body))
	if err != nil {
		replay = io.MultiReader(replay, &errorReader{err: err})
	}
	resp.Body = io.NopCloser(replay)

	if err == nil {
		extract(body)
	}
}

// errorReader re-surfaces a mid-body read error after the successfully
// read prefix has been replayed.
type errorReader struct{ err error }

func (r *errorReader) Read([]byte) (int, error) { return 0, r.err }
