package intercept

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ewalden/chatstamp/internal/bus"
	"github.com/ewalden/chatstamp/internal/testutil"
)

func newTestClient(t *testing.T, inner http.RoundTripper) (*http.Client, <-chan bus.Envelope) {
	t.Helper()
	b := bus.New(nil)
	i := New(b, testOrigin, nil)
	ch := collectEnvelopes(b)
	return &http.Client{Transport: i.Transport(inner)}, ch
}

func TestTransportExtractsDetailAndPreservesBody(t *testing.T) {
	const body = `{"mapping":{"n1":{"message":{"id":"m1","create_time":1700000000,"author":{"role":"user"}}}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	client, ch := newTestClient(t, nil)

	resp, err := client.Get(srv.URL + "/backend-api/conversation/67e55044-10b1-426f-9247-bb680e5fe0c8")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != body {
		t.Errorf("body changed: %q", got)
	}

	env := waitFor(t, ch, bus.TypeTimestamps)
	ts, ok := env.Message.Timestamps["m1"]
	if !ok {
		t.Fatal("missing broadcast entry for m1")
	}
	if ts.CreateTime != 1700000000 || ts.Role == nil || *ts.Role != "user" {
		t.Errorf("unexpected record: %+v", ts)
	}
}

func TestTransportFailsOpenOnMalformedBody(t *testing.T) {
	const body = `<!DOCTYPE html><html>maintenance</html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	client, ch := newTestClient(t, nil)

	resp, err := client.Get(srv.URL + "/backend-api/conversations")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != body {
		t.Errorf("body changed: %q", got)
	}
	assertNo(t, ch, bus.TypeConversations)
}

func TestTransportLeavesUnclassifiedCallsUntouched(t *testing.T) {
	const body = `{"models":["alpha","beta"]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	client, ch := newTestClient(t, nil)

	resp, err := client.Get(srv.URL + "/backend-api/models")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != body {
		t.Errorf("body changed: %q", got)
	}
	assertNo(t, ch, bus.TypeTimestamps)
	assertNo(t, ch, bus.TypeConversations)
}

func TestTransportTapsLiveStream(t *testing.T) {
	events := "data: {\"type\":\"input_message\",\"input_message\":{\"id\":\"m2\",\"create_time\":1700000100}}\n\n" +
		"data: {\"v\":\"hello\"}\n\n" +
		"data: [DONE]\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, events)
		flusher.Flush()
	}))
	defer srv.Close()

	client, ch := newTestClient(t, nil)

	resp, err := client.Post(srv.URL+"/backend-api/conversation", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(got) != events {
		t.Errorf("stream bytes changed:\ngot:  %q\nwant: %q", got, events)
	}

	env := waitFor(t, ch, bus.TypeTimestamps)
	if _, ok := env.Message.Timestamps["m2"]; !ok {
		t.Error("missing broadcast entry for m2")
	}
}

type failingTransport struct{ err error }

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, f.err
}

func TestTransportPassesThroughErrors(t *testing.T) {
	wantErr := errors.New("upstream down")
	client, ch := newTestClient(t, &failingTransport{err: wantErr})

	_, err := client.Get("https://chat.example.com/backend-api/conversations")
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
	assertNo(t, ch, bus.TypeConversations)
}

func TestTransportAgainstRecordedListTraffic(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "conversation_list")
	defer cleanup()

	client, ch := newTestClient(t, r)

	resp, err := client.Get("https://chat.example.com/backend-api/conversations?limit=28&offset=0")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Message.Type != bus.TypeConversations {
				continue
			}
			if len(env.Message.Conversations) != 2 {
				t.Fatalf("broadcast %d records, want 2", len(env.Message.Conversations))
			}
			ts, ok := env.Message.Conversations["aaaa1111-2222-3333-4444-555566667777"]
			if !ok {
				t.Fatal("missing recorded conversation")
			}
			if ts.Title == nil || *ts.Title != "weekend plans" {
				t.Errorf("Title = %v", ts.Title)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for conversation broadcast")
		}
	}
}
