package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ewalden/chatstamp/internal/settings"
	"github.com/ewalden/chatstamp/internal/timestamp"
)

func openTestStore(t *testing.T) *settings.Store {
	t.Helper()
	s, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strptr(s string) *string { return &s }

type messagesPayload struct {
	Enabled bool           `json:"enabled"`
	Entries []MessageEntry `json:"entries"`
}

func getMessages(t *testing.T, v *View) messagesPayload {
	t.Helper()
	srv := httptest.NewServer(v.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/messages")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload messagesPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

func TestViewFormatsAbsolute(t *testing.T) {
	v := New(openTestStore(t), nil)

	role := "user"
	v.RenderMessages(map[string]timestamp.Message{
		"m1": {CreateTime: 1700000000, Role: &role},
	})

	payload := getMessages(t, v)
	if !payload.Enabled {
		t.Error("messages disabled by default")
	}
	if len(payload.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(payload.Entries))
	}
	entry := payload.Entries[0]
	if entry.Display != "2023-11-14T22:13:20Z" {
		t.Errorf("Display = %q", entry.Display)
	}
	if entry.Role != "user" {
		t.Errorf("Role = %q", entry.Role)
	}
}

func TestViewFormatsRelative(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set(context.Background(), settings.KeyFormat, "relative"); err != nil {
		t.Fatalf("set format: %v", err)
	}

	v := New(store, nil)
	v.now = func() time.Time { return time.Unix(1700003600, 0) } // one hour later
	v.RenderMessages(map[string]timestamp.Message{"m1": {CreateTime: 1700000000}})

	payload := getMessages(t, v)
	if len(payload.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(payload.Entries))
	}
	if got := payload.Entries[0].Display; !strings.Contains(got, "hour") || !strings.Contains(got, "ago") {
		t.Errorf("Display = %q, want a relative phrase", got)
	}
}

func TestViewSortsMessagesByCreateTime(t *testing.T) {
	v := New(openTestStore(t), nil)
	v.RenderMessages(map[string]timestamp.Message{
		"late":  {CreateTime: 300},
		"early": {CreateTime: 100},
		"mid":   {CreateTime: 200},
	})

	payload := getMessages(t, v)
	var ids []string
	for _, e := range payload.Entries {
		ids = append(ids, e.ID)
	}
	want := []string{"early", "mid", "late"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestViewHidesDisabledCategory(t *testing.T) {
	store := openTestStore(t)
	v := New(store, nil)
	v.RenderMessages(map[string]timestamp.Message{"m1": {CreateTime: 1}})

	// The settings subscription re-renders the view on change.
	if err := store.Set(context.Background(), settings.KeyShowMessages, "false"); err != nil {
		t.Fatalf("set: %v", err)
	}

	payload := getMessages(t, v)
	if payload.Enabled {
		t.Error("messages still enabled")
	}
	if len(payload.Entries) != 0 {
		t.Errorf("got %d entries, want 0", len(payload.Entries))
	}
}

func TestViewConversations(t *testing.T) {
	v := New(openTestStore(t), nil)
	v.RenderConversations(map[string]timestamp.Conversation{
		"c1": {
			CreateTime: "2024-01-01T00:00:00Z",
			UpdateTime: strptr("2024-01-02T00:00:00Z"),
			Title:      strptr("notes"),
		},
		"c2": {CreateTime: "not-a-timestamp"},
	})

	srv := httptest.NewServer(v.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/conversations")
	if err != nil {
		t.Fatalf("get conversations: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Enabled bool                `json:"enabled"`
		Entries []ConversationEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(payload.Entries))
	}

	byID := map[string]ConversationEntry{}
	for _, e := range payload.Entries {
		byID[e.ID] = e
	}
	if byID["c1"].Title != "notes" || byID["c1"].Display != "2024-01-01T00:00:00Z" {
		t.Errorf("c1 = %+v", byID["c1"])
	}
	// Unparseable create times fall back to the raw value.
	if byID["c2"].Display != "not-a-timestamp" {
		t.Errorf("c2 display = %q", byID["c2"].Display)
	}
}
