// Package render is the output side of the pipeline: it turns the
// presenter's record maps into a formatted, settings-aware view served
// over the local HTTP API. It owns all formatting; the presenter only
// tells it when something new arrived.
package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/ewalden/chatstamp/internal/settings"
	"github.com/ewalden/chatstamp/internal/timestamp"
)

// MessageEntry is one formatted message timestamp.
type MessageEntry struct {
	ID         string  `json:"id"`
	CreateTime float64 `json:"create_time"`
	Role       string  `json:"role,omitempty"`
	Display    string  `json:"display"`
}

// ConversationEntry is one formatted conversation-list timestamp.
type ConversationEntry struct {
	ID         string `json:"id"`
	CreateTime string `json:"create_time"`
	UpdateTime string `json:"update_time,omitempty"`
	Title      string `json:"title,omitempty"`
	Display    string `json:"display"`
}

// View caches formatted entries, rebuilt when records or settings change.
type View struct {
	store  *settings.Store
	logger *slog.Logger
	now    func() time.Time

	mu                sync.RWMutex
	messages          map[string]timestamp.Message
	conversations     map[string]timestamp.Conversation
	messageView       []MessageEntry
	conversationView  []ConversationEntry
	showMessages      bool
	showConversations bool
}

func New(store *settings.Store, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	v := &View{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	if store != nil {
		store.Subscribe(func(string, string) { v.refresh() })
	}
	v.refresh()
	return v
}

// RenderMessages replaces the message records and rebuilds the view.
func (v *View) RenderMessages(records map[string]timestamp.Message) {
	v.mu.Lock()
	v.messages = records
	v.mu.Unlock()
	v.refresh()
}

// RenderConversations replaces the conversation records and rebuilds the view.
func (v *View) RenderConversations(records map[string]timestamp.Conversation) {
	v.mu.Lock()
	v.conversations = records
	v.mu.Unlock()
	v.refresh()
}

func (v *View) refresh() {
	format, showMsgs, showConvs := v.preferences()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.showMessages = showMsgs
	v.showConversations = showConvs

	v.messageView = v.messageView[:0]
	if showMsgs {
		for id, ts := range v.messages {
			entry := MessageEntry{
				ID:         id,
				CreateTime: ts.CreateTime,
				Display:    v.formatUnix(ts.CreateTime, format),
			}
			if ts.Role != nil {
				entry.Role = *ts.Role
			}
			v.messageView = append(v.messageView, entry)
		}
		sort.Slice(v.messageView, func(i, j int) bool {
			return v.messageView[i].CreateTime < v.messageView[j].CreateTime
		})
	}

	v.conversationView = v.conversationView[:0]
	if showConvs {
		for id, ts := range v.conversations {
			entry := ConversationEntry{
				ID:         id,
				CreateTime: ts.CreateTime,
				Display:    v.formatISO(ts.CreateTime, format),
			}
			if ts.UpdateTime != nil {
				entry.UpdateTime = *ts.UpdateTime
			}
			if ts.Title != nil {
				entry.Title = *ts.Title
			}
			v.conversationView = append(v.conversationView, entry)
		}
		// ISO-8601 sorts lexicographically.
		sort.Slice(v.conversationView, func(i, j int) bool {
			return v.conversationView[i].CreateTime < v.conversationView[j].CreateTime
		})
	}
}

func (v *View) preferences() (format string, showMsgs, showConvs bool) {
	format = "absolute"
	showMsgs, showConvs = true, true
	if v.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	all, err := v.store.All(ctx)
	if err != nil {
		v.logger.Warn("failed to read settings, using defaults", slog.String("error", err.Error()))
		return
	}
	if f := all[settings.KeyFormat]; f != "" {
		format = f
	}
	showMsgs = all[settings.KeyShowMessages] != "false"
	showConvs = all[settings.KeyShowConversations] != "false"
	return
}

func (v *View) formatUnix(sec float64, format string) string {
	t := time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9)).UTC()
	return v.formatTime(t, format)
}

func (v *View) formatISO(iso, format string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Keep whatever the backend sent rather than showing nothing.
		return iso
	}
	return v.formatTime(t, format)
}

func (v *View) formatTime(t time.Time, format string) string {
	if format == "relative" {
		return humanize.RelTime(t, v.now(), "ago", "from now")
	}
	return t.Format(time.RFC3339)
}

// Routes exposes the read side of the view.
func (v *View) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/messages", v.HandleMessages)
	r.Get("/conversations", v.HandleConversations)
	return r
}

func (v *View) HandleMessages(w http.ResponseWriter, r *http.Request) {
	v.mu.RLock()
	payload := struct {
		Enabled bool           `json:"enabled"`
		Entries []MessageEntry `json:"entries"`
	}{v.showMessages, append([]MessageEntry(nil), v.messageView...)}
	v.mu.RUnlock()

	writeJSON(w, payload)
}

func (v *View) HandleConversations(w http.ResponseWriter, r *http.Request) {
	v.mu.RLock()
	payload := struct {
		Enabled bool                `json:"enabled"`
		Entries []ConversationEntry `json:"entries"`
	}{v.showConversations, append([]ConversationEntry(nil), v.conversationView...)}
	v.mu.RUnlock()

	writeJSON(w, payload)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
