package server

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/ewalden/chatstamp/internal/settings"
)

// The options page is the only writer of the settings store. It is a
// plain form: read current values, render, accept a POST back.

var optionsTemplate = template.Must(template.New("options").Parse(`<!DOCTYPE html>
<html>
<head><title>chatstamp settings</title></head>
<body>
<h1>chatstamp settings</h1>
<form method="post" action="/chatstamp/settings">
  <label>Timestamp format
    <select name="format">
      <option value="absolute" {{if eq .Format "absolute"}}selected{{end}}>absolute</option>
      <option value="relative" {{if eq .Format "relative"}}selected{{end}}>relative</option>
    </select>
  </label><br>
  <label><input type="checkbox" name="show_messages" value="true" {{if .ShowMessages}}checked{{end}}> show message timestamps</label><br>
  <label><input type="checkbox" name="show_conversations" value="true" {{if .ShowConversations}}checked{{end}}> show sidebar timestamps</label><br>
  <button type="submit">Save</button>
</form>
</body>
</html>
`))

type optionsPage struct {
	Format            string
	ShowMessages      bool
	ShowConversations bool
}

func handleSettingsForm(store *settings.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := store.All(r.Context())
		if err != nil {
			logger.Error("failed to load settings", slog.String("error", err.Error()))
			http.Error(w, "failed to load settings", http.StatusInternalServerError)
			return
		}

		page := optionsPage{
			Format:            all[settings.KeyFormat],
			ShowMessages:      all[settings.KeyShowMessages] != "false",
			ShowConversations: all[settings.KeyShowConversations] != "false",
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := optionsTemplate.Execute(w, page); err != nil {
			logger.Error("failed to render settings form", slog.String("error", err.Error()))
		}
	}
}

func handleSettingsUpdate(store *settings.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		format := r.PostFormValue("format")
		if format != "absolute" && format != "relative" {
			http.Error(w, "invalid format", http.StatusBadRequest)
			return
		}

		updates := map[string]string{
			settings.KeyFormat:            format,
			settings.KeyShowMessages:      checkboxValue(r, "show_messages"),
			settings.KeyShowConversations: checkboxValue(r, "show_conversations"),
		}
		for key, value := range updates {
			if err := store.Set(r.Context(), key, value); err != nil {
				logger.Error("failed to save setting",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				http.Error(w, "failed to save settings", http.StatusInternalServerError)
				return
			}
		}

		http.Redirect(w, r, "/chatstamp/settings", http.StatusSeeOther)
	}
}

// Unchecked checkboxes are absent from the form body entirely.
func checkboxValue(r *http.Request, name string) string {
	if r.PostFormValue(name) == "true" {
		return "true"
	}
	return "false"
}
