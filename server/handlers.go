package server

import (
	"encoding/json"
	"net/http"

	"github.com/sub20hz/kickbot/bot"
)

// Session is the slice of the credential session the probes need.
type Session interface {
	Authenticated() bool
	Username() string
}

// Handlers holds the dependencies the HTTP endpoints read from.
type Handlers struct {
	Session Session
	Bot     *bot.Bot
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests: the bot is ready once
// the account is logged in and the dispatch loop is running.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		ok   bool
	}{
		{"session", h.Session.Authenticated()},
		{"polling", h.Bot.Status().Running},
	}

	for _, check := range checks {
		if !check.ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns the bot's point-in-time snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := struct {
		Account string     `json:"account"`
		Bot     bot.Status `json:"bot"`
	}{
		Account: h.Session.Username(),
		Bot:     h.Bot.Status(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
