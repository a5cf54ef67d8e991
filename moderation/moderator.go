// Package moderation issues best-effort moderation and chat actions through
// the credential session's transport. Failures are logged and reported as
// failure values; nothing in this package panics or aborts the dispatch loop.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
)

// Session is the slice of the credential session moderation calls need.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
	Authorize(req *http.Request)
}

// ViewerInfo is the channel-scoped record for one viewer.
type ViewerInfo struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	Slug           string `json:"slug"`
	FollowingSince string `json:"following_since"`
	SubscribedFor  int    `json:"subscribed_for"`
	Banned         bool   `json:"banned"`
}

// Moderator performs timeouts, bans, and viewer lookups for one channel. The
// bot account must hold moderator status in the channel for these to succeed.
type Moderator struct {
	Session Session
	BaseURL string
	Slug    string
}

// TimeoutUser bans a user for the given number of minutes. Returns false on
// failure; the failure is logged, never raised.
func (m *Moderator) TimeoutUser(ctx context.Context, username string, minutes int) bool {
	ok := m.ban(ctx, map[string]any{
		"banned_username": username,
		"duration":        minutes,
		"permanent":       false,
	})
	if ok {
		slog.Info("timed out user", slog.String("username", username), slog.Int("minutes", minutes))
	}
	return ok
}

// Permaban permanently bans a user. Returns false on failure.
func (m *Moderator) Permaban(ctx context.Context, username string) bool {
	ok := m.ban(ctx, map[string]any{
		"banned_username": username,
		"permanent":       true,
	})
	if ok {
		slog.Info("permanently banned user", slog.String("username", username))
	}
	return ok
}

func (m *Moderator) ban(ctx context.Context, payload map[string]any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ban payload", slog.Any("err", err))
		return false
	}
	u := m.BaseURL + "/api/v2/channels/" + m.Slug + "/bans"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		slog.Error("build ban request", slog.Any("err", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	m.Session.Authorize(req)
	resp, err := m.Session.Do(req)
	if err != nil {
		slog.Warn("ban request failed", slog.Any("err", err))
		return false
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		slog.Warn("ban request rejected", slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// ViewerInfo looks up a viewer's channel record (following since, subscription
// length, ban state). Returns nil when the lookup fails.
func (m *Moderator) ViewerInfo(ctx context.Context, username string) *ViewerInfo {
	u := m.BaseURL + "/api/v2/channels/" + m.Slug + "/users/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		slog.Error("build viewer info request", slog.Any("err", err))
		return nil
	}
	m.Session.Authorize(req)
	resp, err := m.Session.Do(req)
	if err != nil {
		slog.Warn("viewer info request failed", slog.String("username", username), slog.Any("err", err))
		return nil
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		slog.Warn("viewer info request rejected",
			slog.String("username", username), slog.Int("status", resp.StatusCode))
		return nil
	}
	var info ViewerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		slog.Warn("decode viewer info", slog.Any("err", err))
		return nil
	}
	return &info
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
