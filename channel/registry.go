// Package channel resolves a streamer's name to the numeric chatroom id and
// per-chatroom capabilities needed before the realtime socket can be joined.
// Resolution performs no retries; a failed lookup should abort bot startup
// since the socket cannot be joined without a chatroom id.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sub20hz/kickbot/telemetry"
)

// DefaultAPIBaseURL hosts the private viewer-count endpoint, which lives on a
// separate domain from the main front end.
const DefaultAPIBaseURL = "https://api.kick.com"

// Session is the slice of the credential session the registry needs.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
	Authorize(req *http.Request)
}

// Descriptor describes a resolved chatroom. Once resolved it is read-only;
// the monitored channel never changes for the bot's lifetime.
type Descriptor struct {
	Name         string
	Slug         string
	ChannelID    int
	ChatroomID   int
	Settings     json.RawMessage
	IsModerator  bool
	IsSuperAdmin bool
}

// Registry issues channel lookups through the credential session.
type Registry struct {
	Session    Session
	BaseURL    string
	APIBaseURL string
}

func (r *Registry) apiBaseURL() string {
	if r.APIBaseURL != "" {
		return r.APIBaseURL
	}
	return DefaultAPIBaseURL
}

// Slug converts a channel name to its URL slug form.
func Slug(name string) string { return strings.ReplaceAll(name, "_", "-") }

// Resolve fetches channel info, chatroom settings, and the bot's own
// membership record for the named channel.
func (r *Registry) Resolve(ctx context.Context, name string) (*Descriptor, error) {
	slug := Slug(name)
	ctx, span := telemetry.StartSpan(ctx, "channel-registry", "resolve",
		attribute.String("channel", slug))
	defer span.End()
	d := &Descriptor{Name: name, Slug: slug}

	for _, fetch := range []func(context.Context, *Descriptor) error{
		r.fetchInfo, r.fetchSettings, r.fetchMembership,
	} {
		if err := fetch(ctx, d); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
	telemetry.SetSpanSuccess(span)
	slog.Info("channel resolved",
		slog.String("channel", name),
		slog.Int("chatroom_id", d.ChatroomID),
		slog.Bool("is_moderator", d.IsModerator))
	return d, nil
}

func (r *Registry) fetchInfo(ctx context.Context, d *Descriptor) error {
	resp, err := r.get(ctx, r.BaseURL+"/api/v2/channels/"+d.Slug, false)
	if err != nil {
		return &Error{Kind: KindBlocked, Channel: d.Name, err: err}
	}
	defer closeBody(resp)
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return &Error{Kind: KindBlocked, Channel: d.Name, Status: resp.StatusCode}
	case http.StatusNotFound:
		return &Error{Kind: KindNotFound, Channel: d.Name, Status: resp.StatusCode}
	}
	var info struct {
		ID       int `json:"id"`
		Chatroom struct {
			ID int `json:"id"`
		} `json:"chatroom"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return &Error{Kind: KindBadPayload, Channel: d.Name, err: err}
	}
	if info.Chatroom.ID == 0 {
		return &Error{Kind: KindBadPayload, Channel: d.Name, err: fmt.Errorf("no chatroom id in channel info")}
	}
	d.ChannelID = info.ID
	d.ChatroomID = info.Chatroom.ID
	return nil
}

func (r *Registry) fetchSettings(ctx context.Context, d *Descriptor) error {
	resp, err := r.get(ctx, r.BaseURL+"/api/internal/v1/channels/"+d.Slug+"/chatroom/settings", false)
	if err != nil {
		return &Error{Kind: KindSettingsFailure, Channel: d.Name, err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindSettingsFailure, Channel: d.Name, Status: resp.StatusCode}
	}
	var body struct {
		Data struct {
			Settings json.RawMessage `json:"settings"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &Error{Kind: KindSettingsFailure, Channel: d.Name, err: err}
	}
	d.Settings = body.Data.Settings
	return nil
}

// fetchMembership pulls the bot account's own membership record for the
// channel; this is where moderator and super-admin status come from.
func (r *Registry) fetchMembership(ctx context.Context, d *Descriptor) error {
	resp, err := r.get(ctx, r.BaseURL+"/api/v2/channels/"+d.Slug+"/me", true)
	if err != nil {
		return &Error{Kind: KindSettingsFailure, Channel: d.Name, err: err}
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindSettingsFailure, Channel: d.Name, Status: resp.StatusCode}
	}
	var body struct {
		IsModerator  bool `json:"is_moderator"`
		IsSuperAdmin bool `json:"is_super_admin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &Error{Kind: KindSettingsFailure, Channel: d.Name, err: err}
	}
	d.IsModerator = body.IsModerator
	d.IsSuperAdmin = body.IsSuperAdmin
	return nil
}

// ViewerCount returns the stream's current viewer count.
func (r *Registry) ViewerCount(ctx context.Context, d *Descriptor) (int, error) {
	url := fmt.Sprintf("%s/private/v0/channels/%d/viewer-count", r.apiBaseURL(), d.ChannelID)
	resp, err := r.get(ctx, url, false)
	if err != nil {
		return 0, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("viewer count status %s", resp.Status)
	}
	var body struct {
		Data struct {
			ViewerCount int `json:"viewer_count"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode viewer count: %w", err)
	}
	return body.Data.ViewerCount, nil
}

func (r *Registry) get(ctx context.Context, url string, authorized bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if authorized {
		r.Session.Authorize(req)
	}
	return r.Session.Do(req)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
