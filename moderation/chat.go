package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sub20hz/kickbot/socket"
)

// Chat sends messages and replies into one chatroom over the HTTP API.
// Outbound chat goes over HTTP, not the realtime socket; the socket is
// receive-only apart from protocol commands.
type Chat struct {
	Session    Session
	BaseURL    string
	ChatroomID int
}

// SendMessage posts a chat message. The v1 endpoint is used deliberately; the
// v2 one intermittently rejects bot sessions with stale-csrf responses.
func (c *Chat) SendMessage(ctx context.Context, message string) error {
	payload := map[string]any{
		"message":     message,
		"chatroom_id": c.ChatroomID,
	}
	return c.post(ctx, c.BaseURL+"/api/v1/chat-messages", payload)
}

// SendReply posts a threaded reply to an earlier chat message.
func (c *Chat) SendReply(ctx context.Context, original *socket.ChatMessage, reply string) error {
	payload := map[string]any{
		"content": reply,
		"type":    "reply",
		"metadata": map[string]any{
			"original_message": map[string]any{
				"id":      original.ID,
				"content": original.Content,
			},
			"original_sender": map[string]any{
				"id":       original.Sender.ID,
				"username": original.Sender.Username,
			},
		},
	}
	return c.post(ctx, fmt.Sprintf("%s/api/v2/messages/send/%d", c.BaseURL, c.ChatroomID), payload)
}

func (c *Chat) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.Session.Authorize(req)
	resp, err := c.Session.Do(req)
	if err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send chat message: status %s", resp.Status)
	}
	return nil
}
