package socket

import (
	"encoding/json"
	"strings"
)

// ChatMessage is one chat line received in a chatroom. Args holds the
// whitespace tokens of Content; the first token, case-folded, is the command
// key used by prefix dispatch.
type ChatMessage struct {
	ID         string
	ChatroomID int
	Content    string
	Args       []string
	Type       string
	CreatedAt  string
	Sender     Sender
}

// Sender identifies the account that sent a chat message.
type Sender struct {
	ID       int
	Username string
	Slug     string
	Badges   []Badge
}

// Badge is one identity badge attached to a sender (moderator, subscriber, ...).
type Badge struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (m *ChatMessage) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID         string `json:"id"`
		ChatroomID int    `json:"chatroom_id"`
		Content    string `json:"content"`
		Type       string `json:"type"`
		CreatedAt  string `json:"created_at"`
		Sender     Sender `json:"sender"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.ID = raw.ID
	m.ChatroomID = raw.ChatroomID
	m.Content = raw.Content
	m.Args = strings.Fields(raw.Content)
	m.Type = raw.Type
	m.CreatedAt = raw.CreatedAt
	m.Sender = raw.Sender
	return nil
}

func (s *Sender) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Slug     string `json:"slug"`
		Identity struct {
			Badges []Badge `json:"badges"`
		} `json:"identity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Username = raw.Username
	s.Slug = raw.Slug
	// Upstream omits the badge list for some senders; treat missing as empty.
	s.Badges = raw.Identity.Badges
	if s.Badges == nil {
		s.Badges = []Badge{}
	}
	return nil
}

// Command returns the case-folded first token of the message, or the empty
// string for a blank message.
func (m *ChatMessage) Command() string {
	if len(m.Args) == 0 {
		return ""
	}
	return strings.ToLower(m.Args[0])
}
