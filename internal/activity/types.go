// Package activity defines the conversational event exchanged with the bot
// messaging platform and the helpers that read, rewrite, and answer it.
package activity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedActivity is returned when a request body cannot be decoded into an Activity.
var ErrMalformedActivity = errors.New("malformed activity")

// Type identifies the kind of an activity (e.g., "message", "conversationUpdate").
type Type string

const (
	TypeMessage               Type = "message"
	TypeConversationUpdate    Type = "conversationUpdate"
	TypeContactRelationUpdate Type = "contactRelationUpdate"
	TypeTyping                Type = "typing"
	TypeDeleteUserData        Type = "deleteUserData"
	TypePing                  Type = "ping"
	TypeUnknown               Type = "unknown"
)

// String returns the activity type as a plain string.
func (t Type) String() string {
	return string(t)
}

var knownTypes = []Type{
	TypeMessage,
	TypeConversationUpdate,
	TypeContactRelationUpdate,
	TypeTyping,
	TypeDeleteUserData,
	TypePing,
}

// ChannelAccount identifies a participant (user or bot) on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Attachment is a media or card payload carried by an activity.
type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Activity is one inbound or outbound conversational event.
type Activity struct {
	Type           Type                `json:"type"`
	ID             string              `json:"id,omitempty"`
	Timestamp      time.Time           `json:"timestamp,omitzero"`
	ServiceURL     string              `json:"serviceUrl"`
	ChannelID      string              `json:"channelId,omitempty"`
	From           ChannelAccount      `json:"from"`
	Recipient      ChannelAccount      `json:"recipient"`
	Conversation   ConversationAccount `json:"conversation"`
	Text           string              `json:"text"`
	Locale         string              `json:"locale,omitempty"`
	Attachments    []Attachment        `json:"attachments,omitempty"`
	MembersAdded   []ChannelAccount    `json:"membersAdded,omitempty"`
	MembersRemoved []ChannelAccount    `json:"membersRemoved,omitempty"`
	ReplyToID      string              `json:"replyToId,omitempty"`
}

// Kind resolves the wire type into one of the known activity types.
// Unrecognized values resolve to TypeUnknown; the wire value is left untouched.
func (a *Activity) Kind() Type {
	if a == nil {
		return TypeUnknown
	}
	raw := strings.TrimSpace(string(a.Type))
	for _, t := range knownTypes {
		if strings.EqualFold(raw, string(t)) {
			return t
		}
	}
	return TypeUnknown
}

// Parse decodes a request body into an Activity.
// An empty or JSON null body yields a nil activity and no error.
func Parse(body []byte) (*Activity, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var a *Activity
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}
	return a, nil
}

// CreateReply builds a message activity addressed back to the conversation a came from.
func (a *Activity) CreateReply(text string) *Activity {
	return &Activity{
		Type:         TypeMessage,
		Timestamp:    time.Now().UTC(),
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		Text:         text,
		Locale:       a.Locale,
		ReplyToID:    a.ID,
	}
}
