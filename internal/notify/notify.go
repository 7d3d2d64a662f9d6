// Package notify delivers messages to chat users and checks channel membership.
package notify

import (
	"context"
)

// Button is an inline action attached to a message.
type Button struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Attachment is an in-memory file sent as a photo or document.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// Notifier sends fire-and-forget messages to a user.
type Notifier interface {
	SendText(ctx context.Context, to int64, text string, buttons ...[]Button) error
	SendPhoto(ctx context.Context, to int64, photo Attachment, caption string, buttons ...[]Button) error
	SendDocument(ctx context.Context, to int64, doc Attachment, caption string) error
}

// MembershipGate reports whether a user belongs to the required channel.
type MembershipGate interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}
