// Package session tracks each user's position in a multi-step chat flow.
package session

import (
	"context"
	"time"
)

// State names the input a user's next message is expected to carry.
type State string

const (
	Idle                 State = "idle"
	AwaitingPayment      State = "awaiting_payment"
	AwaitingUpload       State = "awaiting_upload"
	AwaitingBroadcast    State = "awaiting_broadcast"
	AwaitingExpireTarget State = "awaiting_expire_target"
)

// Session is one user's flow state. Category is set only for AwaitingUpload.
type Session struct {
	State     State     `json:"state"`
	Category  string    `json:"category,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsIdle reports whether no flow is in progress.
func (s Session) IsIdle() bool { return s.State == "" || s.State == Idle }

// Store persists sessions keyed by user identity.
type Store interface {
	Get(ctx context.Context, userID int64, now time.Time) (Session, bool, error)
	Put(ctx context.Context, userID int64, s Session, ttl time.Duration) error
	Delete(ctx context.Context, userID int64) error
}
