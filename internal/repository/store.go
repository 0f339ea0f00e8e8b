// Package repository persists users and their conversation histories.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/companion-bot/internal/model"
)

// ErrNotFound is returned when no user exists for the given identity.
var ErrNotFound = errors.New("user not found")

// ConversationStore is the durable state consumed by the dispatch loop.
type ConversationStore interface {
	// Get fetches a user by identity or returns ErrNotFound.
	Get(ctx context.Context, platform, platformUserID string) (*model.User, error)

	// Upsert creates or replaces a user record.
	Upsert(ctx context.Context, u *model.User) error

	// Delete removes a user and all of its messages (the /forget path).
	Delete(ctx context.Context, platform, platformUserID string) error

	// AppendMessage appends one message to the user's history.
	AppendMessage(ctx context.Context, platform, platformUserID string, m *model.Message) error

	// RecentMessages returns up to limit most recent messages, oldest first.
	RecentMessages(ctx context.Context, platform, platformUserID string, limit int) ([]*model.Message, error)

	// ConsumeQuota atomically resets the daily counter if localDate advanced
	// past the stored window start, then increments it if it is below limit.
	// It reports whether a slot was consumed. No other write to the counter
	// may interleave with the check.
	ConsumeQuota(ctx context.Context, platform, platformUserID, localDate string, limit int) (bool, error)

	// ListDue returns users eligible for proactive contact: state active, not
	// unreachable, with a scheduled contact at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*model.User, error)

	Close() error
}
