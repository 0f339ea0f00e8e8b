// Package adapter normalizes platform transports behind one interface.
package adapter

import (
	"context"
	"errors"
	"time"
)

// Kind tags the concrete platform behind an adapter.
type Kind string

const (
	KindTelegram Kind = "telegram"
	KindDiscord  Kind = "discord"
	KindReddit   Kind = "reddit"
	KindConsole  Kind = "console"
)

// ErrUnreachable reports that the platform refused delivery, e.g. the
// recipient never initiated contact. It is a result, not a crash: the caller
// suppresses further proactive contact until the user writes again.
var ErrUnreachable = errors.New("adapter: recipient unreachable")

// Message is a platform-normalized inbound message.
type Message struct {
	PlatformUserID string
	Username       string
	Text           string
	Timestamp      time.Time
}

// Adapter is the capability set the dispatch loop depends on.
type Adapter interface {
	Platform() string

	// Poll blocks until at least one inbound message is available (or the
	// transport's poll cycle elapses) and returns the batch.
	Poll(ctx context.Context) ([]Message, error)

	// Send delivers text to the user. ErrUnreachable signals refusal by the
	// platform rather than a transient failure.
	Send(ctx context.Context, platformUserID, text string) error
}
