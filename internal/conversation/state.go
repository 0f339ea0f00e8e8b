// Package conversation holds the consent lifecycle state machine and the
// message engine (intro, consent prompt, replies, follow-ups).
package conversation

import (
	"strings"

	"github.com/example/companion-bot/internal/model"
)

// Command is an in-band command parsed from inbound text.
type Command int

const (
	CmdNone Command = iota
	CmdPause
	CmdResume
	CmdForget
)

// ParseCommand recognizes /pause, /resume and /forget, case-insensitively.
func ParseCommand(text string) Command {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/pause":
		return CmdPause
	case "/resume":
		return CmdResume
	case "/forget":
		return CmdForget
	}
	return CmdNone
}

// Effect tells the dispatch loop what to do after a transition.
type Effect int

const (
	// EffectNone: record the message, send nothing.
	EffectNone Effect = iota
	// EffectIntro: first contact; send intro + consent request as a direct reply.
	EffectIntro
	// EffectReply: generate and send a direct reply.
	EffectReply
	// EffectPaused: acknowledge the pause; pending scheduled contact is cancelled.
	EffectPaused
	// EffectResumed: acknowledge and compute a fresh cadence.
	EffectResumed
	// EffectForgotten: delete the conversation and all messages.
	EffectForgotten
)

// Advance applies one inbound message to the user's state in place and
// reports the resulting effect.
//
// Transitions: New → AwaitingConsent on first contact; AwaitingConsent →
// Active on any further engagement; /pause from any non-terminal state;
// /resume only from Paused (renewed explicit consent); /forget from any state.
// A paused user's plain messages are recorded but draw no reply.
func Advance(u *model.User, text string) Effect {
	switch ParseCommand(text) {
	case CmdPause:
		if u.State == model.StateForgotten {
			return EffectNone
		}
		u.State = model.StatePaused
		u.NextContactAt = nil
		return EffectPaused
	case CmdResume:
		if u.State != model.StatePaused {
			return EffectNone
		}
		u.State = model.StateActive
		return EffectResumed
	case CmdForget:
		u.State = model.StateForgotten
		u.NextContactAt = nil
		return EffectForgotten
	}

	switch u.State {
	case model.StateNew:
		u.State = model.StateAwaitingConsent
		return EffectIntro
	case model.StateAwaitingConsent:
		// continued engagement counts as consent
		u.State = model.StateActive
		return EffectReply
	case model.StateActive:
		return EffectReply
	}
	return EffectNone
}
