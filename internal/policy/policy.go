// Package policy decides whether a candidate outbound message to a user is
// currently permitted.
package policy

import (
	"time"

	"github.com/example/companion-bot/internal/clock"
	"github.com/example/companion-bot/internal/model"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNoConsent   Reason = "no_consent"
	ReasonQuietHours  Reason = "quiet_hours"
	ReasonRateLimited Reason = "rate_limited"
	ReasonRepetitive  Reason = "repetitive"
	ReasonPaused      Reason = "paused"
)

// Decision is the transient outcome of one evaluation. It is never persisted.
type Decision struct {
	Allow  bool
	Reason Reason
}

func deny(r Reason) Decision { return Decision{Reason: r} }

// Config holds the evaluation parameters.
type Config struct {
	QuietHoursStart int // local hour 0-23, blocked interval start (inclusive)
	QuietHoursEnd   int // local hour 0-23, blocked interval end (exclusive)
	MaxDaily        int // proactive sends allowed per local day
	Window          int // how many recent agent messages the repetition check scans
	DefaultTimezone string
}

// Engine evaluates the policy gate for proactive (agent-initiated) contact.
type Engine struct {
	cfg   Config
	clock *clock.Resolver
	sim   Similarity
}

func NewEngine(cfg Config, resolver *clock.Resolver, sim Similarity) *Engine {
	if sim == nil {
		sim = Exact{}
	}
	return &Engine{cfg: cfg, clock: resolver, sim: sim}
}

// Evaluate runs the checks in fixed order: consent, quiet hours, rate limit,
// anti-repetition. The first failing check sets the reported reason. Any
// internal error denies; the gate never defaults to allow.
//
// The rate check is read-only; the count is mutated only when a send commits,
// through the store's atomic ConsumeQuota.
func (e *Engine) Evaluate(u *model.User, recent []*model.Message, candidate string, now time.Time) Decision {
	switch u.State {
	case model.StateActive:
	case model.StatePaused:
		return deny(ReasonPaused)
	default:
		return deny(ReasonNoConsent)
	}

	loc, err := e.clock.Location(e.timezoneFor(u))
	if err != nil {
		// unresolvable time zone: fail closed
		return deny(ReasonQuietHours)
	}
	if InQuietHours(now.In(loc).Hour(), e.cfg.QuietHoursStart, e.cfg.QuietHoursEnd) {
		return deny(ReasonQuietHours)
	}

	count := u.DailyMessageCount
	if u.CountWindowStart != clock.LocalDate(now, loc) {
		count = 0
	}
	if count >= e.cfg.MaxDaily {
		return deny(ReasonRateLimited)
	}

	seen := 0
	for i := len(recent) - 1; i >= 0 && seen < e.cfg.Window; i-- {
		m := recent[i]
		if m.Sender != model.SenderAgent {
			continue
		}
		seen++
		if e.sim.Similar(m.Text, candidate) {
			return deny(ReasonRepetitive)
		}
	}
	return Decision{Allow: true}
}

func (e *Engine) timezoneFor(u *model.User) string {
	if u.Timezone != "" {
		return u.Timezone
	}
	return e.cfg.DefaultTimezone
}

// InQuietHours reports whether local hour h falls inside the blocked [start,
// end) interval. An interval with start > end wraps across midnight (22→8
// blocks 22,23,0..7). start == end is a degenerate configuration and blocks
// the whole day.
func InQuietHours(h, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}
