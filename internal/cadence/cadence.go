// Package cadence computes randomized next-contact times for opted-in users.
package cadence

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/example/companion-bot/internal/clock"
	"github.com/example/companion-bot/internal/model"
	"github.com/example/companion-bot/internal/policy"
)

// Config bounds the follow-up cadence.
type Config struct {
	MinDays         int // inclusive, >= 1
	MaxDays         int // inclusive, >= MinDays
	QuietHoursStart int
	QuietHoursEnd   int
	DefaultTimezone string
}

// Scheduler draws the next proactive-contact timestamp. Callers must only
// schedule for Active users; the scheduler does not check conversation state.
type Scheduler struct {
	cfg   Config
	clock *clock.Resolver

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rnd *rand.Rand
}

// New creates a scheduler. rnd may be nil, in which case a time-seeded source
// is used; tests pass a fixed seed.
func New(cfg Config, resolver *clock.Resolver, rnd *rand.Rand) *Scheduler {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{cfg: cfg, clock: resolver, rnd: rnd}
}

// NextContact returns the next allowed proactive-contact time for the user,
// strictly after now. The candidate lands 1-3 days ahead (per config) at a
// random daytime hour, then shifts forward past the quiet-hours window if it
// landed inside one. Rescheduling after a denial starts from the denial time.
func (s *Scheduler) NextContact(u *model.User, now time.Time) (time.Time, error) {
	tz := u.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	loc, err := s.clock.Location(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("cadence: %w", err)
	}

	s.mu.Lock()
	days := s.cfg.MinDays + s.rnd.Intn(s.cfg.MaxDays-s.cfg.MinDays+1)
	hour := 9 + s.rnd.Intn(12)   // 9..20
	minute := 5 + s.rnd.Intn(46) // 5..50
	s.mu.Unlock()

	local := now.In(loc).AddDate(0, 0, days)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	return s.nextAllowed(candidate, loc), nil
}

// nextAllowed shifts a timestamp forward to the first instant at or after the
// quiet-hours end boundary. It never moves a timestamp backward.
func (s *Scheduler) nextAllowed(t time.Time, loc *time.Location) time.Time {
	start, end := s.cfg.QuietHoursStart, s.cfg.QuietHoursEnd
	if start == end {
		// the window spans the whole day; no instant escapes it and the
		// policy gate denies regardless, so leave the candidate alone
		return t
	}
	lt := t.In(loc)
	if !policy.InQuietHours(lt.Hour(), start, end) {
		return t
	}
	if start < end || lt.Hour() < end {
		return time.Date(lt.Year(), lt.Month(), lt.Day(), end, 0, 0, 0, loc)
	}
	// wrapped window, evening side: the boundary is tomorrow morning
	next := lt.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), end, 0, 0, 0, loc)
}
