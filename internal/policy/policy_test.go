package policy

import (
	"testing"
	"time"

	"github.com/example/companion-bot/internal/clock"
	"github.com/example/companion-bot/internal/model"
)

func testEngine(sim Similarity) *Engine {
	return NewEngine(Config{
		QuietHoursStart: 22,
		QuietHoursEnd:   8,
		MaxDaily:        3,
		Window:          10,
		DefaultTimezone: "UTC",
	}, clock.NewResolver(), sim)
}

func activeUser() *model.User {
	return &model.User{
		Platform:       "telegram",
		PlatformUserID: "1",
		State:          model.StateActive,
		Timezone:       "UTC",
	}
}

func TestEvaluateQuietHours(t *testing.T) {
	e := testEngine(nil)
	u := activeUser()

	// 23:30 local falls inside the wrapped 22→8 window
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	d := e.Evaluate(u, nil, "hi", now)
	if d.Allow || d.Reason != ReasonQuietHours {
		t.Fatalf("expected quiet_hours deny, got %+v", d)
	}

	// mid-day is fine
	noon := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if d := e.Evaluate(u, nil, "hi", noon); !d.Allow {
		t.Fatalf("expected allow at noon, got %+v", d)
	}
}

func TestInQuietHoursWrapAround(t *testing.T) {
	cases := []struct {
		h, start, end int
		want          bool
	}{
		{23, 22, 8, true},
		{22, 22, 8, true},
		{3, 22, 8, true},
		{7, 22, 8, true},
		{8, 22, 8, false},
		{12, 22, 8, false},
		{21, 22, 8, false},
		{9, 9, 20, true},
		{19, 9, 20, true},
		{20, 9, 20, false},
		{8, 9, 20, false},
		{5, 4, 4, true}, // degenerate config blocks everything
	}
	for _, c := range cases {
		if got := InQuietHours(c.h, c.start, c.end); got != c.want {
			t.Errorf("InQuietHours(%d, %d, %d) = %v, want %v", c.h, c.start, c.end, got, c.want)
		}
	}
}

func TestEvaluateRateLimit(t *testing.T) {
	e := testEngine(nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	u := activeUser()
	u.DailyMessageCount = 3
	u.CountWindowStart = "2024-03-01"
	d := e.Evaluate(u, nil, "hi", now)
	if d.Allow || d.Reason != ReasonRateLimited {
		t.Fatalf("expected rate_limited deny, got %+v", d)
	}

	// the window started yesterday, so the count is stale and resets
	u.CountWindowStart = "2024-02-29"
	if d := e.Evaluate(u, nil, "hi", now); !d.Allow {
		t.Fatalf("expected allow after local midnight, got %+v", d)
	}
}

func TestEvaluateConsentAndPaused(t *testing.T) {
	e := testEngine(nil)
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)

	u := activeUser()
	u.State = model.StateAwaitingConsent
	if d := e.Evaluate(u, nil, "hi", now); d.Allow || d.Reason != ReasonNoConsent {
		t.Fatalf("expected no_consent deny, got %+v", d)
	}

	// paused wins over quiet hours: checks run in fixed order
	u.State = model.StatePaused
	if d := e.Evaluate(u, nil, "hi", now); d.Allow || d.Reason != ReasonPaused {
		t.Fatalf("expected paused deny, got %+v", d)
	}
}

func TestEvaluateFailClosed(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	u := activeUser()
	u.Timezone = "Mars/Olympus"
	e := testEngine(nil)
	if d := e.Evaluate(u, nil, "hi", now); d.Allow || d.Reason != ReasonQuietHours {
		t.Fatalf("expected fail-closed deny on bad zone, got %+v", d)
	}

	// quiet_hours_start == quiet_hours_end means a 24h window: always deny
	e = NewEngine(Config{QuietHoursStart: 4, QuietHoursEnd: 4, MaxDaily: 3, Window: 10, DefaultTimezone: "UTC"}, clock.NewResolver(), nil)
	if d := e.Evaluate(activeUser(), nil, "hi", now); d.Allow || d.Reason != ReasonQuietHours {
		t.Fatalf("expected deny for degenerate quiet hours, got %+v", d)
	}
}

func TestEvaluateAntiRepetition(t *testing.T) {
	e := testEngine(nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	u := activeUser()

	recent := []*model.Message{
		{Sender: model.SenderUser, Text: "hello there"},
		{Sender: model.SenderAgent, Text: "Just a small ping. How is your day?"},
	}
	d := e.Evaluate(u, recent, "just a small ping.  how is your day?", now)
	if d.Allow || d.Reason != ReasonRepetitive {
		t.Fatalf("expected repetitive deny, got %+v", d)
	}
	if d := e.Evaluate(u, recent, "something fresh", now); !d.Allow {
		t.Fatalf("expected allow for fresh text, got %+v", d)
	}

	// a user message with the same text does not count
	recent = []*model.Message{{Sender: model.SenderUser, Text: "something fresh"}}
	if d := e.Evaluate(u, recent, "something fresh", now); !d.Allow {
		t.Fatalf("expected allow, user messages are not scanned, got %+v", d)
	}
}

func TestEvaluateRepetitionWindowBound(t *testing.T) {
	e := NewEngine(Config{
		QuietHoursStart: 22, QuietHoursEnd: 8, MaxDaily: 5, Window: 2, DefaultTimezone: "UTC",
	}, clock.NewResolver(), nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	u := activeUser()

	// the duplicate is the third-newest agent message, outside the window of 2
	recent := []*model.Message{
		{Sender: model.SenderAgent, Text: "dup"},
		{Sender: model.SenderAgent, Text: "one"},
		{Sender: model.SenderAgent, Text: "two"},
	}
	if d := e.Evaluate(u, recent, "dup", now); !d.Allow {
		t.Fatalf("expected allow, duplicate outside window, got %+v", d)
	}
}
