package conversation

import (
	"testing"
	"time"

	"github.com/example/companion-bot/internal/model"
)

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		"/pause":    CmdPause,
		"/PAUSE":    CmdPause,
		" /Resume ": CmdResume,
		"/forget":   CmdForget,
		"/FORGET":   CmdForget,
		"hello":     CmdNone,
		"/pauses":   CmdNone,
		"":          CmdNone,
	}
	for text, want := range cases {
		if got := ParseCommand(text); got != want {
			t.Errorf("ParseCommand(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestAdvanceConsentLifecycle(t *testing.T) {
	u := &model.User{State: model.StateNew}

	if eff := Advance(u, "hi there"); eff != EffectIntro {
		t.Fatalf("expected intro effect, got %v", eff)
	}
	if u.State != model.StateAwaitingConsent {
		t.Fatalf("expected awaiting_consent, got %v", u.State)
	}

	// continued engagement promotes to active
	if eff := Advance(u, "sure, let's talk"); eff != EffectReply {
		t.Fatalf("expected reply effect, got %v", eff)
	}
	if u.State != model.StateActive {
		t.Fatalf("expected active, got %v", u.State)
	}
}

func TestAdvancePauseResume(t *testing.T) {
	next := time.Now().Add(24 * time.Hour)
	u := &model.User{State: model.StateActive, NextContactAt: &next}

	if eff := Advance(u, "/pause"); eff != EffectPaused {
		t.Fatalf("expected paused effect, got %v", eff)
	}
	if u.State != model.StatePaused || u.NextContactAt != nil {
		t.Fatalf("pause must cancel the pending contact: %+v", u)
	}

	// plain messages while paused are recorded but draw no reply
	if eff := Advance(u, "still there?"); eff != EffectNone {
		t.Fatalf("expected no effect while paused, got %v", eff)
	}
	if u.State != model.StatePaused {
		t.Fatalf("paused state must not change on plain text, got %v", u.State)
	}

	if eff := Advance(u, "/resume"); eff != EffectResumed {
		t.Fatalf("expected resumed effect, got %v", eff)
	}
	if u.State != model.StateActive {
		t.Fatalf("expected active after resume, got %v", u.State)
	}

	// /resume outside of paused is a no-op
	if eff := Advance(u, "/resume"); eff != EffectNone {
		t.Fatalf("expected no effect for resume while active, got %v", eff)
	}
}

func TestAdvanceForget(t *testing.T) {
	for _, start := range []model.State{model.StateNew, model.StateAwaitingConsent, model.StateActive, model.StatePaused} {
		u := &model.User{State: start}
		if eff := Advance(u, "/forget"); eff != EffectForgotten {
			t.Fatalf("expected forgotten effect from %v, got %v", start, eff)
		}
		if u.State != model.StateForgotten || u.NextContactAt != nil {
			t.Fatalf("unexpected user after forget: %+v", u)
		}
	}
}

func TestAdvancePauseFromAnyNonTerminal(t *testing.T) {
	for _, start := range []model.State{model.StateNew, model.StateAwaitingConsent, model.StateActive, model.StatePaused} {
		u := &model.User{State: start}
		if eff := Advance(u, "/PAUSE"); eff != EffectPaused {
			t.Fatalf("expected paused effect from %v, got %v", start, eff)
		}
	}
}
