package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/companion-bot/internal/adapter"
	"github.com/example/companion-bot/internal/clock"
	"github.com/example/companion-bot/internal/conversation"
	"github.com/example/companion-bot/internal/model"
	"github.com/example/companion-bot/internal/policy"
	"github.com/example/companion-bot/internal/repository"
)

// handleInbound runs the state machine for one inbound message and sends the
// direct reply it calls for. Direct replies bypass the proactive-contact
// gate; only agent-initiated follow-ups go through the policy engine.
func (a *App) handleInbound(ctx context.Context, ad adapter.Adapter, in adapter.Message) {
	platform := ad.Platform()
	key := platform + ":" + in.PlatformUserID
	now := a.now()

	a.locks.Lock(key)
	u, err := a.getOrCreate(ctx, platform, in, now)
	if err != nil {
		a.locks.Unlock(key)
		log.Println("load user:", err)
		return
	}
	// a genuine inbound message re-establishes reachability
	u.Unreachable = false

	if err := a.retry(ctx, func() error {
		return a.store.AppendMessage(ctx, platform, in.PlatformUserID, model.NewMessage(model.SenderUser, in.Text, in.Timestamp))
	}); err != nil {
		log.Println("record inbound:", err)
	}

	switch conversation.Advance(u, in.Text) {
	case conversation.EffectIntro:
		a.saveUser(ctx, u)
		a.locks.Unlock(key)
		a.reply(ctx, ad, u, a.engine.IntroMessage(u.Username))
		a.reply(ctx, ad, u, a.engine.ConsentPrompt())

	case conversation.EffectPaused:
		a.saveUser(ctx, u)
		a.locks.Unlock(key)
		a.reply(ctx, ad, u, "Paused. Write /resume whenever you want to pick things back up.")

	case conversation.EffectResumed:
		// renewed explicit consent: compute a fresh cadence
		if next, err := a.sched.NextContact(u, now); err == nil {
			u.NextContactAt = &next
		} else {
			log.Println("cadence:", err)
		}
		a.saveUser(ctx, u)
		a.locks.Unlock(key)
		a.reply(ctx, ad, u, "Resumed. Glad to be back :)")

	case conversation.EffectForgotten:
		if err := a.retry(ctx, func() error {
			return a.store.Delete(ctx, platform, in.PlatformUserID)
		}); err != nil {
			log.Println("forget:", err)
		}
		a.locks.Unlock(key)
		if err := ad.Send(ctx, in.PlatformUserID, "Done. I've forgotten our history. We can start fresh anytime."); err != nil {
			log.Println("send:", err)
		}

	case conversation.EffectReply:
		a.saveUser(ctx, u)
		history, err := a.store.RecentMessages(ctx, platform, in.PlatformUserID, historyLimit)
		if err != nil {
			log.Println("history:", err)
		}
		a.locks.Unlock(key)

		// generation may be slow; it runs outside the lock so commands can
		// interleave, and the state is re-checked before committing
		text := a.engine.Reply(ctx, history, in.Text)

		a.locks.Lock(key)
		defer a.locks.Unlock(key)
		cur, err := a.store.Get(ctx, platform, in.PlatformUserID)
		if err != nil || cur.State != model.StateActive {
			// paused or forgotten while generating: drop the reply
			return
		}
		a.commitReply(ctx, ad, cur, text)

	default:
		a.saveUser(ctx, u)
		a.locks.Unlock(key)
	}
}

// commitReply sends a direct reply, records it and schedules the next
// proactive contact. The caller holds the user lock.
func (a *App) commitReply(ctx context.Context, ad adapter.Adapter, u *model.User, text string) {
	now := a.now()
	if err := ad.Send(ctx, u.PlatformUserID, text); err != nil {
		a.handleSendFailure(ctx, u, err)
		return
	}
	if err := a.retry(ctx, func() error {
		return a.store.AppendMessage(ctx, u.Platform, u.PlatformUserID, model.NewMessage(model.SenderAgent, text, now))
	}); err != nil {
		log.Println("record outbound:", err)
	}
	u.LastOutboundAt = now
	a.rescheduleLocked(ctx, u, now)
}

// runDueScan processes every user whose scheduled contact has come due. Only
// Active, reachable users are listed; a user already in flight from an
// overlapping tick is skipped rather than double-sent.
func (a *App) runDueScan(ctx context.Context, now time.Time) {
	var due []*model.User
	if err := a.retry(ctx, func() error {
		var err error
		due, err = a.store.ListDue(ctx, now)
		return err
	}); err != nil {
		log.Println("due scan:", err)
		return
	}
	for _, u := range due {
		ad, ok := a.adapters[u.Platform]
		if !ok {
			continue
		}
		if !a.locks.BeginScan(u.Key()) {
			continue
		}
		a.processDue(ctx, ad, u.Platform, u.PlatformUserID, now)
		a.locks.EndScan(u.Key())
	}
}

// processDue runs one proactive contact attempt: policy pre-check with a
// candidate text, generation outside the lock, then re-validation and an
// atomic quota consume before the send commits. Denials reschedule from the
// denial time; they are an expected outcome, not an error.
func (a *App) processDue(ctx context.Context, ad adapter.Adapter, platform, id string, now time.Time) {
	key := platform + ":" + id
	candidate := a.engine.FollowupCandidate()

	a.locks.Lock(key)
	u, err := a.store.Get(ctx, platform, id)
	if err != nil {
		a.locks.Unlock(key)
		if !errors.Is(err, repository.ErrNotFound) {
			log.Println("due user:", err)
		}
		return
	}
	if !a.eligible(u, now) {
		a.locks.Unlock(key)
		return
	}
	history, err := a.store.RecentMessages(ctx, platform, id, historyLimit)
	if err != nil {
		log.Println("history:", err)
	}
	if d := a.policy.Evaluate(u, history, candidate, now); !d.Allow {
		log.Printf("proactive contact denied for %s: %s", key, d.Reason)
		a.rescheduleLocked(ctx, u, now)
		a.locks.Unlock(key)
		return
	}
	a.locks.Unlock(key)

	text := a.engine.Proactive(ctx, history, candidate)
	now = a.now()

	a.locks.Lock(key)
	defer a.locks.Unlock(key)
	u, err = a.store.Get(ctx, platform, id)
	if err != nil || !a.eligible(u, now) {
		// a /pause or /forget landed while generating
		return
	}
	history, _ = a.store.RecentMessages(ctx, platform, id, historyLimit)
	if d := a.policy.Evaluate(u, history, text, now); !d.Allow {
		log.Printf("proactive contact denied for %s: %s", key, d.Reason)
		a.rescheduleLocked(ctx, u, now)
		return
	}

	loc, err := a.clock.Location(a.timezoneOf(u))
	if err != nil {
		log.Println("due user:", err)
		a.rescheduleLocked(ctx, u, now)
		return
	}
	ok, err := a.store.ConsumeQuota(ctx, platform, id, clock.LocalDate(now, loc), a.cfg.MaxDailyMessages)
	if err != nil {
		log.Println("consume quota:", err)
		a.rescheduleLocked(ctx, u, now)
		return
	}
	if !ok {
		log.Printf("proactive contact denied for %s: %s", key, policy.ReasonRateLimited)
		a.rescheduleLocked(ctx, u, now)
		return
	}
	// refresh: ConsumeQuota moved the counters under us
	u, err = a.store.Get(ctx, platform, id)
	if err != nil {
		log.Println("due user:", err)
		return
	}

	if err := ad.Send(ctx, id, text); err != nil {
		a.handleSendFailure(ctx, u, err)
		return
	}
	if err := a.retry(ctx, func() error {
		return a.store.AppendMessage(ctx, platform, id, model.NewMessage(model.SenderAgent, text, now))
	}); err != nil {
		log.Println("record outbound:", err)
	}
	u.LastOutboundAt = now
	a.rescheduleLocked(ctx, u, now)
}

func (a *App) eligible(u *model.User, now time.Time) bool {
	return u.State == model.StateActive && !u.Unreachable &&
		u.NextContactAt != nil && !u.NextContactAt.After(now)
}

// handleSendFailure distinguishes platform refusal from transient failure.
// The caller holds the user lock.
func (a *App) handleSendFailure(ctx context.Context, u *model.User, err error) {
	if errors.Is(err, adapter.ErrUnreachable) {
		log.Printf("send %s: recipient unreachable, suppressing proactive contact", u.Key())
		u.Unreachable = true
		u.NextContactAt = nil
		a.saveUser(ctx, u)
		return
	}
	log.Println("send:", err)
	// transient failure: requeue the contact rather than lose it
	a.rescheduleLocked(ctx, u, a.now())
}

// reply sends a direct reply outside the user lock and records it.
func (a *App) reply(ctx context.Context, ad adapter.Adapter, u *model.User, text string) {
	if err := ad.Send(ctx, u.PlatformUserID, text); err != nil {
		if errors.Is(err, adapter.ErrUnreachable) {
			a.markUnreachable(ctx, u.Platform, u.PlatformUserID)
		} else {
			log.Println("send:", err)
		}
		return
	}
	if err := a.retry(ctx, func() error {
		return a.store.AppendMessage(ctx, u.Platform, u.PlatformUserID, model.NewMessage(model.SenderAgent, text, a.now()))
	}); err != nil {
		log.Println("record outbound:", err)
	}
}

func (a *App) markUnreachable(ctx context.Context, platform, id string) {
	key := platform + ":" + id
	a.locks.Lock(key)
	defer a.locks.Unlock(key)
	u, err := a.store.Get(ctx, platform, id)
	if err != nil {
		return
	}
	u.Unreachable = true
	u.NextContactAt = nil
	a.saveUser(ctx, u)
}

// rescheduleLocked computes the next cadence starting from `from` and saves
// the user. The caller holds the user lock.
func (a *App) rescheduleLocked(ctx context.Context, u *model.User, from time.Time) {
	next, err := a.sched.NextContact(u, from)
	if err != nil {
		log.Println("cadence:", err)
		a.saveUser(ctx, u)
		return
	}
	u.NextContactAt = &next
	a.saveUser(ctx, u)
}

func (a *App) saveUser(ctx context.Context, u *model.User) {
	if err := a.retry(ctx, func() error { return a.store.Upsert(ctx, u) }); err != nil {
		log.Println("save user:", err)
	}
}

func (a *App) getOrCreate(ctx context.Context, platform string, in adapter.Message, now time.Time) (*model.User, error) {
	var u *model.User
	err := a.retry(ctx, func() error {
		var err error
		u, err = a.store.Get(ctx, platform, in.PlatformUserID)
		if errors.Is(err, repository.ErrNotFound) {
			// first contact, or the previous identity was forgotten: either
			// way this is a fresh user with no history
			u = &model.User{
				Platform:       platform,
				PlatformUserID: in.PlatformUserID,
				Username:       in.Username,
				State:          model.StateNew,
				Persona:        a.cfg.Persona,
				Timezone:       a.cfg.Timezone,
				CreatedAt:      now,
			}
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if in.Username != "" {
		u.Username = in.Username
	}
	return u, nil
}

func (a *App) timezoneOf(u *model.User) string {
	if u.Timezone != "" {
		return u.Timezone
	}
	return a.cfg.Timezone
}
