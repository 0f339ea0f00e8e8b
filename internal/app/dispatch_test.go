package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/companion-bot/internal/adapter"
	"github.com/example/companion-bot/internal/config"
	"github.com/example/companion-bot/internal/conversation"
	"github.com/example/companion-bot/internal/model"
	"github.com/example/companion-bot/internal/repository"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (f *fakeAdapter) Platform() string { return "test" }

func (f *fakeAdapter) Poll(ctx context.Context) ([]adapter.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeAdapter) Send(ctx context.Context, platformUserID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeAdapter) sentCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestApp(t *testing.T, gen conversation.Generator) (*App, *fakeAdapter, *repository.MemoryStore) {
	t.Helper()
	cfg := &config.Config{
		Timezone:         "UTC",
		QuietHoursStart:  22,
		QuietHoursEnd:    8,
		MaxDailyMessages: 3,
		CadenceMinDays:   1,
		CadenceMaxDays:   3,
		RepetitionWindow: 10,
		Similarity:       "exact",
		DueScanInterval:  time.Minute,
		Persona:          "test persona",
	}
	store := repository.NewMemory()
	ad := &fakeAdapter{}
	a := New(cfg, store, []adapter.Adapter{ad}, gen)
	a.now = func() time.Time { return testNow }
	return a, ad, store
}

func inbound(text string) adapter.Message {
	return adapter.Message{PlatformUserID: "7", Username: "sam", Text: text, Timestamp: testNow}
}

func TestInboundFirstContactSendsIntroAndConsent(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()

	a.handleInbound(ctx, ad, inbound("hello"))

	u, err := store.Get(ctx, "test", "7")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.State != model.StateAwaitingConsent {
		t.Fatalf("expected awaiting_consent, got %v", u.State)
	}
	sent := ad.sentCopy()
	if len(sent) != 2 {
		t.Fatalf("expected intro + consent prompt, got %v", sent)
	}
	if !strings.Contains(sent[0], "sam") {
		t.Fatalf("intro should greet by name: %q", sent[0])
	}
	msgs, _ := store.RecentMessages(ctx, "test", "7", 10)
	if len(msgs) != 3 { // inbound + intro + consent
		t.Fatalf("expected 3 recorded messages, got %d", len(msgs))
	}
}

func TestInboundEngagementActivatesAndSchedules(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()

	a.handleInbound(ctx, ad, inbound("hello"))
	a.handleInbound(ctx, ad, inbound("sure, let's chat"))

	u, _ := store.Get(ctx, "test", "7")
	if u.State != model.StateActive {
		t.Fatalf("expected active, got %v", u.State)
	}
	if u.NextContactAt == nil || !u.NextContactAt.After(testNow) {
		t.Fatalf("expected a future scheduled contact, got %v", u.NextContactAt)
	}
	sent := ad.sentCopy()
	if len(sent) != 3 {
		t.Fatalf("expected a direct reply after intro+consent, got %v", sent)
	}
	if sent[2] != conversation.FallbackReply("sure, let's chat") {
		t.Fatalf("unexpected reply: %q", sent[2])
	}
	if u.DailyMessageCount != 0 {
		t.Fatalf("direct replies must not consume the proactive quota, got %d", u.DailyMessageCount)
	}
}

func TestPauseCancelsScheduleAndDueScanSkips(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()

	a.handleInbound(ctx, ad, inbound("hello"))
	a.handleInbound(ctx, ad, inbound("ok"))
	a.handleInbound(ctx, ad, inbound("/pause"))

	u, _ := store.Get(ctx, "test", "7")
	if u.State != model.StatePaused || u.NextContactAt != nil {
		t.Fatalf("pause must cancel the pending contact: %+v", u)
	}

	// even with a stale due timestamp the scan must never pick a paused user
	past := testNow.Add(-time.Hour)
	u.NextContactAt = &past
	store.Upsert(ctx, u)
	before := len(ad.sentCopy())
	a.runDueScan(ctx, testNow)
	if got := len(ad.sentCopy()); got != before {
		t.Fatalf("due scan contacted a paused user: %v", ad.sentCopy()[before:])
	}
}

func TestResumeRestoresCadence(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()

	a.handleInbound(ctx, ad, inbound("hello"))
	a.handleInbound(ctx, ad, inbound("ok"))
	a.handleInbound(ctx, ad, inbound("/pause"))
	a.handleInbound(ctx, ad, inbound("/resume"))

	u, _ := store.Get(ctx, "test", "7")
	if u.State != model.StateActive {
		t.Fatalf("expected active after resume, got %v", u.State)
	}
	if u.NextContactAt == nil || !u.NextContactAt.After(testNow) {
		t.Fatalf("resume must compute a fresh cadence, got %v", u.NextContactAt)
	}
}

func TestForgetErasesHistoryAndRestartsFresh(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()

	a.handleInbound(ctx, ad, inbound("hello"))
	a.handleInbound(ctx, ad, inbound("ok"))
	a.handleInbound(ctx, ad, inbound("/forget"))

	if _, err := store.Get(ctx, "test", "7"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("user must be deleted on forget, got %v", err)
	}

	// the next inbound starts a brand new consent cycle with no residue
	a.handleInbound(ctx, ad, inbound("hi again"))
	u, err := store.Get(ctx, "test", "7")
	if err != nil {
		t.Fatalf("user not recreated: %v", err)
	}
	if u.State != model.StateAwaitingConsent {
		t.Fatalf("expected awaiting_consent after recreation, got %v", u.State)
	}
	msgs, _ := store.RecentMessages(ctx, "test", "7", 50)
	if len(msgs) != 3 { // "hi again" + intro + consent, nothing older
		t.Fatalf("old history leaked through forget: %d messages", len(msgs))
	}
	for _, m := range msgs {
		if m.Text == "hello" || m.Text == "ok" {
			t.Fatalf("forgotten message resurfaced: %q", m.Text)
		}
	}
}

func activeDueUser(ctx context.Context, t *testing.T, store *repository.MemoryStore) *model.User {
	t.Helper()
	past := testNow.Add(-time.Hour)
	u := &model.User{
		Platform:       "test",
		PlatformUserID: "7",
		State:          model.StateActive,
		Timezone:       "UTC",
		NextContactAt:  &past,
		CreatedAt:      testNow.Add(-48 * time.Hour),
	}
	if err := store.Upsert(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestDueScanSendsFollowup(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()
	activeDueUser(ctx, t, store)

	a.runDueScan(ctx, testNow)

	sent := ad.sentCopy()
	if len(sent) != 1 {
		t.Fatalf("expected one proactive send, got %v", sent)
	}
	u, _ := store.Get(ctx, "test", "7")
	if u.DailyMessageCount != 1 || u.CountWindowStart != "2024-03-01" {
		t.Fatalf("proactive send must consume quota: %+v", u)
	}
	if u.NextContactAt == nil || !u.NextContactAt.After(testNow) {
		t.Fatalf("next cadence not scheduled: %v", u.NextContactAt)
	}
	msgs, _ := store.RecentMessages(ctx, "test", "7", 10)
	if len(msgs) != 1 || msgs[0].Sender != model.SenderAgent || msgs[0].Text != sent[0] {
		t.Fatalf("outbound not recorded: %+v", msgs)
	}
}

func TestDueScanDeniedInQuietHoursReschedules(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	lateNight := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	a.now = func() time.Time { return lateNight }
	ctx := context.Background()
	activeDueUser(ctx, t, store)

	a.runDueScan(ctx, lateNight)

	if sent := ad.sentCopy(); len(sent) != 0 {
		t.Fatalf("quiet hours violated: %v", sent)
	}
	u, _ := store.Get(ctx, "test", "7")
	if u.NextContactAt == nil || !u.NextContactAt.After(lateNight) {
		t.Fatalf("denied contact must be rescheduled from the denial time: %v", u.NextContactAt)
	}
	if u.DailyMessageCount != 0 {
		t.Fatalf("denied attempt must not consume quota: %+v", u)
	}
}

func TestDueScanRateLimitedReschedules(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()
	u := activeDueUser(ctx, t, store)
	u.DailyMessageCount = 3
	u.CountWindowStart = "2024-03-01"
	store.Upsert(ctx, u)

	a.runDueScan(ctx, testNow)

	if sent := ad.sentCopy(); len(sent) != 0 {
		t.Fatalf("daily cap exceeded: %v", sent)
	}
	got, _ := store.Get(ctx, "test", "7")
	if got.DailyMessageCount != 3 {
		t.Fatalf("count must not move on a denied attempt: %+v", got)
	}
	if got.NextContactAt == nil || !got.NextContactAt.After(testNow) {
		t.Fatalf("denied contact must be rescheduled: %v", got.NextContactAt)
	}
}

// pausingGenerator simulates a /pause arriving while generation is in flight.
type pausingGenerator struct {
	store *repository.MemoryStore
}

func (g pausingGenerator) Reply(ctx context.Context, persona string, history []*model.Message, latest string) (string, error) {
	u, err := g.store.Get(ctx, "test", "7")
	if err != nil {
		return "", err
	}
	u.State = model.StatePaused
	u.NextContactAt = nil
	if err := g.store.Upsert(ctx, u); err != nil {
		return "", err
	}
	return "generated while pausing", nil
}

func TestPauseDuringGenerationDropsReply(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()
	a.handleInbound(ctx, ad, inbound("hello"))
	a.handleInbound(ctx, ad, inbound("ok"))

	// swap in a generator that flips the user to paused mid-generation
	a.engine = conversation.NewEngine("p", pausingGenerator{store: store}, nil)
	before := len(ad.sentCopy())
	a.handleInbound(ctx, ad, inbound("how are you?"))

	for _, text := range ad.sentCopy()[before:] {
		if text == "generated while pausing" {
			t.Fatal("reply committed despite pause during generation")
		}
	}
	u, _ := store.Get(ctx, "test", "7")
	if u.State != model.StatePaused {
		t.Fatalf("expected paused, got %v", u.State)
	}
}

func TestUnreachableSuppressesProactiveContact(t *testing.T) {
	a, ad, store := newTestApp(t, nil)
	ctx := context.Background()
	activeDueUser(ctx, t, store)

	ad.fail = adapter.ErrUnreachable
	a.runDueScan(ctx, testNow)

	u, _ := store.Get(ctx, "test", "7")
	if !u.Unreachable || u.NextContactAt != nil {
		t.Fatalf("failed send must suppress scheduling: %+v", u)
	}

	// an overlapping scan finds nothing due anymore
	a.runDueScan(ctx, testNow)
	if sent := ad.sentCopy(); len(sent) != 0 {
		t.Fatalf("unreachable user contacted: %v", sent)
	}

	// a genuine inbound message re-establishes reachability
	ad.fail = nil
	a.handleInbound(ctx, ad, inbound("I'm back"))
	u, _ = store.Get(ctx, "test", "7")
	if u.Unreachable {
		t.Fatalf("inbound message must clear the unreachable flag: %+v", u)
	}
}
