package conversation

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/example/companion-bot/internal/model"
)

// Generator produces reply text from a persona and conversation history. The
// external LLM collaborator implements it; the engine falls back to the
// offline responder when it is absent or fails.
type Generator interface {
	Reply(ctx context.Context, persona string, history []*model.Message, latest string) (string, error)
}

// followupInstruction steers the generator when the contact is proactive
// rather than a direct reply.
const followupInstruction = "It has been a while since the last exchange. Write one short, warm check-in message. Do not apologize, do not pressure for an answer."

var followupTexts = []string{
	"Just a small ping. How is your day going?",
	"Hi! Hope everything is well on your end. Happy to pick the conversation back up whenever.",
	"Hey, was just wondering how you have been. What have you been up to lately?",
}

// Engine produces all outbound text for a conversation.
type Engine struct {
	persona string
	gen     Generator // nil means offline mode

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewEngine(persona string, gen Generator, rnd *rand.Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{persona: persona, gen: gen, rnd: rnd}
}

// IntroMessage greets a first-time user.
func (e *Engine) IntroMessage(username string) string {
	name := ""
	if username != "" {
		name = ", " + username
	}
	return "Hi" + name + "! I'm a small AI companion for casual conversation. Want to chat? If so, just write something. Commands: /pause, /resume, /forget"
}

// ConsentPrompt asks for explicit permission for proactive follow-ups.
func (e *Engine) ConsentPrompt() string {
	return "Quick check that you're comfortable: I'm an AI and may occasionally write first to keep in touch. If that's fine, just keep chatting. If not, /pause works anytime."
}

// FollowupCandidate picks a gentle check-in text. It is used as the policy
// pre-check candidate and as the offline fallback for proactive contact.
func (e *Engine) FollowupCandidate() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return followupTexts[e.rnd.Intn(len(followupTexts))]
}

// Reply generates a direct reply to the latest inbound message.
func (e *Engine) Reply(ctx context.Context, history []*model.Message, latest string) string {
	if e.gen != nil {
		text, err := e.gen.Reply(ctx, e.persona, history, latest)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		if err != nil {
			log.Println("generate: degraded mode, using offline fallback:", err)
		}
	}
	return FallbackReply(latest)
}

// Proactive generates an agent-initiated check-in. candidate is the
// pre-checked fallback text, returned verbatim when no generator is live.
func (e *Engine) Proactive(ctx context.Context, history []*model.Message, candidate string) string {
	if e.gen != nil {
		text, err := e.gen.Reply(ctx, e.persona, history, followupInstruction)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		if err != nil {
			log.Println("generate: degraded mode, using offline fallback:", err)
		}
	}
	return candidate
}

// FallbackReply is the deterministic offline responder: a pure function of
// the latest inbound text. It never fails.
func FallbackReply(latest string) string {
	text := strings.TrimSpace(latest)
	if text == "" {
		return "A small ping :) How are things?"
	}
	if r := []rune(text); len(r) > 300 {
		text = string(r[:300]) + "..."
	}
	return "I hear you. " + text
}
