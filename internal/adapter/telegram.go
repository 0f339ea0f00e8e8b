package adapter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/example/companion-bot/pkg/telegram"
)

// Telegram adapts the Bot API client to the Adapter interface. A single
// goroutine owns Poll; the update offset is not synchronized.
type Telegram struct {
	client *telegram.Client
	offset int
}

func NewTelegram(client *telegram.Client) *Telegram {
	return &Telegram{client: client}
}

func (t *Telegram) Platform() string { return string(KindTelegram) }

func (t *Telegram) Poll(ctx context.Context) ([]Message, error) {
	updates, err := t.client.GetUpdates(ctx, t.offset)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, u := range updates {
		t.offset = u.UpdateID + 1
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		m := Message{
			PlatformUserID: strconv.FormatInt(u.Message.Chat.ID, 10),
			Text:           u.Message.Text,
			Timestamp:      time.Unix(u.Message.Date, 0),
		}
		if u.Message.From != nil {
			m.Username = u.Message.From.Username
			if m.Username == "" {
				m.Username = u.Message.From.FirstName
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (t *Telegram) Send(ctx context.Context, platformUserID, text string) error {
	chatID, err := strconv.ParseInt(platformUserID, 10, 64)
	if err != nil {
		return err
	}
	err = t.client.SendMessage(ctx, chatID, text)
	if errors.Is(err, telegram.ErrForbidden) {
		return ErrUnreachable
	}
	return err
}
