package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"
)

// Console is a line-oriented adapter for local runs without platform tokens:
// stdin is the user, stdout is the agent.
type Console struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{scanner: bufio.NewScanner(in), out: out}
}

func (c *Console) Platform() string { return string(KindConsole) }

func (c *Console) Poll(ctx context.Context) ([]Message, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return []Message{{
		PlatformUserID: "local",
		Username:       "you",
		Text:           c.scanner.Text(),
		Timestamp:      time.Now(),
	}}, nil
}

func (c *Console) Send(ctx context.Context, platformUserID, text string) error {
	_, err := fmt.Fprintf(c.out, "agent> %s\n", text)
	return err
}
