// Package relay carries formatted messages from whatever context produced them
// (HTTP handler, bot conversation) onto the chat gateway's own loop. Producers
// never talk to the chat API directly: they enqueue a Post on the outbox and
// await its completion, and the gateway loop is the sole consumer. This keeps
// the cross-listener handoff explicit instead of sharing the API client across
// goroutines ad hoc.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/akimotok/clipcast/telemetry"
)

// ChannelError reports a destination channel that is missing or not postable.
// The attempted chat id is carried for operator diagnosis.
type ChannelError struct {
	ChatID int64
	Msg    string
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay to chat %d: %s: %v", e.ChatID, e.Msg, e.Err)
	}
	return fmt.Sprintf("relay to chat %d: %s", e.ChatID, e.Msg)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Format renders the relay message for a stored clip. Both author and title
// present yields "[author - title](url)"; absent segments are dropped, never
// rendered as empty brackets. Output is deterministic for a given input.
func Format(author, title, url string) string {
	switch {
	case author != "" && title != "":
		return fmt.Sprintf("[%s - %s](%s)", author, title, url)
	case title != "":
		return fmt.Sprintf("[%s](%s)", title, url)
	case author != "":
		return fmt.Sprintf("[%s](%s)", author, url)
	default:
		return url
	}
}

// Post is one pending delivery on the outbox.
type Post struct {
	ChatID int64
	Text   string
	done   chan error
}

// Finish reports the delivery outcome back to the producer. Must be called
// exactly once by the consumer.
func (p Post) Finish(err error) {
	p.done <- err
}

// Relay is the outbox between producers and the single gateway consumer.
type Relay struct {
	outbox  chan Post
	timeout time.Duration
}

// deliveryTimeout caps how long a producer waits on the gateway, independent
// of the caller's ctx. An HTTP request ctx carries no deadline, so without
// this cap a disabled gateway would strand POST /upload forever.
const deliveryTimeout = 30 * time.Second

// New creates a Relay with a small buffer; producers still block until the
// consumer finishes their post, up to the delivery timeout.
func New() *Relay {
	return NewWithTimeout(deliveryTimeout)
}

// NewWithTimeout creates a Relay whose producers give up after d.
func NewWithTimeout(d time.Duration) *Relay {
	return &Relay{outbox: make(chan Post, 16), timeout: d}
}

// Posts exposes the outbox to the gateway loop.
func (r *Relay) Posts() <-chan Post {
	return r.outbox
}

// Send enqueues a post and waits for the gateway loop to deliver it. The wait
// is bounded by whichever comes first, the ctx deadline or the relay's own
// delivery timeout, so a producer fails with a ChannelError rather than hang
// when nothing is consuming (bot disabled, process shutting down). A post left
// in the buffer after a timeout is harmless: Finish writes to a buffered
// channel nobody reads.
func (r *Relay) Send(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p := Post{ChatID: chatID, Text: text, done: make(chan error, 1)}

	select {
	case r.outbox <- p:
	case <-ctx.Done():
		telemetry.Inc(telemetry.RelaysFailed)
		return &ChannelError{ChatID: chatID, Msg: "chat gateway unavailable", Err: ctx.Err()}
	}

	select {
	case err := <-p.done:
		if err != nil {
			telemetry.Inc(telemetry.RelaysFailed)
			if _, ok := err.(*ChannelError); ok {
				return err
			}
			return &ChannelError{ChatID: chatID, Msg: "delivery failed", Err: err}
		}
		telemetry.Inc(telemetry.RelaysSent)
		return nil
	case <-ctx.Done():
		telemetry.Inc(telemetry.RelaysFailed)
		return &ChannelError{ChatID: chatID, Msg: "delivery timed out", Err: ctx.Err()}
	}
}
