package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name                string
		author, title, url1 string
		want                string
	}{
		{"both", "RequesterName", "Great play", "X", "[RequesterName - Great play](X)"},
		{"title only", "", "Great play", "X", "[Great play](X)"},
		{"author only", "RequesterName", "", "X", "[RequesterName](X)"},
		{"neither", "", "", "X", "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.author, tt.title, tt.url1)
			if got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
			// deterministic: repeated calls are byte-identical
			if again := Format(tt.author, tt.title, tt.url1); again != got {
				t.Errorf("Format() not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestSendDelivered(t *testing.T) {
	r := New()

	go func() {
		p := <-r.Posts()
		if p.ChatID != -100123 {
			t.Errorf("post chat id = %d", p.ChatID)
		}
		if p.Text != "[t](u)" {
			t.Errorf("post text = %q", p.Text)
		}
		p.Finish(nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Send(ctx, -100123, "[t](u)"); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSendDeliveryFailure(t *testing.T) {
	r := New()

	go func() {
		p := <-r.Posts()
		p.Finish(errors.New("chat not found"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := r.Send(ctx, -100123, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChannelError, got %T", err)
	}
	if ce.ChatID != -100123 {
		t.Errorf("ChannelError chat id = %d", ce.ChatID)
	}
}

func TestSendNoConsumer(t *testing.T) {
	r := New()
	// Fill the buffer so enqueue itself blocks.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 20; i++ {
		err := r.Send(ctx, 1, "x")
		if err == nil {
			t.Fatal("expected error with no consumer")
		}
		var ce *ChannelError
		if !errors.As(err, &ce) {
			t.Fatalf("expected *ChannelError, got %T", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
}

func TestSendBoundedWithoutDeadline(t *testing.T) {
	r := NewWithTimeout(20 * time.Millisecond)

	// The buffer has room, so the post enqueues; with nobody consuming, only
	// the relay's own timeout can end the wait. The caller's ctx carries no
	// deadline, as with a live HTTP request.
	start := time.Now()
	err := r.Send(context.Background(), -100111, "x")
	if err == nil {
		t.Fatal("expected error with no consumer")
	}
	var ce *ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChannelError, got %T", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("send took %v, want prompt failure", elapsed)
	}
}

func TestChannelErrorMessage(t *testing.T) {
	e := &ChannelError{ChatID: -5, Msg: "chat not text-capable"}
	if got := e.Error(); got != "relay to chat -5: chat not text-capable" {
		t.Errorf("Error() = %q", got)
	}
	inner := errors.New("forbidden")
	e = &ChannelError{ChatID: -5, Msg: "delivery failed", Err: inner}
	if !errors.Is(e, inner) {
		t.Error("Unwrap lost inner error")
	}
}
