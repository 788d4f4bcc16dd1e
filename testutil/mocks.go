// Package testutil provides shared fakes for exercising the upload pipeline
// without touching the media host or the chat platform.
package testutil

import (
	"context"
	"sync"

	"github.com/akimotok/clipcast/media"
)

// MockUploader counts Upload calls and returns a canned asset or error.
type MockUploader struct {
	mu    sync.Mutex
	calls int

	Asset media.Asset
	Err   error
	// LastPath records the staged path handed to the most recent call.
	LastPath string
}

func (m *MockUploader) Upload(ctx context.Context, localPath string) (media.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.LastPath = localPath
	if m.Err != nil {
		return media.Asset{}, m.Err
	}
	return m.Asset, nil
}

// Calls returns how many times Upload ran.
func (m *MockUploader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SentMessage is one delivery recorded by MockSender.
type SentMessage struct {
	ChatID int64
	Text   string
}

// MockSender records relay sends and returns a canned error.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage

	Err error
}

func (m *MockSender) Send(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text})
	if m.Err != nil {
		return m.Err
	}
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
