package bot

import (
	"context"
	"sync"
	"time"

	"github.com/akimotok/clipcast/telemetry"
)

// stage tracks where a user's conversation stands.
type stage int

const (
	// stageTitle: destination chosen, waiting for a title (or /skip).
	stageTitle stage = iota
	// stageAttachment: title settled, waiting for the video attachment.
	stageAttachment
)

// pending is one user's in-flight upload conversation. At most one exists per
// user id; it is consumed on the first valid video attachment and survives
// wrong attempts.
type pending struct {
	Stage    stage
	ChatID   int64 // conversation chat the prompts go to
	DestKey  string
	Title    string
	Uploader string
	Deadline time.Time
}

// pendingStore is the synchronized PendingUpload map shared by the gateway
// loop and the background sweeper.
type pendingStore struct {
	mu     sync.Mutex
	byUser map[int64]*pending

	promptTTL  time.Duration
	pendingTTL time.Duration
}

func newPendingStore(promptTTL, pendingTTL time.Duration) *pendingStore {
	return &pendingStore{
		byUser:     make(map[int64]*pending),
		promptTTL:  promptTTL,
		pendingTTL: pendingTTL,
	}
}

// put inserts or replaces the user's conversation state and stamps the stage
// deadline: prompt stages use promptTTL, the attachment stage uses pendingTTL.
func (s *pendingStore) put(userID int64, p *pending) {
	ttl := s.promptTTL
	if p.Stage == stageAttachment {
		ttl = s.pendingTTL
	}

	s.mu.Lock()
	p.Deadline = time.Now().Add(ttl)
	s.byUser[userID] = p
	n := len(s.byUser)
	s.mu.Unlock()
	telemetry.SetPendingDepth(n)
}

// get returns the user's live conversation state. Expired entries are evicted
// on access.
func (s *pendingStore) get(userID int64) (*pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	if time.Now().After(p.Deadline) {
		delete(s.byUser, userID)
		telemetry.SetPendingDepth(len(s.byUser))
		return nil, false
	}
	return p, true
}

// remove drops the user's conversation state, if any.
func (s *pendingStore) remove(userID int64) {
	s.mu.Lock()
	delete(s.byUser, userID)
	n := len(s.byUser)
	s.mu.Unlock()
	telemetry.SetPendingDepth(n)
}

func (s *pendingStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

// sweep evicts expired entries and returns how many were removed.
func (s *pendingStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, p := range s.byUser {
		if now.After(p.Deadline) {
			delete(s.byUser, id)
			removed++
		}
	}
	telemetry.SetPendingDepth(len(s.byUser))
	return removed
}

// sweepLoop periodically evicts expired conversations until ctx is cancelled.
func (s *pendingStore) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			return
		}
	}
}
