package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// retryScheduler tracks pending delayed retries per lobby operation so
// they can be cancelled when the lobby is torn down. At most one retry
// is pending per key; scheduling again replaces the previous timer.
type retryScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newRetryScheduler() *retryScheduler {
	return &retryScheduler{timers: make(map[string]*time.Timer)}
}

func (s *retryScheduler) schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

func (s *retryScheduler) cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// cancelLobby drops any pending retries for both guarded operations of
// the given lobby.
func (s *retryScheduler) cancelLobby(lobbyID uuid.UUID) {
	s.cancel(retryKey(lobbyID, opStart))
	s.cancel(retryKey(lobbyID, opEnd))
}

func retryKey(lobbyID uuid.UUID, op string) string {
	return lobbyID.String() + ":" + op
}
