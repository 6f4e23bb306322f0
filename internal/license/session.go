package license

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// sessionIdleWindow is the inactivity gap after which a new session
// identity is minted (§4.4: "a session rotates after 30 minutes idle").
const sessionIdleWindow = 30 * time.Minute

// Session tracks a rotating anonymous session identity used to group
// usage events without persisting a long-lived identifier.
type Session struct {
	mu           sync.Mutex
	id           string
	lastActivity time.Time
}

// NewSession mints an initial session identity.
func NewSession(now time.Time) *Session {
	return &Session{id: newSessionID(), lastActivity: now}
}

// Touch records activity at now, rotating the session id first if the
// previous activity was more than sessionIdleWindow ago. Returns the id
// in effect after the touch.
func (s *Session) Touch(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastActivity) > sessionIdleWindow {
		s.id = newSessionID()
	}
	s.lastActivity = now
	return s.id
}

// ID returns the current session identity without recording activity.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func newSessionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader does not fail in
		// practice; fall back to a fixed-but-valid id rather than panic.
		return "00000000"
	}
	return hex.EncodeToString(buf)
}
