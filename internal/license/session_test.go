package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionTouchKeepsIDWithinWindow(t *testing.T) {
	t0 := time.Now()
	s := NewSession(t0)
	id0 := s.ID()

	id1 := s.Touch(t0.Add(10 * time.Minute))
	assert.Equal(t, id0, id1)
}

func TestSessionTouchRotatesAfterIdleWindow(t *testing.T) {
	t0 := time.Now()
	s := NewSession(t0)
	id0 := s.ID()

	id1 := s.Touch(t0.Add(31 * time.Minute))
	assert.NotEqual(t, id0, id1)
}
