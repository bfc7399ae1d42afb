package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTouchReportsNewlyActiveOnlyOnce(t *testing.T) {
	h := newTestHub()
	assert.True(t, h.touch("s1", time.Now()))
	assert.False(t, h.touch("s1", time.Now()))
}

func TestSweepActiveEvictsStaleSessions(t *testing.T) {
	h := newTestHub()
	h.cfg.ActivityTimeoutSeconds = 1
	h.touch("s1", time.Now().Add(-2*time.Second))
	h.touch("s2", time.Now())

	h.sweepActive()

	assert.False(t, h.active["s1"])
	assert.True(t, h.active["s2"])
}

func TestMarkDeletedRefusesActiveSession(t *testing.T) {
	h := newTestHub()
	h.touch("s1", time.Now())

	ok, reason := h.markDeleted("s1")
	assert.False(t, ok)
	assert.Equal(t, "session is active", reason)
}

func TestMarkDeletedClearsStateForInactiveSession(t *testing.T) {
	h := newTestHub()
	h.cfg.ActivityTimeoutSeconds = 1
	h.touch("s1", time.Now().Add(-2*time.Second))
	h.setFollows("conn-a", []string{"s1"})

	ok, _ := h.markDeleted("s1")
	assert.True(t, ok)
	assert.NotContains(t, h.history, "s1")
	assert.NotContains(t, h.lastActivity, "s1")
	assert.Empty(t, h.followers["s1"])
}
