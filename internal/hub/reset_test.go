package hub

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netconsulting/geotracker/internal/frame"
)

func TestApplyResetDetectorFirstSeenInitializesState(t *testing.T) {
	h := newTestHub()
	id, triggered := h.applyResetDetector("s1", 51.5, -0.1, 100, time.Now())
	assert.Equal(t, "s1", id)
	assert.False(t, triggered)
	assert.True(t, h.resetState["s1"].hasState)
}

func TestApplyResetDetectorNoTriggerOnSmallMovement(t *testing.T) {
	h := newTestHub()
	base := time.Now()
	h.applyResetDetector("s1", 51.5, -0.1, 100, base)
	id, triggered := h.applyResetDetector("s1", 51.50001, -0.10001, 101, base.Add(5*time.Second))
	assert.Equal(t, "s1", id)
	assert.False(t, triggered)
}

func TestApplyResetDetectorTriggersOnTimeGap(t *testing.T) {
	h := newTestHub()
	base := time.Now()
	h.applyResetDetector("s1", 51.5, -0.1, 100, base)
	id, triggered := h.applyResetDetector("s1", 51.5, -0.1, 101, base.Add(301*time.Second))
	assert.True(t, triggered)
	assert.True(t, strings.HasPrefix(id, "s1_reset_"))
	assert.NotContains(t, h.history, "s1")
}

func TestApplyResetDetectorTriggersOnCoordinateJump(t *testing.T) {
	h := newTestHub()
	base := time.Now()
	h.applyResetDetector("s1", 51.5, -0.1, 100, base)
	id, triggered := h.applyResetDetector("s1", 52.0, -0.1, 101, base.Add(time.Second))
	assert.True(t, triggered)
	assert.True(t, strings.HasPrefix(id, "s1_reset_"))
}

func TestApplyResetDetectorTriggersOnDistanceRatioDrop(t *testing.T) {
	h := newTestHub()
	base := time.Now()
	h.applyResetDetector("s1", 51.5, -0.1, 1000, base)
	id, triggered := h.applyResetDetector("s1", 51.50001, -0.10001, 100, base.Add(time.Second))
	assert.True(t, triggered)
	assert.True(t, strings.HasPrefix(id, "s1_reset_"))
}

func TestApplyResetDetectorArchivesHistoryAndClearsFollowers(t *testing.T) {
	h := newTestHub()
	base := time.Now()
	h.history["s1"] = []frame.BroadcastPoint{{SessionID: "s1", Latitude: 51.5, Longitude: -0.1}}
	h.applyResetDetector("s1", 51.5, -0.1, 100, base)
	h.setFollows("conn-a", []string{"s1"})

	newID, triggered := h.applyResetDetector("s1", 52.0, -0.1, 101, base.Add(time.Second))
	assert.True(t, triggered)
	assert.NotContains(t, h.history, "s1")
	assert.Empty(t, h.followers["s1"])
	assert.NotEqual(t, "s1", newID)
}

func TestEuclideanDegrees(t *testing.T) {
	d := euclideanDegrees(0, 0, 3, 4)
	assert.InDelta(t, 5.0, d, 1e-9)
}
