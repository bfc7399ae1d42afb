package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netconsulting/geotracker/internal/frame"
)

func TestSweepHistoryDropsPointsOlderThanCutoff(t *testing.T) {
	h := newTestHub()
	h.ret.DataRetentionHours = 24

	old := time.Now().Add(-25 * time.Hour).Format(PersistentTimestampFormat)
	recent := time.Now().Add(-1 * time.Hour).Format(PersistentTimestampFormat)

	h.history["s1"] = []frame.BroadcastPoint{
		{SessionID: "s1", Timestamp: old},
		{SessionID: "s1", Timestamp: recent},
	}
	h.lastActivity["s1"] = time.Now()

	changed := h.sweepHistory()

	assert.True(t, changed)
	assert.Len(t, h.history["s1"], 1)
	assert.Equal(t, recent, h.history["s1"][0].Timestamp)
}

func TestSweepHistoryDropsEmptiedSessionEntirely(t *testing.T) {
	h := newTestHub()
	h.ret.DataRetentionHours = 24

	old := time.Now().Add(-25 * time.Hour).Format(PersistentTimestampFormat)
	h.history["s1"] = []frame.BroadcastPoint{{SessionID: "s1", Timestamp: old}}
	h.lastActivity["s1"] = time.Now().Add(-25 * time.Hour)

	changed := h.sweepHistory()

	assert.True(t, changed)
	assert.NotContains(t, h.history, "s1")
	assert.NotContains(t, h.lastActivity, "s1")
}

func TestSweepHistoryKeepsUnparsableTimestampsRatherThanDropping(t *testing.T) {
	h := newTestHub()
	h.history["s1"] = []frame.BroadcastPoint{{SessionID: "s1", Timestamp: "not-a-timestamp"}}

	h.sweepHistory()

	assert.Len(t, h.history["s1"], 1)
}

func TestSweepHistoryNoChangeWhenEverythingIsRecent(t *testing.T) {
	h := newTestHub()
	recent := time.Now().Format(PersistentTimestampFormat)
	h.history["s1"] = []frame.BroadcastPoint{{SessionID: "s1", Timestamp: recent}}

	changed := h.sweepHistory()

	assert.False(t, changed)
	assert.Len(t, h.history["s1"], 1)
}
