package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
)

// fakeSender is an in-memory Sender used by hub package tests to
// observe what the hub would have pushed to a real connection.
type fakeSender struct {
	id string

	mu       sync.Mutex
	received []interface{}
	alive    bool
}

func newFakeSender(id string) *fakeSender {
	return &fakeSender{id: id, alive: true}
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(v interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return false
	}
	f.received = append(f.received, v)
	return true
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

func (f *fakeSender) messages() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.received))
	copy(out, f.received)
	return out
}

// newTestHub builds a Hub with test-sized config and no store/duplicate
// dependency, suitable for exercising registry/broadcast/coordinate/
// reset/sweeper logic that never touches persistence.
func newTestHub() *Hub {
	return New(
		config.HubConfig{ActivityTimeoutSeconds: 60},
		config.ResetConfig{TimeGapSeconds: 300, JumpDegrees: 0.045, DistanceRatio: 0.5},
		config.RetentionConfig{DataRetentionHours: 24, CleanupIntervalSecs: 3600},
		nil, nil, nil,
		zap.NewNop(),
	)
}
