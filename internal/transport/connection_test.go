package transport

import (
	"testing"

	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
	"github.com/netconsulting/geotracker/internal/hub"
)

// newTestConnection builds a Connection bound to a Hub whose Run loop
// is never started. Submit only enqueues onto a buffered channel, so
// dispatch can be exercised without a store/persistence dependency as
// long as nothing drains the queue.
func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	h := hub.New(
		config.HubConfig{ActivityTimeoutSeconds: 60},
		config.ResetConfig{TimeGapSeconds: 300, JumpDegrees: 0.045, DistanceRatio: 0.5},
		config.RetentionConfig{DataRetentionHours: 24, CleanupIntervalSecs: 3600},
		nil, nil, nil,
		zap.NewNop(),
	)
	return &Connection{
		id:      "conn-test",
		hub:     h,
		send:    make(chan []byte, 8),
		limiter: nil,
		logger:  zap.NewNop(),
	}
}

func TestDispatchDoesNotPanicOnRecognizedShapes(t *testing.T) {
	c := newTestConnection(t)

	frames := [][]byte{
		[]byte(`"ping"`),
		[]byte(`ping`),
		[]byte(`"pong"`),
		[]byte(`{"type":"ping"}`),
		[]byte(`{"type":"request_history"}`),
		[]byte(`{"type":"cleanup_memory"}`),
		[]byte(`{"type":"get_active_users"}`),
		[]byte(`{"type":"follow_users","sessionIds":["s1","s2"]}`),
		[]byte(`{"type":"unfollow_users"}`),
		[]byte(`{"type":"request_sessions"}`),
		[]byte(`{"type":"delete_session","sessionId":"s1"}`),
		[]byte(`{"type":"get_weather","sessionId":"s1"}`),
		[]byte(`{"type":"get_weather_summary","sessionId":"s1"}`),
		[]byte(`{"type":"get_barometer","sessionId":"s1"}`),
		[]byte(`{"type":"get_barometer_summary","sessionId":"s1"}`),
		[]byte(`{"sessionId":"s1","latitude":51.5,"longitude":-0.1,"distance":10}`),
		[]byte(`{"type":"unrecognized_future_type"}`),
		[]byte(`{"sessionId":"s1"}`),
		[]byte(`not json at all`),
	}

	for _, f := range frames {
		c.dispatch(f)
	}
}

func TestDispatchSessionScopedIgnoresMalformedPayload(t *testing.T) {
	c := newTestConnection(t)
	called := false
	c.dispatchSessionScoped([]byte(`not json`), false, func(connID, sessionID string, summary bool) {
		called = true
	})
	if called {
		t.Errorf("expected malformed payload to be dropped without invoking submit")
	}
}
