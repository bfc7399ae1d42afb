// Package hub is the stateful heart of the service: it terminates the
// shared mutable state (connection set, follow indices, in-memory
// history, liveness) behind a single owning goroutine reached only
// through its event channel, per the message-passing concurrency
// model chosen to eliminate the A/B index inconsistency window a
// shared-mutex design would risk.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
	"github.com/netconsulting/geotracker/internal/duplicate"
	"github.com/netconsulting/geotracker/internal/frame"
	"github.com/netconsulting/geotracker/internal/store"
)

// Sender is the hub's view of a connection: enough to push an
// outbound frame and to know it by id. Implemented by
// internal/transport.Connection; the hub never imports transport, so
// this interface is the only coupling between the two packages.
type Sender interface {
	ID() string
	Send(v interface{}) bool
	Close()
}

// Broadcaster is the optional secondary sink (the MQTT mirror);
// implemented by internal/broadcast.MQTTSink. A nil Broadcaster means
// no mirror is configured.
type Broadcaster interface {
	Mirror(sessionID string, frameType string, v interface{})
}

type sessionResetState struct {
	lastLat      float64
	lastLon      float64
	lastDistance float64
	lastSeen     time.Time
	hasState     bool
}

// Hub owns every piece of shared mutable state named in the registry
// and subscription-index contracts. All mutation happens on the
// single goroutine running Run; every other goroutine communicates
// with it exclusively through Submit.
type Hub struct {
	cfg    config.HubConfig
	reset  config.ResetConfig
	ret    config.RetentionConfig

	store     *store.Store
	duplicate *duplicate.Detector
	mirror    Broadcaster
	logger    *zap.Logger

	events chan event

	connections  map[string]Sender
	follows      map[string]map[string]bool // connID -> session ids
	followers    map[string]map[string]bool // sessionID -> connIDs
	history      map[string][]frame.BroadcastPoint
	active       map[string]bool
	lastActivity map[string]time.Time
	resetState   map[string]*sessionResetState

	lastActiveUsersBroadcast time.Time
}

// New builds a Hub. Call Run in its own goroutine to start processing.
func New(cfg config.HubConfig, reset config.ResetConfig, ret config.RetentionConfig, st *store.Store, dup *duplicate.Detector, mirror Broadcaster, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:          cfg,
		reset:        reset,
		ret:          ret,
		store:        st,
		duplicate:    dup,
		mirror:       mirror,
		logger:       logger,
		events:       make(chan event, 1024),
		connections:  make(map[string]Sender),
		follows:      make(map[string]map[string]bool),
		followers:    make(map[string]map[string]bool),
		history:      make(map[string][]frame.BroadcastPoint),
		active:       make(map[string]bool),
		lastActivity: make(map[string]time.Time),
		resetState:   make(map[string]*sessionResetState),
	}
}

// Submit enqueues an event for processing by the hub's owning
// goroutine. It is the only thread-safe entry point into hub state.
func (h *Hub) Submit(e event) {
	h.events <- e
}

// Bootstrap loads the retention window's worth of history from the
// store at startup, so newly connected observers have something to
// replay immediately. Called before Run, from the main goroutine.
func (h *Hub) Bootstrap(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(h.ret.DataRetentionHours) * time.Hour)
	points, err := h.store.LoadHistorySince(ctx, cutoff)
	if err != nil {
		h.logger.Warn("bootstrap history load failed, starting with empty history", zap.Error(err))
		return nil
	}
	for _, hp := range points {
		bp := frame.BroadcastPoint{
			SessionID:          hp.SessionID,
			Firstname:          hp.Firstname,
			Latitude:           hp.Point.Latitude,
			Longitude:          hp.Point.Longitude,
			CurrentSpeed:       hp.Point.CurrentSpeed,
			AverageSpeed:       hp.Point.AverageSpeed,
			MaxSpeed:           hp.Point.MaxSpeed,
			MovingAverageSpeed: hp.Point.MovingAverageSpeed,
			Distance:           hp.Point.Distance,
			HeartRate:          hp.Point.HeartRate,
			LapNumber:          hp.Point.LapNumber,
			Timestamp:          hp.Point.ReceivedAt.Format(PersistentTimestampFormat),
		}
		h.history[hp.SessionID] = append(h.history[hp.SessionID], bp)
		h.lastActivity[hp.SessionID] = hp.Point.ReceivedAt
	}
	h.logger.Info("bootstrap complete", zap.Int("points", len(points)), zap.Int("sessions", len(h.history)))
	return nil
}

// PersistentTimestampFormat is the in-memory wire's sort-key format:
// local-clock `DD-MM-YYYY HH:MM:SS`.
const PersistentTimestampFormat = "02-01-2006 15:04:05"

// Run processes events until ctx is cancelled. It is the only
// goroutine that ever touches Hub's maps.
func (h *Hub) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(time.Duration(h.ret.CleanupIntervalSecs) * time.Second)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			return
		case <-sweepTicker.C:
			if h.ret.EnableAutomaticSweep {
				h.runRetentionSweep(ctx)
			}
		case e := <-h.events:
			h.dispatch(ctx, e)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, e event) {
	switch ev := e.(type) {
	case connectEvent:
		h.connections[ev.connID] = ev.sender
	case disconnectEvent:
		h.handleDisconnect(ev.connID)
	case pingEvent:
		h.send(ev.connID, "pong")
	case telemetryEvent:
		h.ingest(ctx, ev.connID, ev.raw)
	case requestHistoryEvent:
		h.handleRequestHistory(ev.connID)
	case cleanupMemoryEvent:
		h.handleCleanupMemory(ctx, ev.connID)
	case getActiveUsersEvent:
		h.sweepActive()
		h.sendActiveUsers(ev.connID)
	case followUsersEvent:
		h.handleFollowUsers(ev.connID, ev.sessionIDs)
	case unfollowUsersEvent:
		h.handleUnfollow(ev.connID)
	case requestSessionsEvent:
		h.handleRequestSessions(ev.connID)
	case deleteSessionEvent:
		h.handleDeleteSession(ctx, ev.connID, ev.sessionID)
	case weatherEvent:
		h.handleWeather(ctx, ev.connID, ev.sessionID, ev.summary)
	case barometerEvent:
		h.handleBarometer(ctx, ev.connID, ev.sessionID, ev.summary)
	default:
		h.logger.Warn("unknown hub event", zap.String("type", fmt.Sprintf("%T", e)))
	}
}

func (h *Hub) handleDisconnect(connID string) {
	delete(h.connections, connID)
	h.clearFollows(connID)
}

func (h *Hub) send(connID string, v interface{}) {
	sender, ok := h.connections[connID]
	if !ok {
		return
	}
	if !sender.Send(v) {
		h.logger.Warn("dropping slow/dead connection", zap.String("connId", connID))
		delete(h.connections, connID)
		h.clearFollows(connID)
		sender.Close()
	}
}

// decodeInto is a small helper shared by the event handlers that need
// to re-decode a raw payload into a concrete type.
func decodeInto(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
