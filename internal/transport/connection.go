// Package transport terminates the persistent WebSocket connections
// clients and observers use, running one read pump and one write
// pump per connection, and forwarding decoded frames to the hub's
// single owning goroutine over its event channel — the hub never
// touches a socket directly.
package transport

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/netconsulting/geotracker/internal/frame"
	"github.com/netconsulting/geotracker/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// Connection is one accepted WebSocket connection. It implements
// hub.Sender so the hub can push frames without knowing about
// gorilla/websocket.
type Connection struct {
	id      string
	ws      *websocket.Conn
	hub     *hub.Hub
	send    chan []byte
	limiter *rate.Limiter
	logger  *zap.Logger

	closeOnce sync.Once
}

// NewConnection wraps an upgraded socket and registers it with the
// hub. Call ReadPump and WritePump in their own goroutines.
func NewConnection(id string, ws *websocket.Conn, h *hub.Hub, limiterRate float64, limiterBurst int, logger *zap.Logger) *Connection {
	c := &Connection{
		id:      id,
		ws:      ws,
		hub:     h,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(rate.Limit(limiterRate), limiterBurst),
		logger:  logger,
	}
	h.Connect(id, c)
	return c
}

// ID returns the connection's identifier.
func (c *Connection) ID() string { return c.id }

// Send marshals v and enqueues it for the write pump. A full send
// buffer means a slow observer; the contract is to drop rather than
// block the hub, so this returns false without blocking.
func (c *Connection) Send(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal outbound frame", zap.String("connId", c.id), zap.Error(err))
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears the connection down exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// ReadPump decodes inbound frames and forwards them to the hub. It
// returns when the connection closes, after submitting
// hub.Disconnect and calling Close itself.
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.Disconnect(c.id)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("connection closed unexpectedly", zap.String("connId", c.id), zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.logger.Debug("dropping frame over rate limit", zap.String("connId", c.id))
			continue
		}

		c.dispatch(data)
	}
}

// dispatch classifies one inbound frame and forwards it to the hub.
// A frame is either the literal "ping"/"pong" heartbeat, a JSON
// object whose `type` selects an operation, or — with no `type` but
// the telemetry shape — an untagged ingest frame accepted for
// backward compatibility. Frames with an unknown `type` are logged
// and ignored.
func (c *Connection) dispatch(data []byte) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == `"ping"` || trimmed == "ping" {
		c.hub.Ping(c.id)
		return
	}
	if trimmed == `"pong"` || trimmed == "pong" {
		return
	}

	var env frame.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping unparsable frame", zap.String("connId", c.id), zap.Error(err))
		return
	}

	switch env.Type {
	case frame.TypePing:
		c.hub.Ping(c.id)
	case frame.TypeRequestHistory:
		c.hub.RequestHistory(c.id)
	case frame.TypeCleanupMemory:
		c.hub.CleanupMemory(c.id)
	case frame.TypeGetActiveUsers:
		c.hub.GetActiveUsers(c.id)
	case frame.TypeFollowUsers:
		var f frame.FollowUsersFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed follow_users frame", zap.String("connId", c.id), zap.Error(err))
			return
		}
		c.hub.FollowUsers(c.id, f.SessionIDs)
	case frame.TypeUnfollowUsers:
		c.hub.UnfollowUsers(c.id)
	case frame.TypeRequestSessions:
		c.hub.RequestSessions(c.id)
	case frame.TypeDeleteSession:
		var f frame.DeleteSessionFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed delete_session frame", zap.String("connId", c.id), zap.Error(err))
			return
		}
		c.hub.DeleteSession(c.id, f.SessionID)
	case frame.TypeGetWeather:
		c.dispatchSessionScoped(data, false, c.hub.Weather)
	case frame.TypeGetWeatherSummary:
		c.dispatchSessionScoped(data, true, c.hub.Weather)
	case frame.TypeGetBarometer:
		c.dispatchSessionScoped(data, false, c.hub.Barometer)
	case frame.TypeGetBarometerSummary:
		c.dispatchSessionScoped(data, true, c.hub.Barometer)
	case "":
		if frame.LooksLikeTelemetry(data) {
			c.hub.Telemetry(c.id, data)
		} else {
			c.logger.Debug("dropping untyped frame missing telemetry shape", zap.String("connId", c.id))
		}
	default:
		c.logger.Info("ignoring unknown frame type", zap.String("connId", c.id), zap.String("type", env.Type))
	}
}

func (c *Connection) dispatchSessionScoped(data []byte, summary bool, submit func(connID, sessionID string, summary bool)) {
	var f frame.SessionScopedFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("dropping malformed session-scoped frame", zap.String("connId", c.id), zap.Error(err))
		return
	}
	submit(c.id, f.SessionID, summary)
}

// WritePump drains the send buffer to the socket and emits a
// transport-level ping on pingPeriod to keep intermediaries from
// timing the connection out. Returns when the send channel closes.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
