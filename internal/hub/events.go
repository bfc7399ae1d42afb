package hub

import "encoding/json"

// event is the sealed set of messages the hub's owning goroutine
// accepts through Submit. Each connection's read pump translates
// decoded wire frames into these before handing them to the hub.
type event interface{ isEvent() }

type connectEvent struct {
	connID string
	sender Sender
}

type disconnectEvent struct {
	connID string
}

type pingEvent struct {
	connID string
}

type telemetryEvent struct {
	connID string
	raw    json.RawMessage
}

type requestHistoryEvent struct {
	connID string
}

type cleanupMemoryEvent struct {
	connID string
}

type getActiveUsersEvent struct {
	connID string
}

type followUsersEvent struct {
	connID     string
	sessionIDs []string
}

type unfollowUsersEvent struct {
	connID string
}

type requestSessionsEvent struct {
	connID string
}

type deleteSessionEvent struct {
	connID    string
	sessionID string
}

type weatherEvent struct {
	connID    string
	sessionID string
	summary   bool
}

type barometerEvent struct {
	connID    string
	sessionID string
	summary   bool
}

func (connectEvent) isEvent()          {}
func (disconnectEvent) isEvent()       {}
func (pingEvent) isEvent()             {}
func (telemetryEvent) isEvent()        {}
func (requestHistoryEvent) isEvent()   {}
func (cleanupMemoryEvent) isEvent()    {}
func (getActiveUsersEvent) isEvent()   {}
func (followUsersEvent) isEvent()      {}
func (unfollowUsersEvent) isEvent()    {}
func (requestSessionsEvent) isEvent()  {}
func (deleteSessionEvent) isEvent()    {}
func (weatherEvent) isEvent()          {}
func (barometerEvent) isEvent()        {}

// Connect submits a new connection's registration.
func (h *Hub) Connect(connID string, sender Sender) { h.Submit(connectEvent{connID: connID, sender: sender}) }

// Disconnect submits a connection teardown.
func (h *Hub) Disconnect(connID string) { h.Submit(disconnectEvent{connID: connID}) }

// Ping submits a ping from a connection.
func (h *Hub) Ping(connID string) { h.Submit(pingEvent{connID: connID}) }

// Telemetry submits an untagged or telemetry-typed frame for ingest.
func (h *Hub) Telemetry(connID string, raw json.RawMessage) {
	h.Submit(telemetryEvent{connID: connID, raw: raw})
}

// RequestHistory submits a request_history frame.
func (h *Hub) RequestHistory(connID string) { h.Submit(requestHistoryEvent{connID: connID}) }

// CleanupMemory submits a manual cleanup_memory trigger.
func (h *Hub) CleanupMemory(connID string) { h.Submit(cleanupMemoryEvent{connID: connID}) }

// GetActiveUsers submits a get_active_users frame.
func (h *Hub) GetActiveUsers(connID string) { h.Submit(getActiveUsersEvent{connID: connID}) }

// FollowUsers submits a follow_users frame.
func (h *Hub) FollowUsers(connID string, sessionIDs []string) {
	h.Submit(followUsersEvent{connID: connID, sessionIDs: sessionIDs})
}

// UnfollowUsers submits an unfollow_users frame.
func (h *Hub) UnfollowUsers(connID string) { h.Submit(unfollowUsersEvent{connID: connID}) }

// RequestSessions submits a request_sessions frame.
func (h *Hub) RequestSessions(connID string) { h.Submit(requestSessionsEvent{connID: connID}) }

// DeleteSession submits a delete_session frame.
func (h *Hub) DeleteSession(connID, sessionID string) {
	h.Submit(deleteSessionEvent{connID: connID, sessionID: sessionID})
}

// Weather submits a get_weather/get_weather_summary frame.
func (h *Hub) Weather(connID, sessionID string, summary bool) {
	h.Submit(weatherEvent{connID: connID, sessionID: sessionID, summary: summary})
}

// Barometer submits a get_barometer/get_barometer_summary frame.
func (h *Hub) Barometer(connID, sessionID string, summary bool) {
	h.Submit(barometerEvent{connID: connID, sessionID: sessionID, summary: summary})
}
