package hub

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// euclideanDegrees computes the raw planar distance between two
// (lon, lat) points in degrees. It is deliberately NOT a haversine
// great-circle distance — the reset detector's jump threshold was
// tuned against this flat-earth approximation, and switching to a
// geodesic distance would shift its trigger sensitivity near the
// poles and across the antimeridian.
func euclideanDegrees(aLon, aLat, bLon, bLat float64) float64 {
	dx := aLon - bLon
	dy := aLat - bLat
	return math.Sqrt(dx*dx + dy*dy)
}

// applyResetDetector inspects (lat, lon, cumulative distance, seen)
// against the session's prior state and, if any trigger fires,
// rewrites the effective session id and archives the prior in-memory
// history. Coordinates already flagged invalid by the coordinate
// gate must never reach this function — they neither trigger a reset
// nor mutate detector state, per the gate's policy.
func (h *Hub) applyResetDetector(sessionID string, lat, lon, distance float64, seen time.Time) (effectiveID string, triggered bool) {
	state, ok := h.resetState[sessionID]
	if !ok {
		h.resetState[sessionID] = &sessionResetState{
			lastLat: lat, lastLon: lon, lastDistance: distance, lastSeen: seen, hasState: true,
		}
		return sessionID, false
	}

	fired := false
	if !state.lastSeen.IsZero() && seen.Sub(state.lastSeen).Seconds() > h.reset.TimeGapSeconds {
		fired = true
	}
	jump := euclideanDegrees(lon, lat, state.lastLon, state.lastLat)
	if jump > h.reset.JumpDegrees {
		fired = true
	}
	if state.lastDistance > 0 && distance > 0 && distance < state.lastDistance*h.reset.DistanceRatio {
		fired = true
	}

	if !fired {
		state.lastLat, state.lastLon, state.lastDistance, state.lastSeen = lat, lon, distance, seen
		return sessionID, false
	}

	ms := time.Now().UnixMilli()
	newID := fmt.Sprintf("%s_reset_%d", sessionID, ms)
	archiveID := fmt.Sprintf("%s_archived_%d", sessionID, ms)

	h.history[archiveID] = h.history[sessionID]
	delete(h.history, sessionID)
	delete(h.active, sessionID)
	delete(h.lastActivity, sessionID)
	delete(h.resetState, sessionID)
	h.clearFollowersOf(sessionID)

	h.resetState[newID] = &sessionResetState{
		lastLat: lat, lastLon: lon, lastDistance: distance, lastSeen: seen, hasState: true,
	}
	h.logger.Info("reset detector triggered",
		zap.String("originalSessionId", sessionID),
		zap.String("newSessionId", newID),
		zap.String("archivedAs", archiveID))
	return newID, true
}
