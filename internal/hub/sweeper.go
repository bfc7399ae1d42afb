package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/frame"
	"github.com/netconsulting/geotracker/internal/metrics"
)

// runRetentionSweep is the periodic background tick: compute the
// cutoff, prune in-memory history, and broadcast an updated
// session_list if anything changed. It touches ONLY in-memory state;
// the database's own retention, if any, is never conflated with this.
func (h *Hub) runRetentionSweep(_ context.Context) {
	changed := h.sweepHistory()
	metrics.RetentionSweepsTotal.Inc()
	if changed {
		h.sendSessionListToAll()
	}
}

// sweepHistory prunes every session's history to points at or after
// the retention cutoff, dropping emptied sessions from history and
// last_activity, and re-sweeping active. Returns whether anything
// changed.
func (h *Hub) sweepHistory() bool {
	cutoff := time.Now().Add(-time.Duration(h.ret.DataRetentionHours) * time.Hour)

	changed := false
	for sessionID, points := range h.history {
		kept := points[:0:0]
		for _, p := range points {
			parsed, err := time.ParseInLocation(PersistentTimestampFormat, p.Timestamp, time.Local)
			if err != nil || !parsed.Before(cutoff) {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(points) {
			changed = true
		}
		if len(kept) == 0 {
			delete(h.history, sessionID)
			delete(h.lastActivity, sessionID)
			changed = true
			continue
		}
		h.history[sessionID] = kept
	}
	if changed {
		h.sweepActive()
	}
	h.logger.Debug("retention sweep complete", zap.Bool("changed", changed), zap.Int("sessions", len(h.history)))
	return changed
}

func (h *Hub) sendSessionListToAll() {
	h.sweepActive()
	items := make([]frame.SessionListItem, 0, len(h.history))
	for sessionID := range h.history {
		items = append(items, frame.SessionListItem{SessionID: sessionID, IsActive: h.active[sessionID]})
	}
	h.broadcastAll(frame.SessionListFrame{Type: frame.TypeSessionList, Sessions: items})
}
