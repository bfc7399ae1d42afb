package hub

import "time"

// touch upserts last-activity for a session and marks it active. It
// is the single mutation point for session liveness, always called
// from the hub's own goroutine.
func (h *Hub) touch(sessionID string, at time.Time) (newlyActive bool) {
	_, wasActive := h.active[sessionID]
	h.lastActivity[sessionID] = at
	h.active[sessionID] = true
	return !wasActive
}

// sweepActive evicts any session whose last-activity stamp has aged
// past the activity timeout from the active set (but never from
// history). The "active" set is a cache recomputed lazily at every
// query point, per the event-sourced liveness design note, so every
// read path that consults activeness calls this first.
func (h *Hub) sweepActive() {
	timeout := time.Duration(h.cfg.ActivityTimeoutSeconds) * time.Second
	now := time.Now()
	for sessionID, last := range h.lastActivity {
		if now.Sub(last) > timeout {
			delete(h.active, sessionID)
		}
	}
}

// markDeleted requires that the session is not active (the caller
// must have swept first); it returns false with a reason otherwise.
func (h *Hub) markDeleted(sessionID string) (ok bool, reason string) {
	h.sweepActive()
	if h.active[sessionID] {
		return false, "session is active"
	}
	delete(h.history, sessionID)
	delete(h.lastActivity, sessionID)
	delete(h.resetState, sessionID)
	h.clearFollowersOf(sessionID)
	return true, ""
}
