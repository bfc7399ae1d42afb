package hub

// broadcastAll sends frame to every connection, over a stable
// snapshot of the connection set so a slow send never holds up the
// hub's mutation loop for longer than copying a slice of ids.
func (h *Hub) broadcastAll(v interface{}) {
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.send(id, v)
	}
}

// broadcastToFollowers sends frame to every connection following
// sessionID, over a stable snapshot of followers[sessionID].
func (h *Hub) broadcastToFollowers(sessionID string, v interface{}) {
	followerSet, ok := h.followers[sessionID]
	if !ok {
		return
	}
	ids := make([]string, 0, len(followerSet))
	for id := range followerSet {
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.send(id, v)
	}
}

// setFollows atomically replaces connID's entire follow set and
// keeps follows/followers in agreement as a single operation, so the
// two indices never disagree (invariant: connID ∈ followers[S] ⇔ S ∈
// follows[connID]).
func (h *Hub) setFollows(connID string, sessionIDs []string) {
	h.clearFollows(connID)
	if len(sessionIDs) == 0 {
		return
	}
	set := make(map[string]bool, len(sessionIDs))
	for _, s := range sessionIDs {
		set[s] = true
		if h.followers[s] == nil {
			h.followers[s] = make(map[string]bool)
		}
		h.followers[s][connID] = true
	}
	h.follows[connID] = set
}

// clearFollows empties connID's follow set and removes it from every
// session's followers index.
func (h *Hub) clearFollows(connID string) {
	for sessionID := range h.follows[connID] {
		if followerSet, ok := h.followers[sessionID]; ok {
			delete(followerSet, connID)
			if len(followerSet) == 0 {
				delete(h.followers, sessionID)
			}
		}
	}
	delete(h.follows, connID)
}

// clearFollowersOf removes every follower of sessionID (used when a
// session is deleted or reset/archived away).
func (h *Hub) clearFollowersOf(sessionID string) {
	for connID := range h.followers[sessionID] {
		delete(h.follows[connID], sessionID)
	}
	delete(h.followers, sessionID)
}
