package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetFollowsKeepsFollowsAndFollowersInAgreement(t *testing.T) {
	h := newTestHub()
	h.touch("s1", time.Now())
	h.touch("s2", time.Now())

	h.setFollows("conn-a", []string{"s1", "s2"})

	assert.True(t, h.follows["conn-a"]["s1"])
	assert.True(t, h.follows["conn-a"]["s2"])
	assert.True(t, h.followers["s1"]["conn-a"])
	assert.True(t, h.followers["s2"]["conn-a"])
}

func TestSetFollowsReplacesNotUnions(t *testing.T) {
	h := newTestHub()
	h.setFollows("conn-a", []string{"s1", "s2"})
	h.setFollows("conn-a", []string{"s2"})

	assert.NotContains(t, h.follows["conn-a"], "s1")
	assert.True(t, h.follows["conn-a"]["s2"])
	assert.NotContains(t, h.followers, "s1")
	assert.True(t, h.followers["s2"]["conn-a"])
}

func TestClearFollowsRemovesFromBothIndices(t *testing.T) {
	h := newTestHub()
	h.setFollows("conn-a", []string{"s1"})
	h.clearFollows("conn-a")

	assert.NotContains(t, h.follows, "conn-a")
	assert.NotContains(t, h.followers, "s1")
}

func TestClearFollowersOfRemovesEveryFollower(t *testing.T) {
	h := newTestHub()
	h.setFollows("conn-a", []string{"s1"})
	h.setFollows("conn-b", []string{"s1"})

	h.clearFollowersOf("s1")

	assert.NotContains(t, h.followers, "s1")
	assert.NotContains(t, h.follows["conn-a"], "s1")
	assert.NotContains(t, h.follows["conn-b"], "s1")
}

func TestBroadcastAllReachesEveryConnection(t *testing.T) {
	h := newTestHub()
	a := newFakeSender("conn-a")
	b := newFakeSender("conn-b")
	h.connections["conn-a"] = a
	h.connections["conn-b"] = b

	h.broadcastAll("hello")

	assert.Equal(t, []interface{}{"hello"}, a.messages())
	assert.Equal(t, []interface{}{"hello"}, b.messages())
}

func TestBroadcastToFollowersOnlyReachesFollowers(t *testing.T) {
	h := newTestHub()
	a := newFakeSender("conn-a")
	b := newFakeSender("conn-b")
	h.connections["conn-a"] = a
	h.connections["conn-b"] = b
	h.setFollows("conn-a", []string{"s1"})

	h.broadcastToFollowers("s1", "update")

	assert.Equal(t, []interface{}{"update"}, a.messages())
	assert.Empty(t, b.messages())
}

func TestSendDropsDeadConnection(t *testing.T) {
	h := newTestHub()
	dead := newFakeSender("conn-a")
	dead.Close()
	h.connections["conn-a"] = dead
	h.setFollows("conn-a", []string{"s1"})

	h.send("conn-a", "x")

	assert.NotContains(t, h.connections, "conn-a")
	assert.NotContains(t, h.follows, "conn-a")
}
