package duplicate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
)

func TestAbsDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, absDuration(5*time.Second))
	assert.Equal(t, 5*time.Second, absDuration(-5*time.Second))
	assert.Equal(t, time.Duration(0), absDuration(0))
}

func TestWithinCoordTolerance(t *testing.T) {
	assert.True(t, withinCoordTolerance(51.5, -0.1, 51.5001, -0.1001, 0.0001))
	assert.False(t, withinCoordTolerance(51.5, -0.1, 51.6, -0.1, 0.0001))
}

func TestCheckDisabledReturnsEmptyResult(t *testing.T) {
	d := New(nil, config.DuplicateConfig{Enabled: false}, zap.NewNop())
	res, err := d.Check(context.Background(), 1, []CandidatePoint{})
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}

func TestCheckRefusesFewerThanThreePoints(t *testing.T) {
	d := New(nil, config.DuplicateConfig{Enabled: true}, zap.NewNop())
	_, err := d.Check(context.Background(), 1, []CandidatePoint{
		{ReceivedAt: time.Now(), Latitude: 51.5, Longitude: -0.1},
		{ReceivedAt: time.Now(), Latitude: 51.5, Longitude: -0.1},
	})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}
