package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLapTimeDuration(t *testing.T) {
	l := LapTime{StartTime: 1000, EndTime: 4500}
	assert.Equal(t, int64(3500), l.Duration())
}
