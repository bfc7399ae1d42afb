package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLat8Lon8Dist4Precision(t *testing.T) {
	assert.Equal(t, "51.50730000", lat8(51.5073))
	assert.Equal(t, "-0.12760000", lon8(-0.1276))
	assert.Equal(t, "1234.5679", dist4(1234.56789))
	assert.Equal(t, "0.00000001", lat8(0.000000009))
}

func TestUserKeyNormalizedTrimsWhitespace(t *testing.T) {
	height := 180.0
	k := UserKey{
		Firstname: "  Alice  ",
		Lastname:  " Smith",
		Birthdate: "1990-01-01 ",
		Height:    &height,
	}
	n := k.normalized()
	assert.Equal(t, "Alice", n.Firstname)
	assert.Equal(t, "Smith", n.Lastname)
	assert.Equal(t, "1990-01-01", n.Birthdate)
	assert.Equal(t, &height, n.Height)
}
