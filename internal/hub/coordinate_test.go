package hub

import "testing"

func TestCheckCoordinatesValid(t *testing.T) {
	cases := []struct {
		lat, lon float64
	}{
		{51.5073, -0.1276},
		{90, 180},
		{-90, -180},
		{0, 1},
		{1, 0},
	}
	for _, c := range cases {
		valid, reason := checkCoordinates(c.lat, c.lon)
		if !valid {
			t.Errorf("expected (%v,%v) valid, got invalid: %s", c.lat, c.lon, reason)
		}
	}
}

func TestCheckCoordinatesSentinel(t *testing.T) {
	valid, reason := checkCoordinates(-999, 10)
	if valid || reason == "" {
		t.Errorf("expected sentinel latitude invalid with a reason, got valid=%v reason=%q", valid, reason)
	}

	valid, _ = checkCoordinates(10, -999)
	if valid {
		t.Errorf("expected sentinel longitude invalid")
	}
}

func TestCheckCoordinatesOriginIsInvalid(t *testing.T) {
	valid, _ := checkCoordinates(0, 0)
	if valid {
		t.Errorf("expected (0,0) invalid")
	}
}

func TestCheckCoordinatesOutOfRange(t *testing.T) {
	if valid, _ := checkCoordinates(90.0001, 0); valid {
		t.Errorf("expected latitude beyond +90 invalid")
	}
	if valid, _ := checkCoordinates(-90.0001, 0); valid {
		t.Errorf("expected latitude beyond -90 invalid")
	}
	if valid, _ := checkCoordinates(0, 180.0001); valid {
		t.Errorf("expected longitude beyond +180 invalid")
	}
	if valid, _ := checkCoordinates(0, -180.0001); valid {
		t.Errorf("expected longitude beyond -180 invalid")
	}
}
