// Package models defines the relational domain types persisted by the
// store and exchanged, in reduced form, over the wire.
package models

import "time"

// User is identified by the (firstname, lastname, birthdate) triple;
// the latter two may be empty strings but participate in uniqueness.
type User struct {
	UserID    int64
	Firstname string
	Lastname  string
	Birthdate string
	Height    *float64
	Weight    *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HeartRateDevice is identified by a non-empty device name.
type HeartRateDevice struct {
	DeviceID   int64
	DeviceName string
	CreatedAt  time.Time
}

// TrackingSession is keyed by a client-supplied opaque string id.
type TrackingSession struct {
	SessionID                 string
	UserID                    int64
	EventName                 string
	SportType                 string
	Comment                   string
	Clothing                  string
	StartDateTime             time.Time
	MinDistanceMeters         *float64
	MinTimeSeconds            *int
	VoiceAnnouncementInterval *int
	StartCity                 string
	StartCountry              string
	StartAddress              string
	EndCity                   string
	EndCountry                string
	EndAddress                string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// GPSTrackingPoint is a child row of a session. Every field beyond
// coordinates, speeds, and cumulative distance is optional.
type GPSTrackingPoint struct {
	ID                   int64
	SessionID             string
	Latitude              float64
	Longitude             float64
	Altitude              *float64
	HorizontalAccuracy    *float64
	VerticalAccuracy      *float64
	SatellitesSeen        *int
	SatellitesUsed        *int
	CurrentSpeed          float64
	AverageSpeed          float64
	MaxSpeed              float64
	MovingAverageSpeed    float64
	AlternateSpeed        *float64
	AlternateSpeedAccuracy *float64
	Distance              float64
	CoveredDistance       *float64
	ElevationGain         *float64
	SlopeInstant          *float64
	SlopeAverage          *float64
	SlopeMaxUphill        *float64
	SlopeMaxDownhill      *float64
	LapNumber             *int
	HeartRate             *int
	HeartRateDeviceID     *int64
	WeatherTemperature    *float64
	WeatherWindSpeed      *float64
	WeatherWindDirection  *float64
	WeatherHumidity       *float64
	WeatherProviderTime   *time.Time
	WeatherCode           *int
	BarometerPressure     *float64
	BarometerAccuracy     *float64
	BarometerAltitude     *float64
	BarometerSeaLevel     *float64
	ReceivedAt            time.Time
	CreatedAt             time.Time
}

// LapTime is unique per (session, lap number); Duration is derived
// from Start/End, never stored independently.
type LapTime struct {
	ID         int64
	SessionID  string
	UserID     int64
	LapNumber  int
	StartTime  int64
	EndTime    int64
	Distance   float64
	CreatedAt  time.Time
}

// Duration returns the lap's elapsed milliseconds.
func (l LapTime) Duration() int64 {
	return l.EndTime - l.StartTime
}

// Waypoint is an optional named point of interest attached to a
// session.
type Waypoint struct {
	ID            int64
	SessionID     string
	Name          string
	Latitude      float64
	Longitude     float64
	Elevation     *float64
	ProducerTime  *time.Time
	CreatedAt     time.Time
}

// PlannedEvent is calendar data owned by the external REST facade;
// only the columns needed for schema bootstrap are modeled here.
type PlannedEvent struct {
	ID        int64
	UserID    int64
	EventName string
	SportType string
	EventDate time.Time
	CreatedAt time.Time
}
