package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/netconsulting/geotracker/internal/models"
)

// UserKey is the (firstname, lastname, birthdate) triple that
// identifies a user; lastname and birthdate may be empty strings but
// participate in the uniqueness comparison.
type UserKey struct {
	Firstname string
	Lastname  string
	Birthdate string
	Height    *float64
	Weight    *float64
}

// normalized trims surrounding whitespace from the triple for the
// uniqueness comparison; absent lastname/birthdate stay empty strings.
func (k UserKey) normalized() UserKey {
	return UserKey{
		Firstname: strings.TrimSpace(k.Firstname),
		Lastname:  strings.TrimSpace(k.Lastname),
		Birthdate: strings.TrimSpace(k.Birthdate),
		Height:    k.Height,
		Weight:    k.Weight,
	}
}

// GetOrCreateUser resolves a user by the exact (firstname, lastname,
// birthdate) triple, inserting one if absent. On a unique-constraint
// conflict from a concurrent inserter, it refetches and returns the
// existing row rather than treating the conflict as an error.
func (s *Store) GetOrCreateUser(ctx context.Context, key UserKey) (int64, error) {
	if s.pool == nil {
		return 0, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	var id int64
	err := s.txFunc(ctx, func(tx pgx.Tx) error {
		got, err := s.getOrCreateUserTx(ctx, tx, key)
		id = got
		return err
	})
	return id, err
}

func (s *Store) getOrCreateUserTx(ctx context.Context, tx pgx.Tx, key UserKey) (int64, error) {
	key = key.normalized()

	var id int64
	row := tx.QueryRow(ctx, `
		SELECT user_id FROM users WHERE firstname = $1 AND lastname = $2 AND birthdate = $3`,
		key.Firstname, key.Lastname, key.Birthdate)
	err := row.Scan(&id)
	switch {
	case err == nil:
		if key.Height != nil || key.Weight != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE users SET
					height = COALESCE($2, height),
					weight = COALESCE($3, weight),
					updated_at = now()
				WHERE user_id = $1`, id, key.Height, key.Weight); err != nil {
				return 0, fmt.Errorf("patching user %d: %w", id, err)
			}
		}
		return id, nil
	case errors.Is(err, pgx.ErrNoRows):
		insertErr := tx.QueryRow(ctx, `
			INSERT INTO users (firstname, lastname, birthdate, height, weight, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (firstname, lastname, birthdate) DO UPDATE SET updated_at = now()
			RETURNING user_id`,
			key.Firstname, key.Lastname, key.Birthdate, key.Height, key.Weight).Scan(&id)
		if insertErr != nil {
			return 0, fmt.Errorf("inserting user: %w", insertErr)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("looking up user: %w", err)
	}
}

// GetOrCreateHeartRateDevice resolves a device by name, rejecting
// blank or literal "None" names (meaning: no device attached).
func (s *Store) GetOrCreateHeartRateDevice(ctx context.Context, name string) (*int64, error) {
	if s.pool == nil {
		return nil, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	var id int64
	err := s.txFunc(ctx, func(tx pgx.Tx) error {
		got, err := s.getOrCreateHeartRateDeviceTx(ctx, tx, name)
		if got != nil {
			id = *got
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" || strings.EqualFold(strings.TrimSpace(name), "none") {
		return nil, nil
	}
	return &id, nil
}

func (s *Store) getOrCreateHeartRateDeviceTx(ctx context.Context, tx pgx.Tx, name string) (*int64, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return nil, nil
	}
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO heart_rate_devices (device_name, created_at)
		VALUES ($1, now())
		ON CONFLICT (device_name) DO UPDATE SET device_name = EXCLUDED.device_name
		RETURNING device_id`, trimmed).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("upserting heart rate device %q: %w", trimmed, err)
	}
	return &id, nil
}

// ensureSessionTx inserts the session row on first reference; it
// never overwrites an existing session's start time or configuration
// echo, but does keep updated_at current.
func (s *Store) ensureSessionTx(ctx context.Context, tx pgx.Tx, sess models.TrackingSession, userID int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO tracking_sessions (
			session_id, user_id, event_name, sport_type, comment, clothing,
			start_date_time, min_distance_meters, min_time_seconds,
			voice_announcement_interval, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (session_id) DO UPDATE SET updated_at = now()`,
		sess.SessionID, userID, sess.EventName, sess.SportType, sess.Comment, sess.Clothing,
		sess.StartDateTime, sess.MinDistanceMeters, sess.MinTimeSeconds, sess.VoiceAnnouncementInterval)
	if err != nil {
		return fmt.Errorf("ensuring session %s: %w", sess.SessionID, err)
	}
	return nil
}

// insertPointTx inserts one GPS tracking point and returns its id.
func (s *Store) insertPointTx(ctx context.Context, tx pgx.Tx, p models.GPSTrackingPoint) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO gps_tracking_points (
			session_id, latitude, longitude, altitude, horizontal_accuracy, vertical_accuracy,
			satellites_seen, satellites_used, current_speed, average_speed, max_speed,
			moving_average_speed, alternate_speed, alternate_speed_accuracy, distance,
			covered_distance, elevation_gain, slope_instant, slope_average, slope_max_uphill,
			slope_max_downhill, lap_number, heart_rate, heart_rate_device_id,
			weather_temperature, weather_wind_speed, weather_wind_direction, weather_humidity,
			weather_provider_time, weather_code, barometer_pressure, barometer_accuracy,
			barometer_altitude, barometer_sea_level, received_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, now()
		) RETURNING id`,
		p.SessionID, lat8(p.Latitude), lon8(p.Longitude), p.Altitude, p.HorizontalAccuracy, p.VerticalAccuracy,
		p.SatellitesSeen, p.SatellitesUsed, p.CurrentSpeed, p.AverageSpeed, p.MaxSpeed,
		p.MovingAverageSpeed, p.AlternateSpeed, p.AlternateSpeedAccuracy, dist4(p.Distance),
		p.CoveredDistance, p.ElevationGain, p.SlopeInstant, p.SlopeAverage, p.SlopeMaxUphill,
		p.SlopeMaxDownhill, p.LapNumber, p.HeartRate, p.HeartRateDeviceID,
		p.WeatherTemperature, p.WeatherWindSpeed, p.WeatherWindDirection, p.WeatherHumidity,
		p.WeatherProviderTime, p.WeatherCode, p.BarometerPressure, p.BarometerAccuracy,
		p.BarometerAltitude, p.BarometerSeaLevel, p.ReceivedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting point for session %s: %w", p.SessionID, err)
	}
	return id, nil
}

// insertLapTimesTx upserts lap rows, conflicting on (session_id,
// lap_number) to update start/end/distance — duration is derived,
// never stored.
func (s *Store) insertLapTimesTx(ctx context.Context, tx pgx.Tx, laps []models.LapTime) error {
	for _, l := range laps {
		_, err := tx.Exec(ctx, `
			INSERT INTO lap_times (session_id, user_id, lap_number, start_time, end_time, distance, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (session_id, lap_number) DO UPDATE SET
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				distance = EXCLUDED.distance`,
			l.SessionID, l.UserID, l.LapNumber, l.StartTime, l.EndTime, l.Distance)
		if err != nil {
			return fmt.Errorf("upserting lap %d for session %s: %w", l.LapNumber, l.SessionID, err)
		}
	}
	return nil
}
