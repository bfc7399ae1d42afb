package store

import (
	"context"
	"fmt"
	"time"
)

// EnsureSchema creates every table and index the schema contract
// requires, if absent. It never performs a destructive migration.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGSERIAL PRIMARY KEY,
			firstname TEXT NOT NULL,
			lastname TEXT NOT NULL DEFAULT '',
			birthdate TEXT NOT NULL DEFAULT '',
			height DOUBLE PRECISION,
			weight DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (firstname, lastname, birthdate)
		)`,
		`CREATE TABLE IF NOT EXISTS heart_rate_devices (
			device_id BIGSERIAL PRIMARY KEY,
			device_name TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tracking_sessions (
			session_id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			event_name TEXT NOT NULL DEFAULT '',
			sport_type TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			clothing TEXT NOT NULL DEFAULT '',
			start_date_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			min_distance_meters DOUBLE PRECISION,
			min_time_seconds INTEGER,
			voice_announcement_interval INTEGER,
			start_city TEXT,
			start_country TEXT,
			start_address TEXT,
			end_city TEXT,
			end_country TEXT,
			end_address TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS gps_tracking_points (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
			latitude NUMERIC(10,8) NOT NULL,
			longitude NUMERIC(11,8) NOT NULL,
			altitude DOUBLE PRECISION,
			horizontal_accuracy DOUBLE PRECISION,
			vertical_accuracy DOUBLE PRECISION,
			satellites_seen INTEGER,
			satellites_used INTEGER,
			current_speed DOUBLE PRECISION NOT NULL,
			average_speed DOUBLE PRECISION NOT NULL,
			max_speed DOUBLE PRECISION NOT NULL,
			moving_average_speed DOUBLE PRECISION NOT NULL,
			alternate_speed DOUBLE PRECISION,
			alternate_speed_accuracy DOUBLE PRECISION,
			distance NUMERIC(12,4) NOT NULL,
			covered_distance DOUBLE PRECISION,
			elevation_gain DOUBLE PRECISION,
			slope_instant DOUBLE PRECISION,
			slope_average DOUBLE PRECISION,
			slope_max_uphill DOUBLE PRECISION,
			slope_max_downhill DOUBLE PRECISION,
			lap_number INTEGER,
			heart_rate INTEGER,
			heart_rate_device_id BIGINT REFERENCES heart_rate_devices(device_id),
			weather_temperature DOUBLE PRECISION,
			weather_wind_speed DOUBLE PRECISION,
			weather_wind_direction DOUBLE PRECISION,
			weather_humidity DOUBLE PRECISION,
			weather_provider_time TIMESTAMPTZ,
			weather_code INTEGER,
			barometer_pressure DOUBLE PRECISION,
			barometer_accuracy DOUBLE PRECISION,
			barometer_altitude DOUBLE PRECISION,
			barometer_sea_level DOUBLE PRECISION,
			received_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_session ON gps_tracking_points (session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_points_received_at ON gps_tracking_points (received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_points_location ON gps_tracking_points (latitude, longitude)`,
		`CREATE INDEX IF NOT EXISTS idx_points_weather ON gps_tracking_points (session_id, received_at) WHERE weather_temperature IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_points_barometer ON gps_tracking_points (session_id, received_at) WHERE barometer_pressure IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS lap_times (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			lap_number INTEGER NOT NULL,
			start_time BIGINT NOT NULL,
			end_time BIGINT NOT NULL,
			distance DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (session_id, lap_number)
		)`,
		`CREATE TABLE IF NOT EXISTS waypoints (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
			name TEXT NOT NULL DEFAULT '',
			latitude NUMERIC(10,8) NOT NULL,
			longitude NUMERIC(11,8) NOT NULL,
			elevation DOUBLE PRECISION,
			producer_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS planned_events (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			event_name TEXT NOT NULL DEFAULT '',
			sport_type TEXT NOT NULL DEFAULT '',
			event_date TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS session_media (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES tracking_sessions(session_id) ON DELETE CASCADE,
			media_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.execBootstrap(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) execBootstrap(ctx context.Context, stmt string) (struct{}, error) {
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return struct{}{}, fmt.Errorf("schema bootstrap statement failed: %w\n%s", err, stmt)
	}
	return struct{}{}, nil
}

// DuplicateCandidate is one session within the search window that the
// duplicate detector samples.
type DuplicateCandidate struct {
	SessionID     string
	StartDateTime time.Time
	PointCount    int
}

// QueryDuplicateCandidates fetches sessions for this user whose
// start_date_time lies within windowStart..windowEnd and that have at
// least one stored point.
func (s *Store) QueryDuplicateCandidates(ctx context.Context, userID int64, windowStart, windowEnd time.Time) ([]DuplicateCandidate, error) {
	if s.pool == nil {
		return nil, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT s.session_id, s.start_date_time, count(p.id)
		FROM tracking_sessions s
		JOIN gps_tracking_points p ON p.session_id = s.session_id
		WHERE s.user_id = $1 AND s.start_date_time BETWEEN $2 AND $3
		GROUP BY s.session_id, s.start_date_time
		HAVING count(p.id) >= 1
		ORDER BY s.start_date_time ASC`, userID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidates: %w", err)
	}
	defer rows.Close()
	var out []DuplicateCandidate
	for rows.Next() {
		var c DuplicateCandidate
		if err := rows.Scan(&c.SessionID, &c.StartDateTime, &c.PointCount); err != nil {
			return nil, fmt.Errorf("scan duplicate candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SampledPoints is the exactly-three-point (first, middle, last)
// sample the duplicate detector compares a candidate against.
type SampledPoints struct {
	First, Middle, Last Sample
}

// Sample is one sampled point's timestamp and coordinates.
type Sample struct {
	ReceivedAt time.Time
	Latitude   float64
	Longitude  float64
}

// SampleSessionPoints fetches the first, middle (by row number), and
// last point of a session ordered by received_at.
func (s *Store) SampleSessionPoints(ctx context.Context, sessionID string, pointCount int) (SampledPoints, error) {
	if s.pool == nil {
		return SampledPoints{}, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()

	middleOffset := pointCount / 2
	rows, err := s.pool.Query(ctx, `
		WITH ordered AS (
			SELECT received_at, latitude, longitude,
			       row_number() OVER (ORDER BY received_at ASC) AS rn
			FROM gps_tracking_points WHERE session_id = $1
		)
		SELECT received_at, latitude, longitude FROM ordered
		WHERE rn = 1 OR rn = $2 OR rn = $3
		ORDER BY rn ASC`, sessionID, middleOffset+1, pointCount)
	if err != nil {
		return SampledPoints{}, fmt.Errorf("sampling points for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.ReceivedAt, &sm.Latitude, &sm.Longitude); err != nil {
			return SampledPoints{}, fmt.Errorf("scan sample for %s: %w", sessionID, err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return SampledPoints{}, err
	}
	if len(samples) < 3 {
		return SampledPoints{}, fmt.Errorf("session %s has fewer than 3 sampleable points", sessionID)
	}
	return SampledPoints{First: samples[0], Middle: samples[1], Last: samples[2]}, nil
}
