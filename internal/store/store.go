// Package store is the durable persistence layer: connection pool,
// schema bootstrap, and the parametrized reads/writes the ingestion
// pipeline and duplicate detector depend on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
	"github.com/netconsulting/geotracker/internal/models"
)

// Store wraps a bounded PostgreSQL connection pool with a circuit
// breaker around the transactional ingest write path, per the
// failure semantics in the external-interfaces contract: store
// failures on ingest are logged and never block in-memory state or
// broadcast.
type Store struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	cfg     config.DBConfig
}

// ErrDegraded is returned by Init when the pool could not be
// established; callers should continue in memory-only mode rather
// than abort startup.
var ErrDegraded = errors.New("store: degraded, operating without persistence")

// New builds a Store bound to cfg but does not yet connect. Call
// Init to establish the pool.
func New(cfg config.DBConfig, logger *zap.Logger) *Store {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store-ingest",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 8
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Store{breaker: breaker, logger: logger, cfg: cfg}
}

// Init establishes the pool and bootstraps the schema. On pool
// failure it returns ErrDegraded (wrapped) so the caller can choose
// to run without persistence rather than fail startup outright.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?connect_timeout=%d",
		s.cfg.Username, s.cfg.Password, s.cfg.Host, s.cfg.Port, s.cfg.Database,
		int(s.cfg.ConnectTimeout.Seconds()))

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("%w: parsing dsn: %v", ErrDegraded, err)
	}
	poolCfg.MinConns = s.cfg.MinConnections
	poolCfg.MaxConns = s.cfg.MaxConnections
	poolCfg.MaxConnLifetime = s.cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("%w: connecting: %v", ErrDegraded, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("%w: pinging: %v", ErrDegraded, err)
	}
	s.pool = pool

	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		s.pool = nil
		return fmt.Errorf("ensuring schema: %w", err)
	}
	s.logger.Info("store connected", zap.String("host", s.cfg.Host), zap.Int("port", s.cfg.Port))
	return nil
}

// Close releases the pool, if any.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Available reports whether the store has a live pool.
func (s *Store) Available() bool {
	return s.pool != nil
}

func (s *Store) statementCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.StatementTimeout)
}

// lat8/lon8/dist4 build the fixed-precision decimal parameters the
// schema's NUMERIC columns expect; see §9 of the requirements on
// decimal fidelity for latitude/longitude (8 places) and distance
// (4 places).
func lat8(v float64) string  { return decimal.NewFromFloat(v).StringFixed(8) }
func lon8(v float64) string  { return decimal.NewFromFloat(v).StringFixed(8) }
func dist4(v float64) string { return decimal.NewFromFloat(v).StringFixed(4) }

// withBreaker runs a transactional write through the circuit breaker
// so a flapping database doesn't spin-fail every ingest once it is
// already down; callers treat a breaker error the same as any other
// store failure on ingest (logged, non-fatal to the pipeline).
func (s *Store) withBreaker(fn func() (interface{}, error)) error {
	_, err := s.breaker.Execute(fn)
	return err
}

// txFunc runs fn inside a single transaction, committing on success
// and rolling back otherwise.
func (s *Store) txFunc(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IngestResult carries the ids resolved while persisting one frame,
// needed by the caller to build the broadcast shape and enriched
// follower update.
type IngestResult struct {
	UserID    int64
	DeviceID  *int64
	PointID   int64
}

// PersistFrame performs the single ingest transaction described in
// the ingestion pipeline: resolve user, ensure session, resolve
// device, insert point, upsert laps. Geocoding columns are not
// written here; only UpdateSessionGeocoding sets them. All of it runs
// through the circuit breaker as one unit; a failure here is logged
// by the caller and never blocks in-memory state or broadcast.
func (s *Store) PersistFrame(ctx context.Context, u UserKey, sess models.TrackingSession, point models.GPSTrackingPoint, deviceName string, laps []models.LapTime) (IngestResult, error) {
	if s.pool == nil {
		return IngestResult{}, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()

	var result IngestResult
	err := s.withBreaker(func() (interface{}, error) {
		return nil, s.txFunc(ctx, func(tx pgx.Tx) error {
			userID, err := s.getOrCreateUserTx(ctx, tx, u)
			if err != nil {
				return fmt.Errorf("get-or-create user: %w", err)
			}
			result.UserID = userID

			if err := s.ensureSessionTx(ctx, tx, sess, userID); err != nil {
				return fmt.Errorf("ensure session: %w", err)
			}

			var deviceID *int64
			if deviceName != "" {
				id, err := s.getOrCreateHeartRateDeviceTx(ctx, tx, deviceName)
				if err != nil {
					return fmt.Errorf("get-or-create device: %w", err)
				}
				deviceID = id
			}
			result.DeviceID = deviceID
			point.HeartRateDeviceID = deviceID

			pointID, err := s.insertPointTx(ctx, tx, point)
			if err != nil {
				return fmt.Errorf("insert point: %w", err)
			}
			result.PointID = pointID

			if len(laps) > 0 {
				for i := range laps {
					laps[i].UserID = userID
				}
				if err := s.insertLapTimesTx(ctx, tx, laps); err != nil {
					return fmt.Errorf("insert lap times: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

// DeleteSession removes a session; points and laps cascade.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if s.pool == nil {
		return ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM tracking_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// UpdateSessionGeocoding patches optional start/end address fields
// once resolved by an external geocoder.
func (s *Store) UpdateSessionGeocoding(ctx context.Context, sessionID, startCity, startCountry, startAddress, endCity, endCountry, endAddress string) error {
	if s.pool == nil {
		return ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		UPDATE tracking_sessions SET
			start_city = NULLIF($2, ''), start_country = NULLIF($3, ''), start_address = NULLIF($4, ''),
			end_city = NULLIF($5, ''), end_country = NULLIF($6, ''), end_address = NULLIF($7, ''),
			updated_at = now()
		WHERE session_id = $1`,
		sessionID, startCity, startCountry, startAddress, endCity, endCountry, endAddress)
	if err != nil {
		return fmt.Errorf("update geocoding for %s: %w", sessionID, err)
	}
	return nil
}

// HistoryPoint is one row of the flat stream LoadHistorySince
// returns; the caller reshapes it by session id into the broadcast
// wire shape.
type HistoryPoint struct {
	SessionID string
	Point     models.GPSTrackingPoint
	Firstname string
}

// LoadHistorySince returns every point, across every session, whose
// received_at is >= cutoff, ordered by session then by received_at.
func (s *Store) LoadHistorySince(ctx context.Context, cutoff time.Time) ([]HistoryPoint, error) {
	if s.pool == nil {
		return nil, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT p.session_id, u.firstname, p.latitude, p.longitude, p.current_speed,
		       p.average_speed, p.max_speed, p.moving_average_speed, p.distance,
		       p.heart_rate, p.lap_number, p.received_at
		FROM gps_tracking_points p
		JOIN tracking_sessions s ON s.session_id = p.session_id
		JOIN users u ON u.user_id = s.user_id
		WHERE p.received_at >= $1
		ORDER BY p.session_id, p.received_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load history since %s: %w", cutoff, err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var hp HistoryPoint
		var p models.GPSTrackingPoint
		if err := rows.Scan(&hp.SessionID, &hp.Firstname, &p.Latitude, &p.Longitude,
			&p.CurrentSpeed, &p.AverageSpeed, &p.MaxSpeed, &p.MovingAverageSpeed,
			&p.Distance, &p.HeartRate, &p.LapNumber, &p.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		p.SessionID = hp.SessionID
		hp.Point = p
		out = append(out, hp)
	}
	return out, rows.Err()
}

// SessionSummary is the result of QuerySummary: coarse statistics
// over a session's stored points (count, first/last received_at,
// maximum cumulative distance).
type SessionSummary struct {
	SessionID    string
	PointCount   int
	FirstSeen    time.Time
	LastSeen     time.Time
	TotalDistance float64
}

// QuerySummary aggregates a single session's stored points.
func (s *Store) QuerySummary(ctx context.Context, sessionID string) (SessionSummary, error) {
	if s.pool == nil {
		return SessionSummary{}, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	var sum SessionSummary
	sum.SessionID = sessionID
	row := s.pool.QueryRow(ctx, `
		SELECT count(*), min(received_at), max(received_at), coalesce(max(distance), 0)
		FROM gps_tracking_points WHERE session_id = $1`, sessionID)
	if err := row.Scan(&sum.PointCount, &sum.FirstSeen, &sum.LastSeen, &sum.TotalDistance); err != nil {
		return SessionSummary{}, fmt.Errorf("query summary for %s: %w", sessionID, err)
	}
	return sum, nil
}

// WeatherSample and BarometerSample answer get_weather/get_barometer.
type WeatherSample struct {
	Temperature   *float64
	WindSpeed     *float64
	WindDirection *float64
	Humidity      *float64
	ProviderTime  *time.Time
	Code          *int
}

type BarometerSample struct {
	Pressure          *float64
	PressureAccuracy  *float64
	AltitudeFromPressure *float64
	SeaLevelPressure  *float64
}

// LatestWeather returns the most recent weather sample for a session.
func (s *Store) LatestWeather(ctx context.Context, sessionID string) (WeatherSample, error) {
	if s.pool == nil {
		return WeatherSample{}, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	var w WeatherSample
	row := s.pool.QueryRow(ctx, `
		SELECT weather_temperature, weather_wind_speed, weather_wind_direction,
		       weather_humidity, weather_provider_time, weather_code
		FROM gps_tracking_points
		WHERE session_id = $1 AND weather_temperature IS NOT NULL
		ORDER BY received_at DESC LIMIT 1`, sessionID)
	if err := row.Scan(&w.Temperature, &w.WindSpeed, &w.WindDirection, &w.Humidity, &w.ProviderTime, &w.Code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WeatherSample{}, nil
		}
		return WeatherSample{}, fmt.Errorf("latest weather for %s: %w", sessionID, err)
	}
	return w, nil
}

// LatestBarometer returns the most recent barometer sample for a
// session.
func (s *Store) LatestBarometer(ctx context.Context, sessionID string) (BarometerSample, error) {
	if s.pool == nil {
		return BarometerSample{}, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	var b BarometerSample
	row := s.pool.QueryRow(ctx, `
		SELECT barometer_pressure, barometer_accuracy, barometer_altitude, barometer_sea_level
		FROM gps_tracking_points
		WHERE session_id = $1 AND barometer_pressure IS NOT NULL
		ORDER BY received_at DESC LIMIT 1`, sessionID)
	if err := row.Scan(&b.Pressure, &b.PressureAccuracy, &b.AltitudeFromPressure, &b.SeaLevelPressure); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BarometerSample{}, nil
		}
		return BarometerSample{}, fmt.Errorf("latest barometer for %s: %w", sessionID, err)
	}
	return b, nil
}

// LatestLapTimes returns every lap time recorded for a session,
// ordered by lap number, used to enrich followed_user_update frames.
func (s *Store) LatestLapTimes(ctx context.Context, sessionID string) ([]models.LapTime, error) {
	if s.pool == nil {
		return nil, ErrDegraded
	}
	ctx, cancel := s.statementCtx(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT lap_number, start_time, end_time, distance
		FROM lap_times WHERE session_id = $1 ORDER BY lap_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("latest lap times for %s: %w", sessionID, err)
	}
	defer rows.Close()
	var out []models.LapTime
	for rows.Next() {
		var l models.LapTime
		l.SessionID = sessionID
		if err := rows.Scan(&l.LapNumber, &l.StartTime, &l.EndTime, &l.Distance); err != nil {
			return nil, fmt.Errorf("scan lap time: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
