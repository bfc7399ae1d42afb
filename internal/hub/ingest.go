package hub

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/frame"
	"github.com/netconsulting/geotracker/internal/metrics"
	"github.com/netconsulting/geotracker/internal/models"
	"github.com/netconsulting/geotracker/internal/store"
)

// isoLayout and formattedLayout are the timestamp layouts tried in the
// producer-timestamp preference order: ISO-8601 currentDateTime,
// custom formattedTimestamp, ISO startDateTime, else server now.
const (
	isoLayout           = "2006-01-02T15:04:05.000000"
	formattedLayout     = "02-01-2006 15:04:05"
)

// normalizeISOMicros pads or truncates the fractional-second part of
// an ISO-8601 timestamp to exactly 6 digits before parsing, matching
// historical producer versions that emit fewer or more digits.
func normalizeISOMicros(s string) string {
	dot := strings.LastIndex(s, ".")
	if dot == -1 {
		return s
	}
	frac := s[dot+1:]
	if len(frac) > 6 {
		frac = frac[:6]
	}
	for len(frac) < 6 {
		frac += "0"
	}
	return s[:dot+1] + frac
}

// parseProducerTimestamp follows the preference order named by the
// ingestion pipeline: ISO currentDateTime, then formattedTimestamp,
// then ISO startDateTime, then server now.
func parseProducerTimestamp(tf frame.TelemetryFrame) time.Time {
	if tf.CurrentDateTime != "" {
		if t, err := time.ParseInLocation(isoLayout, normalizeISOMicros(tf.CurrentDateTime), time.Local); err == nil {
			return t
		}
	}
	if tf.FormattedTimestamp != "" {
		if t, err := time.ParseInLocation(formattedLayout, tf.FormattedTimestamp, time.Local); err == nil {
			return t
		}
	}
	if tf.StartDateTime != "" {
		if t, err := time.ParseInLocation(isoLayout, normalizeISOMicros(tf.StartDateTime), time.Local); err == nil {
			return t
		}
	}
	return time.Now()
}

// ingest runs the ten-step pipeline against one decoded telemetry
// frame from connID.
func (h *Hub) ingest(ctx context.Context, connID string, raw []byte) {
	var tf frame.TelemetryFrame
	if err := decodeInto(raw, &tf); err != nil {
		h.logger.Warn("dropping malformed telemetry frame", zap.String("connId", connID), zap.Error(err))
		return
	}
	if !tf.RequiredFieldsPresent(raw) {
		h.logger.Warn("dropping telemetry frame missing required keys", zap.String("connId", connID), zap.String("sessionId", tf.SessionID))
		return
	}
	metrics.IngestFramesTotal.Inc()

	// Step 1: Coordinate Gate.
	if valid, reason := checkCoordinates(tf.Latitude, tf.Longitude); !valid {
		h.touch(tf.SessionID, time.Now())
		metrics.InvalidCoordinatesTotal.Inc()
		h.broadcastAll(frame.InvalidCoordinatesFrame{
			Type:      frame.TypeInvalidCoordinates,
			SessionID: tf.SessionID,
			Reason:    reason,
			OtherData: map[string]interface{}{
				"heartRate":    tf.HeartRate,
				"slope":        tf.SlopeInstant,
				"currentSpeed": tf.CurrentSpeed,
				"timestamp":    parseProducerTimestamp(tf).Format(PersistentTimestampFormat),
			},
		})
		return
	}

	// Step 2: Reset Detector (may rewrite session id).
	receivedAt := parseProducerTimestamp(tf)
	effectiveID, triggered := h.applyResetDetector(tf.SessionID, tf.Latitude, tf.Longitude, tf.Distance, receivedAt)
	if triggered {
		metrics.ResetsTotal.Inc()
	}

	// Step 3: Registry touch.
	newlyActive := h.touch(effectiveID, receivedAt)

	// Step 5: Build the broadcast shape.
	point := models.GPSTrackingPoint{
		SessionID:            effectiveID,
		Latitude:             tf.Latitude,
		Longitude:            tf.Longitude,
		Altitude:             tf.Altitude,
		HorizontalAccuracy:   tf.HorizontalAccuracy,
		VerticalAccuracy:     tf.VerticalAccuracy,
		SatellitesSeen:       tf.SatellitesSeen,
		SatellitesUsed:       tf.SatellitesUsed,
		CurrentSpeed:         tf.CurrentSpeed,
		AverageSpeed:         tf.AverageSpeed,
		MaxSpeed:             tf.MaxSpeed,
		MovingAverageSpeed:   tf.MovingAverageSpeed,
		AlternateSpeed:       tf.AlternateSpeed,
		AlternateSpeedAccuracy: tf.AlternateSpeedAccuracy,
		Distance:             tf.Distance,
		CoveredDistance:      tf.CoveredDistance,
		ElevationGain:        tf.ElevationGain,
		SlopeInstant:         tf.SlopeInstant,
		SlopeAverage:         tf.SlopeAverage,
		SlopeMaxUphill:       tf.SlopeMaxUphill,
		SlopeMaxDownhill:     tf.SlopeMaxDownhill,
		LapNumber:            tf.LapNumber,
		HeartRate:            tf.HeartRate,
		WeatherTemperature:   tf.WeatherTemperature,
		WeatherWindSpeed:     tf.WeatherWindSpeed,
		WeatherHumidity:      tf.WeatherHumidity,
		WeatherCode:          tf.WeatherCode,
		BarometerPressure:    tf.BarometerPressure,
		BarometerAccuracy:    tf.BarometerAccuracy,
		BarometerAltitude:    tf.BarometerAltitude,
		BarometerSeaLevel:    tf.BarometerSeaLevel,
		ReceivedAt:           receivedAt,
	}
	if tf.WindDirection != nil {
		wd := float64(*tf.WindDirection)
		point.WeatherWindDirection = &wd
	}

	var laps []models.LapTime
	if tf.LapNumber != nil && tf.LapStartTime != nil && tf.LapEndTime != nil {
		dist := 1.0
		if tf.LapDistance != nil {
			dist = *tf.LapDistance
		}
		laps = append(laps, models.LapTime{
			SessionID: effectiveID,
			LapNumber: *tf.LapNumber,
			StartTime: *tf.LapStartTime,
			EndTime:   *tf.LapEndTime,
			Distance:  dist,
		})
	}

	sess := models.TrackingSession{
		SessionID:                 effectiveID,
		EventName:                 tf.EventName,
		SportType:                 tf.SportType,
		Comment:                   tf.Comment,
		Clothing:                  tf.Clothing,
		StartDateTime:             receivedAt,
		MinDistanceMeters:         tf.MinDistanceMeters,
		MinTimeSeconds:            tf.MinTimeSeconds,
		VoiceAnnouncementInterval: tf.VoiceAnnouncementInterval,
	}

	userKey := store.UserKey{
		Firstname: tf.PersonName(),
		Lastname:  tf.Lastname,
		Birthdate: tf.Birthdate,
		Height:    tf.Height,
		Weight:    tf.Weight,
	}

	// Step 6: Store write, one transaction. Failure is logged and
	// never blocks in-memory state or broadcast — live visibility
	// outranks durability.
	if h.store.Available() {
		result, err := h.store.PersistFrame(ctx, userKey, sess, point, tf.DeviceName, laps)
		if err != nil {
			metrics.StoreFailuresTotal.Inc()
			h.logger.Warn("store failure on ingest, continuing with in-memory state only",
				zap.String("sessionId", effectiveID), zap.Error(err))
		} else {
			point.HeartRateDeviceID = result.DeviceID
		}
	}

	// Step 7: Append to history.
	bp := frame.BroadcastPoint{
		SessionID:          effectiveID,
		Firstname:          tf.PersonName(),
		Latitude:           tf.Latitude,
		Longitude:          tf.Longitude,
		Altitude:           tf.Altitude,
		CurrentSpeed:       tf.CurrentSpeed,
		AverageSpeed:       tf.AverageSpeed,
		MaxSpeed:           tf.MaxSpeed,
		MovingAverageSpeed: tf.MovingAverageSpeed,
		Distance:           tf.Distance,
		HeartRate:          tf.HeartRate,
		LapNumber:          tf.LapNumber,
		Timestamp:          receivedAt.Format(PersistentTimestampFormat),
	}
	h.history[effectiveID] = append(h.history[effectiveID], bp)

	// Step 8: Newly-active broadcast.
	if newlyActive {
		h.sweepActive()
		h.broadcastActiveUsers()
	}

	// Step 9: Broadcast update to everyone.
	updateFrame := frame.UpdateFrame{Type: frame.TypeUpdate, Point: bp}
	h.broadcastAll(updateFrame)
	if h.mirror != nil {
		h.mirror.Mirror(effectiveID, frame.TypeUpdate, updateFrame)
	}

	// Step 10: Broadcast followed_user_update, enriched with latest laps.
	if _, hasFollowers := h.followers[effectiveID]; hasFollowers {
		var lapWire []frame.LapTimeWire
		if h.store.Available() {
			latest, err := h.store.LatestLapTimes(ctx, effectiveID)
			if err != nil {
				h.logger.Warn("failed to load latest lap times for followed_user_update", zap.String("sessionId", effectiveID), zap.Error(err))
			} else {
				for _, l := range latest {
					lapWire = append(lapWire, frame.LapTimeWire{
						LapNumber: l.LapNumber, StartTime: l.StartTime, EndTime: l.EndTime,
						Duration: l.Duration(), Distance: l.Distance,
					})
				}
			}
		}
		followedFrame := frame.FollowedUserUpdateFrame{Type: frame.TypeFollowedUserUpdate, Point: bp, LapTimes: lapWire}
		h.broadcastToFollowers(effectiveID, followedFrame)
		if h.mirror != nil {
			h.mirror.Mirror(effectiveID, frame.TypeFollowedUserUpdate, followedFrame)
		}
	}
}

func (h *Hub) broadcastActiveUsers() {
	now := time.Now()
	if !h.lastActiveUsersBroadcast.IsZero() && now.Sub(h.lastActiveUsersBroadcast) < 30*time.Second {
		return
	}
	h.lastActiveUsersBroadcast = now
	h.sendActiveUsersToAll()
}

func (h *Hub) sendActiveUsersToAll() {
	users := make([]string, 0, len(h.active))
	for s := range h.active {
		users = append(users, s)
	}
	h.broadcastAll(frame.ActiveUsersFrame{Type: frame.TypeActiveUsers, Users: users})
}

func (h *Hub) sendActiveUsers(connID string) {
	users := make([]string, 0, len(h.active))
	for s := range h.active {
		users = append(users, s)
	}
	h.send(connID, frame.ActiveUsersFrame{Type: frame.TypeActiveUsers, Users: users})
}

func (h *Hub) handleFollowUsers(connID string, requested []string) {
	h.sweepActive()
	var accepted []string
	for _, id := range requested {
		if h.active[id] {
			accepted = append(accepted, id)
		}
	}
	h.setFollows(connID, accepted)
	h.send(connID, frame.FollowResponseFrame{Type: frame.TypeFollowResponse, Success: true, Following: accepted})

	for _, sessionID := range accepted {
		points := h.history[sessionID]
		if len(points) == 0 {
			continue
		}
		latest := points[len(points)-1]
		h.send(connID, frame.FollowedUserUpdateFrame{Type: frame.TypeFollowedUserUpdate, Point: latest})
	}
}

func (h *Hub) handleUnfollow(connID string) {
	h.clearFollows(connID)
	h.send(connID, frame.UnfollowResponseFrame{Type: frame.TypeUnfollowResponse, Success: true})
}

func (h *Hub) handleRequestSessions(connID string) {
	h.sweepActive()
	items := make([]frame.SessionListItem, 0, len(h.history))
	for sessionID := range h.history {
		items = append(items, frame.SessionListItem{SessionID: sessionID, IsActive: h.active[sessionID]})
	}
	h.send(connID, frame.SessionListFrame{Type: frame.TypeSessionList, Sessions: items})
}

func (h *Hub) handleDeleteSession(ctx context.Context, connID, sessionID string) {
	h.sweepActive()
	if h.active[sessionID] {
		h.send(connID, frame.DeleteResponseFrame{Type: frame.TypeDeleteResponse, SessionID: sessionID, Success: false, Reason: "session is active"})
		return
	}
	if h.store.Available() {
		if err := h.store.DeleteSession(ctx, sessionID); err != nil {
			h.send(connID, frame.DeleteResponseFrame{Type: frame.TypeDeleteResponse, SessionID: sessionID, Success: false, Reason: err.Error()})
			return
		}
	}
	ok, reason := h.markDeleted(sessionID)
	h.send(connID, frame.DeleteResponseFrame{Type: frame.TypeDeleteResponse, SessionID: sessionID, Success: ok, Reason: reason})
	if ok {
		h.broadcastAll(frame.SessionDeletedFrame{Type: frame.TypeSessionDeleted, SessionID: sessionID})
	}
}

func (h *Hub) handleRequestHistory(connID string) {
	h.sweepActive()
	const batchSize = 100
	for _, points := range h.history {
		for i := 0; i < len(points); i += batchSize {
			end := i + batchSize
			if end > len(points) {
				end = len(points)
			}
			h.send(connID, frame.HistoryBatchFrame{Type: frame.TypeHistoryBatch, Points: points[i:end]})
		}
	}
	items := make([]frame.SessionListItem, 0, len(h.history))
	for sessionID := range h.history {
		items = append(items, frame.SessionListItem{SessionID: sessionID, IsActive: h.active[sessionID]})
	}
	h.send(connID, frame.SessionListFrame{Type: frame.TypeSessionList, Sessions: items})
	h.send(connID, frame.HistoryCompleteFrame{Type: frame.TypeHistoryComplete})
}

func (h *Hub) handleCleanupMemory(_ context.Context, connID string) {
	changed := h.sweepHistory()
	h.send(connID, frame.CleanupResponseFrame{Type: frame.TypeCleanupResponse, Success: true, Message: "memory cleanup complete"})
	if changed {
		h.sendSessionListToAll()
	}
}

func (h *Hub) handleWeather(ctx context.Context, connID, sessionID string, summary bool) {
	if !h.store.Available() {
		h.send(connID, frame.ErrorFrame{Type: weatherResponseType(summary), Error: "store unavailable"})
		return
	}
	w, err := h.store.LatestWeather(ctx, sessionID)
	if err != nil {
		h.send(connID, frame.ErrorFrame{Type: weatherResponseType(summary), Error: err.Error()})
		return
	}
	h.send(connID, struct {
		Type          string   `json:"type"`
		SessionID     string   `json:"sessionId"`
		Temperature   *float64 `json:"temperature"`
		WindSpeed     *float64 `json:"windSpeed"`
		WindDirection *float64 `json:"windDirection"`
		Humidity      *float64 `json:"humidity"`
	}{weatherResponseType(summary), sessionID, w.Temperature, w.WindSpeed, w.WindDirection, w.Humidity})
}

func weatherResponseType(summary bool) string {
	if summary {
		return frame.TypeWeatherSummary
	}
	return frame.TypeWeatherData
}

func (h *Hub) handleBarometer(ctx context.Context, connID, sessionID string, summary bool) {
	if !h.store.Available() {
		h.send(connID, frame.ErrorFrame{Type: barometerResponseType(summary), Error: "store unavailable"})
		return
	}
	b, err := h.store.LatestBarometer(ctx, sessionID)
	if err != nil {
		h.send(connID, frame.ErrorFrame{Type: barometerResponseType(summary), Error: err.Error()})
		return
	}
	h.send(connID, struct {
		Type     string   `json:"type"`
		SessionID string  `json:"sessionId"`
		Pressure *float64 `json:"pressure"`
		SeaLevel *float64 `json:"seaLevelPressure"`
	}{barometerResponseType(summary), sessionID, b.Pressure, b.SeaLevelPressure})
}

func barometerResponseType(summary bool) string {
	if summary {
		return frame.TypeBarometerSummary
	}
	return frame.TypeBarometerData
}
