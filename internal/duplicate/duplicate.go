// Package duplicate implements the bulk-upload duplicate detector:
// given a candidate list of points, decide whether a previously
// ingested session already covers the same activity.
package duplicate

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/netconsulting/geotracker/internal/config"
	"github.com/netconsulting/geotracker/internal/metrics"
	"github.com/netconsulting/geotracker/internal/store"
)

// CandidatePoint is one point of a bulk-upload candidate.
type CandidatePoint struct {
	ReceivedAt time.Time
	Latitude   float64
	Longitude  float64
}

// Result reports the outcome of a duplicate check.
type Result struct {
	IsDuplicate        bool
	ExistingSessionID  string
}

// ErrTooFewPoints is returned when the candidate has fewer than 3
// points — first/middle/last sampling requires distinctness.
var ErrTooFewPoints = fmt.Errorf("duplicate: candidate has fewer than 3 points, refusing to run")

// ErrNoParsableTimestamps is returned when none of the candidate's
// points carry a parsable timestamp.
var ErrNoParsableTimestamps = fmt.Errorf("duplicate: no parsable timestamps in candidate")

// Detector compares bulk-upload candidates against existing sessions.
type Detector struct {
	store  *store.Store
	cfg    config.DuplicateConfig
	logger *zap.Logger
}

// New builds a Detector bound to the given store and configuration.
func New(st *store.Store, cfg config.DuplicateConfig, logger *zap.Logger) *Detector {
	return &Detector{store: st, cfg: cfg, logger: logger}
}

// Check runs the seven-step algorithm: parse candidate extent, fetch
// sessions within the search window with at least one stored point,
// sample first/middle/last points of each, and compare temporal and
// spatial tolerances. The first candidate passing both checks is
// reported; the caller refuses the upload.
func (d *Detector) Check(ctx context.Context, userID int64, points []CandidatePoint) (Result, error) {
	if !d.cfg.Enabled {
		return Result{}, nil
	}
	if len(points) < 3 {
		return Result{}, ErrTooFewPoints
	}

	candStart := points[0].ReceivedAt
	candEnd := points[0].ReceivedAt
	for _, p := range points {
		if p.ReceivedAt.IsZero() {
			continue
		}
		if p.ReceivedAt.Before(candStart) || candStart.IsZero() {
			candStart = p.ReceivedAt
		}
		if p.ReceivedAt.After(candEnd) {
			candEnd = p.ReceivedAt
		}
	}
	if candStart.IsZero() {
		return Result{}, ErrNoParsableTimestamps
	}
	candDur := candEnd.Sub(candStart)

	windowStart := candStart.Add(-time.Duration(d.cfg.SearchWindowDays) * 24 * time.Hour)
	windowEnd := candStart.Add(time.Duration(d.cfg.SearchWindowDays) * 24 * time.Hour)

	candidates, err := d.store.QueryDuplicateCandidates(ctx, userID, windowStart, windowEnd)
	if err != nil {
		return Result{}, fmt.Errorf("querying duplicate candidates: %w", err)
	}

	candFirst := points[0]
	candMiddle := points[len(points)/2]
	candLast := points[len(points)-1]

	timeTol := time.Duration(d.cfg.TimeToleranceSeconds) * time.Second

	for _, cand := range candidates {
		sampled, err := d.store.SampleSessionPoints(ctx, cand.SessionID, cand.PointCount)
		if err != nil {
			d.logger.Warn("skipping duplicate candidate without 3 sampleable points",
				zap.String("sessionId", cand.SessionID), zap.Error(err))
			continue
		}

		existingDur := sampled.Last.ReceivedAt.Sub(sampled.First.ReceivedAt)
		if absDuration(candStart.Sub(sampled.First.ReceivedAt)) > timeTol {
			continue
		}
		if absDuration(candEnd.Sub(sampled.Last.ReceivedAt)) > timeTol {
			continue
		}
		if absDuration(candDur-existingDur) > timeTol {
			continue
		}

		if !withinCoordTolerance(candFirst.Latitude, candFirst.Longitude, sampled.First.Latitude, sampled.First.Longitude, d.cfg.CoordinateTolerance) {
			continue
		}
		if !withinCoordTolerance(candMiddle.Latitude, candMiddle.Longitude, sampled.Middle.Latitude, sampled.Middle.Longitude, d.cfg.CoordinateTolerance) {
			continue
		}
		if !withinCoordTolerance(candLast.Latitude, candLast.Longitude, sampled.Last.Latitude, sampled.Last.Longitude, d.cfg.CoordinateTolerance) {
			continue
		}

		metrics.DuplicateRefusalsTotal.Inc()
		return Result{IsDuplicate: true, ExistingSessionID: cand.SessionID}, nil
	}

	return Result{}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// coordEpsilon absorbs float64 rounding in the subtraction so that a
// difference of exactly the tolerance (in decimal degrees) still counts
// as within it.
const coordEpsilon = 1e-9

func withinCoordTolerance(lat1, lon1, lat2, lon2, tolerance float64) bool {
	return math.Abs(lat1-lat2) <= tolerance+coordEpsilon && math.Abs(lon1-lon2) <= tolerance+coordEpsilon
}
