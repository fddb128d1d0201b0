// Package tracking recomputes distance and cost for moving rides on a
// fixed cadence from the live vehicle feed.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ride-tracking/internal/fares"
	"github.com/example/ride-tracking/internal/geo"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
	"github.com/example/ride-tracking/internal/storage"
)

// Tracker is a scheduled task. One invocation processes every moving ride
// once; the scheduler guarantees invocations of the same tracker do not
// overlap, so per-ride cursor updates never race with themselves.
type Tracker struct {
	Rides    storage.RideStore
	Vehicles storage.VehicleStore
	Log      *slog.Logger

	// MinMoveMeters filters GPS noise; MaxMoveMeters caps a single-tick
	// delta so one bad fix cannot inflate the fare.
	MinMoveMeters float64
	MaxMoveMeters float64
}

func New(rides storage.RideStore, vehicles storage.VehicleStore, log *slog.Logger) *Tracker {
	return &Tracker{
		Rides:         rides,
		Vehicles:      vehicles,
		Log:           log,
		MinMoveMeters: 1,
		MaxMoveMeters: 2000,
	}
}

func (t *Tracker) Name() string { return "fare-tracker" }

// Run executes one tick. Per-ride failures are logged and skipped; one bad
// ride never aborts the batch.
func (t *Tracker) Run(ctx context.Context) {
	observability.TrackerTicksTotal.Inc()
	rides, err := t.Rides.MovingRides()
	if err != nil {
		t.Log.Error("tracker ride query failed", "error", err)
		return
	}
	for _, r := range rides {
		if ctx.Err() != nil {
			return
		}
		if err := t.tickRide(r); err != nil {
			observability.TrackerRideErrors.Inc()
			t.Log.Error("tracker ride tick failed", "ride_id", r.ID, "error", err)
		}
	}
}

func (t *Tracker) tickRide(r *models.Ride) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tick panicked: %v", rec)
		}
	}()

	// A terminal write must stop the tracker on its very next tick, even
	// if the ride was captured by this batch's query.
	if !r.Status.Moving() {
		return nil
	}
	if r.DriverID == "" {
		return nil
	}
	v, err := t.Vehicles.VehicleByDriver(r.DriverID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// vehicle feed has not reported yet; not an error
			return nil
		}
		return err
	}

	if r.TrackedLat == nil || r.TrackedLon == nil {
		return t.seed(r, v)
	}

	cursor := models.Coord{Lat: *r.TrackedLat, Lon: *r.TrackedLon}
	delta := geo.Distance(cursor, v.Location)

	switch {
	case delta < t.MinMoveMeters:
		// jitter, not movement
		return nil
	case delta > t.MaxMoveMeters:
		// GPS jump: move the cursor so the error does not compound, but
		// charge nothing for it.
		observability.TrackerGPSJumps.Inc()
		return t.Rides.UpdateRideTracking(r.ID, r.TotalCost, r.DistanceTraveled, v.Location)
	}

	km := fares.RoundKm(r.DistanceTraveled + delta/1000)
	cost := fares.Cost(r.Category, km)
	if err := t.Rides.UpdateRideTracking(r.ID, cost, km, v.Location); err != nil {
		return err
	}
	observability.TrackerMetersAccrued.Add(delta)
	return nil
}

// seed initializes the cursor on a ride's first moving tick. The ride does
// not advance in the seeding tick.
func (t *Tracker) seed(r *models.Ride, v *models.Vehicle) error {
	start := r.Start
	if start.Lat == 0 && start.Lon == 0 {
		start = v.Location
	}
	return t.Rides.UpdateRideTracking(r.ID, fares.Cost(r.Category, 0), 0, start)
}
