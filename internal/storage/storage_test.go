package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-tracking/internal/models"
)

func TestMemoryStoreRideRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetRide("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveRide(&models.Ride{ID: "r1", Status: models.StatusPending}))
	r, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status)

	// mutating the returned copy must not leak into the store
	r.Status = models.StatusActive
	again, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestUpdateRideTrackingTouchesOnlyAccrualFields(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveRide(&models.Ride{ID: "r1", Status: models.StatusActive, Paid: false}))

	require.NoError(t, s.UpdateRideTracking("r1", 277.5, 1.5, models.Coord{Lat: 45.01, Lon: 19.0}))

	r, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.Equal(t, 277.5, r.TotalCost)
	assert.Equal(t, 1.5, r.DistanceTraveled)
	require.NotNil(t, r.TrackedLat)
	assert.Equal(t, 45.01, *r.TrackedLat)
	assert.Equal(t, models.StatusActive, r.Status)

	assert.ErrorIs(t, s.UpdateRideTracking("nope", 0, 0, models.Coord{}), ErrNotFound)
}

func TestUpdateRideTrackingNoOpsOnTerminalRide(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	require.NoError(t, s.SaveRide(&models.Ride{
		ID: "r1", Status: models.StatusFinished, Paid: true, EndedAt: &now, TotalCost: 300,
	}))

	require.NoError(t, s.UpdateRideTracking("r1", 999, 9.9, models.Coord{Lat: 1, Lon: 1}))

	r, err := s.GetRide("r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, r.Status)
	assert.True(t, r.Paid)
	require.NotNil(t, r.EndedAt)
	assert.Equal(t, 300.0, r.TotalCost)
	assert.Nil(t, r.TrackedLat)
}

func TestMovingRidesFiltersByStatus(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveRide(&models.Ride{ID: "r1", Status: models.StatusActive}))
	require.NoError(t, s.SaveRide(&models.Ride{ID: "r2", Status: models.StatusAccepted}))
	require.NoError(t, s.SaveRide(&models.Ride{ID: "r3", Status: models.StatusFinished}))

	moving, err := s.MovingRides()
	require.NoError(t, err)
	require.Len(t, moving, 1)
	assert.Equal(t, "r1", moving[0].ID)
}

func TestBindingRideForDriver(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveRide(&models.Ride{ID: "r1", DriverID: "d1", Status: models.StatusAccepted}))
	require.NoError(t, s.SaveRide(&models.Ride{ID: "r2", DriverID: "d2", Status: models.StatusFinished}))

	r, err := s.BindingRideForDriver("d1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)

	_, err = s.BindingRideForDriver("d2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVehicleOccupancyAndLocation(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveVehicle(&models.Vehicle{ID: "v1", DriverID: "d1", Occupancy: models.OccupancyFree}))

	require.NoError(t, s.SetOccupancy("v1", models.OccupancyBusy))
	require.NoError(t, s.UpdateVehicleLocation("v1", models.Coord{Lat: 45.25, Lon: 19.8}))

	v, err := s.GetVehicle("v1")
	require.NoError(t, err)
	assert.Equal(t, models.OccupancyBusy, v.Occupancy)
	assert.Equal(t, models.Coord{Lat: 45.25, Lon: 19.8}, v.Location)

	byDriver, err := s.VehicleByDriver("d1")
	require.NoError(t, err)
	assert.Equal(t, "v1", byDriver.ID)

	assert.ErrorIs(t, s.SetOccupancy("nope", models.OccupancyFree), ErrNotFound)
	assert.ErrorIs(t, s.UpdateVehicleLocation("nope", models.Coord{}), ErrNotFound)
}

func TestActiveVehiclesRequiresActiveDriver(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveDriver(&models.Driver{ID: "d1", Active: true}))
	require.NoError(t, s.SaveDriver(&models.Driver{ID: "d2", Active: false}))
	require.NoError(t, s.SaveVehicle(&models.Vehicle{ID: "v1", DriverID: "d1"}))
	require.NoError(t, s.SaveVehicle(&models.Vehicle{ID: "v2", DriverID: "d2"}))

	active, err := s.ActiveVehicles()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "v1", active[0].ID)
}

func TestIncidentsAreRecorded(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.SaveIncident(&models.Incident{ID: "i1", RideID: "r1", Reason: "panic button"}))
	incidents := s.Incidents()
	require.Len(t, incidents, 1)
	assert.Equal(t, "r1", incidents[0].RideID)
}
