package rides

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/storage"
)

type recordingNotifier struct{ events []models.RideStatus }

func (n *recordingNotifier) RideChanged(r *models.Ride) { n.events = append(n.events, r.Status) }

type recordingPatrol struct{ discarded []string }

func (p *recordingPatrol) Discard(vehicleID string) { p.discarded = append(p.discarded, vehicleID) }

func newFixture(t *testing.T) (*Service, *storage.MemoryStore, *recordingPatrol) {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveDriver(&models.Driver{ID: "d1", Active: true}))
	require.NoError(t, store.SaveVehicle(&models.Vehicle{
		ID: "v1", DriverID: "d1", Category: models.CategoryStandard,
		Location: models.Coord{Lat: 45.25, Lon: 19.8}, Occupancy: models.OccupancyFree,
	}))
	svc := NewService(store, slog.Default())
	patrol := &recordingPatrol{}
	svc.Patrol = patrol
	return svc, store, patrol
}

func createRide(t *testing.T, svc *Service) *models.Ride {
	t.Helper()
	r, err := svc.Create(context.Background(), CreateCommand{
		PassengerID: "p1",
		Category:    models.CategoryStandard,
		Start:       models.Coord{Lat: 45.0, Lon: 19.0},
		End:         models.Coord{Lat: 45.05, Lon: 19.05},
	})
	require.NoError(t, err)
	return r
}

func TestCreateRequiresAuthenticatedPassenger(t *testing.T) {
	svc, _, _ := newFixture(t)
	_, err := svc.Create(context.Background(), CreateCommand{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateProducesPendingRideWithEstimate(t *testing.T) {
	svc, _, _ := newFixture(t)
	r := createRide(t, svc)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Nil(t, r.StartedAt)
	assert.Greater(t, r.EstimatedCost, 0.0)
	assert.Contains(t, r.Passengers, "p1")
}

func TestHappyPathLifecycle(t *testing.T) {
	svc, store, patrol := newFixture(t)
	notifier := &recordingNotifier{}
	svc.Notify = notifier

	r := createRide(t, svc)

	r, err := svc.Accept(context.Background(), r.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, r.Status)
	assert.Equal(t, "d1", r.DriverID)
	assert.Equal(t, []string{"v1"}, patrol.discarded)
	v, err := store.GetVehicle("v1")
	require.NoError(t, err)
	assert.Equal(t, models.OccupancyBusy, v.Occupancy)

	r, err = svc.Start(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, r.Status)
	assert.NotNil(t, r.StartedAt)

	r, err = svc.End(context.Background(), r.ID, EndConfirmation{Paid: true, PassengersExited: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, r.Status)
	assert.NotNil(t, r.EndedAt)
	assert.True(t, r.Paid)
	assert.True(t, r.PassengersExited)

	v, err = store.GetVehicle("v1")
	require.NoError(t, err)
	assert.Equal(t, models.OccupancyFree, v.Occupancy)

	assert.Equal(t, []models.RideStatus{
		models.StatusPending, models.StatusAccepted, models.StatusActive, models.StatusFinished,
	}, notifier.events)
}

func TestScheduledRideAcceptableOnceDue(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()
	due := time.Now().Add(time.Hour)
	r, err := svc.Create(ctx, CreateCommand{
		PassengerID: "p1",
		Start:       models.Coord{Lat: 45.0, Lon: 19.0},
		End:         models.Coord{Lat: 45.05, Lon: 19.05},
		ScheduledAt: &due,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusScheduled, r.Status)

	_, err = svc.Accept(ctx, r.ID, "d1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// pull the due time into the past and retry
	past := time.Now().Add(-time.Minute)
	r.ScheduledAt = &past
	require.NoError(t, store.UpdateRide(r))

	r, err = svc.Accept(ctx, r.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, r.Status)
	assert.Equal(t, "d1", r.DriverID)
}

func TestIllegalTransitionsAreRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	r := createRide(t, svc)

	_, err := svc.Start(ctx, r.ID) // pending, not accepted
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.End(ctx, r.ID, EndConfirmation{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Accept(ctx, r.ID, "d1")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, r.ID, "d1") // already accepted
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalRidesAreImmutable(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	r := createRide(t, svc)
	_, err := svc.Cancel(ctx, r.ID, "passenger", "changed my mind")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, r.ID, "passenger", "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Panic(ctx, r.ID, "p1", "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRecordsActorSpecificStatus(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	r1 := createRide(t, svc)
	got, err := svc.Cancel(ctx, r1.ID, "driver", "no show")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelledByDriver, got.Status)
	assert.Equal(t, "no show", got.Reason)

	r2 := createRide(t, svc)
	got, err = svc.Cancel(ctx, r2.ID, "passenger", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelledByPassenger, got.Status)
}

func TestPanicIsLegalFromAnyNonTerminalState(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()
	r := createRide(t, svc)
	_, err := svc.Accept(ctx, r.ID, "d1")
	require.NoError(t, err)
	_, err = svc.Start(ctx, r.ID)
	require.NoError(t, err)

	got, err := svc.Panic(ctx, r.ID, "p1", "driver unresponsive")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPanic, got.Status)
	assert.True(t, got.PanicFlag)
	assert.NotNil(t, got.EndedAt)

	incidents := store.Incidents()
	require.Len(t, incidents, 1)
	assert.Equal(t, r.ID, incidents[0].RideID)
	assert.Equal(t, "p1", incidents[0].ReporterID)
	assert.Equal(t, "driver unresponsive", incidents[0].Reason)
}

func TestDeferredDeactivationOnEnd(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()
	r := createRide(t, svc)
	_, err := svc.Accept(ctx, r.ID, "d1")
	require.NoError(t, err)
	_, err = svc.Start(ctx, r.ID)
	require.NoError(t, err)

	// driver asks to go offline mid-ride: request is deferred
	require.NoError(t, svc.RequestInactive("d1"))
	d, err := store.GetDriver("d1")
	require.NoError(t, err)
	assert.True(t, d.Active)
	assert.True(t, d.InactiveRequested)

	_, err = svc.End(ctx, r.ID, EndConfirmation{})
	require.NoError(t, err)

	d, err = store.GetDriver("d1")
	require.NoError(t, err)
	assert.False(t, d.Active)
	assert.False(t, d.InactiveRequested)
}

func TestEndWithoutPendingOfflineLeavesDriverActive(t *testing.T) {
	svc, store, _ := newFixture(t)
	ctx := context.Background()
	r := createRide(t, svc)
	_, err := svc.Accept(ctx, r.ID, "d1")
	require.NoError(t, err)
	_, err = svc.Start(ctx, r.ID)
	require.NoError(t, err)
	_, err = svc.End(ctx, r.ID, EndConfirmation{})
	require.NoError(t, err)

	d, err := store.GetDriver("d1")
	require.NoError(t, err)
	assert.True(t, d.Active)
	assert.False(t, d.InactiveRequested)
}

func TestRequestInactiveWithoutBoundRideIsImmediate(t *testing.T) {
	svc, store, _ := newFixture(t)
	require.NoError(t, svc.RequestInactive("d1"))
	d, err := store.GetDriver("d1")
	require.NoError(t, err)
	assert.False(t, d.Active)
	assert.False(t, d.InactiveRequested)
}

func TestDeferredDeactivationOnCancelAndPanic(t *testing.T) {
	for _, terminate := range []struct {
		name string
		do   func(svc *Service, rideID string) error
	}{
		{"cancel", func(svc *Service, rideID string) error {
			_, err := svc.Cancel(context.Background(), rideID, "driver", "x")
			return err
		}},
		{"panic", func(svc *Service, rideID string) error {
			_, err := svc.Panic(context.Background(), rideID, "p1", "x")
			return err
		}},
	} {
		t.Run(terminate.name, func(t *testing.T) {
			svc, store, _ := newFixture(t)
			r := createRide(t, svc)
			_, err := svc.Accept(context.Background(), r.ID, "d1")
			require.NoError(t, err)
			require.NoError(t, svc.RequestInactive("d1"))

			require.NoError(t, terminate.do(svc, r.ID))

			d, err := store.GetDriver("d1")
			require.NoError(t, err)
			assert.False(t, d.Active)
			assert.False(t, d.InactiveRequested)
		})
	}
}

func TestRejectOnlyFromEarlyStates(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	r := createRide(t, svc)
	_, err := svc.Accept(ctx, r.ID, "d1")
	require.NoError(t, err)
	_, err = svc.Start(ctx, r.ID)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, r.ID, "nope")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	r2 := createRide(t, svc)
	got, err := svc.Reject(ctx, r2.ID, "too far")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
}

func TestGetUnknownRide(t *testing.T) {
	svc, _, _ := newFixture(t)
	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
