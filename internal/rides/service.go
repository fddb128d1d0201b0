// Package rides owns the ride lifecycle state machine and the driver
// availability coupling around it.
package rides

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-tracking/internal/fares"
	"github.com/example/ride-tracking/internal/geo"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
	"github.com/example/ride-tracking/internal/storage"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("ride not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

// Notifier fans ride updates out to connected clients; best-effort.
type Notifier interface {
	RideChanged(r *models.Ride)
}

// Charger settles the fare when a ride ends with payment confirmed.
type Charger interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
}

// PatrolResetter discards a vehicle's simulated route when the vehicle is
// claimed by a ride.
type PatrolResetter interface {
	Discard(vehicleID string)
}

type Service struct {
	Store    storage.Store
	Notify   Notifier       // optional
	Payments Charger        // optional
	Patrol   PatrolResetter // optional
	Currency string
	Log      *slog.Logger
}

func NewService(store storage.Store, log *slog.Logger) *Service {
	return &Service{Store: store, Currency: "rsd", Log: log}
}

type CreateCommand struct {
	PassengerID string
	Passengers  []string
	Invited     []string
	Category    models.VehicleCategory
	BabySeat    bool
	PetFriendly bool
	Start       models.Coord
	End         models.Coord
	Stops       []models.Coord
	ScheduledAt *time.Time
}

// EndConfirmation carries the driver's completion flags.
type EndConfirmation struct {
	Paid             bool
	PassengersExited bool
}

// Create produces a pending ride with an upfront estimate. The caller
// identity must already be resolved; an empty passenger is rejected as
// unauthenticated, not as a validation error.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Ride, error) {
	if cmd.PassengerID == "" {
		return nil, ErrUnauthenticated
	}
	if cmd.Category == "" {
		cmd.Category = models.CategoryStandard
	}
	now := time.Now()
	r := &models.Ride{
		ID:            uuid.NewString(),
		Status:        models.StatusPending,
		PassengerID:   cmd.PassengerID,
		Passengers:    append([]string{cmd.PassengerID}, cmd.Passengers...),
		Invited:       cmd.Invited,
		Category:      cmd.Category,
		BabySeat:      cmd.BabySeat,
		PetFriendly:   cmd.PetFriendly,
		Start:         cmd.Start,
		End:           cmd.End,
		Stops:         cmd.Stops,
		ScheduledAt:   cmd.ScheduledAt,
		EstimatedCost: fares.Cost(cmd.Category, estimateKm(cmd.Start, cmd.End, cmd.Stops)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cmd.ScheduledAt != nil && cmd.ScheduledAt.After(now) {
		r.Status = models.StatusScheduled
	}
	if err := s.Store.SaveRide(r); err != nil {
		return nil, err
	}
	s.notify(r)
	return r, nil
}

// Accept binds the calling driver to a pending ride and takes the driver's
// vehicle out of patrol. A scheduled ride becomes acceptable once its due
// time has passed.
func (s *Service) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	if driverID == "" {
		return nil, ErrUnauthenticated
	}
	r, err := s.get(rideID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case models.StatusPending:
	case models.StatusScheduled:
		if r.ScheduledAt != nil && r.ScheduledAt.After(time.Now()) {
			return nil, ErrInvalidTransition
		}
	default:
		return nil, ErrInvalidTransition
	}
	r.Status = models.StatusAccepted
	r.DriverID = driverID
	if err := s.Store.UpdateRide(r); err != nil {
		return nil, err
	}
	s.claimVehicle(driverID)
	s.notify(r)
	return r, nil
}

// Start moves an accepted ride into active tracking.
func (s *Service) Start(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.get(rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusAccepted {
		return nil, ErrInvalidTransition
	}
	now := time.Now()
	r.Status = models.StatusActive
	r.StartedAt = &now
	if err := s.Store.UpdateRide(r); err != nil {
		return nil, err
	}
	s.notify(r)
	return r, nil
}

// End completes an active ride, settles payment best-effort, and releases
// the driver and vehicle.
func (s *Service) End(ctx context.Context, rideID string, conf EndConfirmation) (*models.Ride, error) {
	r, err := s.get(rideID)
	if err != nil {
		return nil, err
	}
	if !r.Status.Moving() {
		return nil, ErrInvalidTransition
	}
	now := time.Now()
	r.Status = models.StatusFinished
	r.EndedAt = &now
	r.Paid = conf.Paid
	r.PassengersExited = conf.PassengersExited
	if err := s.Store.UpdateRide(r); err != nil {
		return nil, err
	}
	if conf.Paid {
		s.charge(ctx, r)
	}
	s.releaseDriver(r.DriverID)
	s.notify(r)
	return r, nil
}

// Cancel terminates a non-terminal ride with an actor-specific status.
// actor is "driver", "passenger", or empty for a system cancellation.
func (s *Service) Cancel(ctx context.Context, rideID, actor, reason string) (*models.Ride, error) {
	status := models.StatusCancelled
	switch actor {
	case "driver":
		status = models.StatusCancelledByDriver
	case "passenger":
		status = models.StatusCancelledByPassenger
	}
	return s.terminate(ctx, rideID, status, reason)
}

// Reject lets a driver decline a pending or scheduled ride.
func (s *Service) Reject(ctx context.Context, rideID, reason string) (*models.Ride, error) {
	r, err := s.get(rideID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case models.StatusPending, models.StatusScheduled, models.StatusAccepted:
	default:
		return nil, ErrInvalidTransition
	}
	return s.terminate(ctx, rideID, models.StatusRejected, reason)
}

// Panic is the emergency override: legal from any non-terminal status,
// always terminal, and recorded as an incident tied to the reporter.
func (s *Service) Panic(ctx context.Context, rideID, reporterID, reason string) (*models.Ride, error) {
	r, err := s.get(rideID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, ErrInvalidTransition
	}
	now := time.Now()
	r.Status = models.StatusPanic
	r.PanicFlag = true
	r.EndedAt = &now
	r.Reason = reason
	if err := s.Store.UpdateRide(r); err != nil {
		return nil, err
	}
	in := &models.Incident{
		ID:         uuid.NewString(),
		RideID:     r.ID,
		ReporterID: reporterID,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := s.Store.SaveIncident(in); err != nil {
		s.Log.Error("incident not persisted", "ride_id", r.ID, "error", err)
	}
	observability.PanicsTotal.Inc()
	s.releaseDriver(r.DriverID)
	s.notify(r)
	return r, nil
}

// RequestInactive flags a driver for deactivation. With no bound ride the
// driver goes inactive immediately; otherwise the request is deferred to
// the ride's terminal transition.
func (s *Service) RequestInactive(driverID string) error {
	d, err := s.Store.GetDriver(driverID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if _, err := s.Store.BindingRideForDriver(driverID); errors.Is(err, storage.ErrNotFound) {
		d.Active = false
		d.InactiveRequested = false
	} else if err != nil {
		return err
	} else {
		d.InactiveRequested = true
	}
	return s.Store.SaveDriver(d)
}

func (s *Service) Get(rideID string) (*models.Ride, error) { return s.get(rideID) }

func (s *Service) terminate(ctx context.Context, rideID string, status models.RideStatus, reason string) (*models.Ride, error) {
	r, err := s.get(rideID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, ErrInvalidTransition
	}
	now := time.Now()
	r.Status = status
	r.EndedAt = &now
	r.Reason = reason
	if err := s.Store.UpdateRide(r); err != nil {
		return nil, err
	}
	s.releaseDriver(r.DriverID)
	s.notify(r)
	return r, nil
}

func (s *Service) get(rideID string) (*models.Ride, error) {
	r, err := s.Store.GetRide(rideID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return r, err
}

// claimVehicle marks the driver's vehicle busy and drops its patrol route.
func (s *Service) claimVehicle(driverID string) {
	v, err := s.Store.VehicleByDriver(driverID)
	if err != nil {
		return
	}
	if err := s.Store.SetOccupancy(v.ID, models.OccupancyBusy); err != nil {
		s.Log.Warn("vehicle occupancy not updated", "vehicle_id", v.ID, "error", err)
	}
	if s.Patrol != nil {
		s.Patrol.Discard(v.ID)
	}
}

// releaseDriver runs on every terminal transition: frees the vehicle and
// honors a deferred offline request.
func (s *Service) releaseDriver(driverID string) {
	if driverID == "" {
		return
	}
	if v, err := s.Store.VehicleByDriver(driverID); err == nil {
		if err := s.Store.SetOccupancy(v.ID, models.OccupancyFree); err != nil {
			s.Log.Warn("vehicle occupancy not updated", "vehicle_id", v.ID, "error", err)
		}
	}
	d, err := s.Store.GetDriver(driverID)
	if err != nil {
		return
	}
	if d.InactiveRequested {
		d.Active = false
		d.InactiveRequested = false
		if err := s.Store.SaveDriver(d); err != nil {
			s.Log.Warn("deferred deactivation not persisted", "driver_id", driverID, "error", err)
		}
	}
}

func (s *Service) charge(ctx context.Context, r *models.Ride) {
	if s.Payments == nil {
		return
	}
	amount := int64(r.TotalCost * 100)
	if amount <= 0 {
		return
	}
	id, err := s.Payments.Hold(ctx, amount, s.Currency, r.PassengerID)
	if err != nil {
		s.Log.Warn("payment hold failed", "ride_id", r.ID, "error", err)
		return
	}
	if err := s.Payments.Capture(ctx, id); err != nil {
		s.Log.Warn("payment capture failed", "ride_id", r.ID, "error", err)
	}
}

func (s *Service) notify(r *models.Ride) {
	if s.Notify != nil {
		s.Notify.RideChanged(r)
	}
}

// estimateKm sums the leg distances start → stops… → end.
func estimateKm(start, end models.Coord, stops []models.Coord) float64 {
	pos := start
	var meters float64
	for _, st := range stops {
		meters += geo.Distance(pos, st)
		pos = st
	}
	meters += geo.Distance(pos, end)
	return meters / 1000
}
