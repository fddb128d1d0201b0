// Package patrol simulates street-level movement for idle vehicles so the
// map stays alive when no human is driving.
package patrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/example/ride-tracking/internal/geo"
	"github.com/example/ride-tracking/internal/locks"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
	"github.com/example/ride-tracking/internal/routing"
	"github.com/example/ride-tracking/internal/storage"
)

// Publisher receives simulated position updates; best-effort.
type Publisher interface {
	PublishVehiclePosition(p models.VehiclePosition) error
}

type state struct {
	route  []models.Coord
	cursor int
}

// Engine advances idle vehicles along synthetic routes. Patrol state is
// in-memory only; losing it on restart just means a fresh route.
type Engine struct {
	Vehicles storage.VehicleStore
	Rides    storage.RideStore
	Locks    *locks.Arbiter
	Router   routing.Client
	Publish  Publisher // optional
	Log      *slog.Logger

	BBox     geo.BBox
	StepMin  float64 // meters per tick
	StepMax  float64
	MoveProb float64

	mu       sync.Mutex
	states   map[string]*state
	inflight map[string]bool
	rnd      *rand.Rand
}

func NewEngine(vehicles storage.VehicleStore, rides storage.RideStore, arb *locks.Arbiter, router routing.Client, log *slog.Logger) *Engine {
	return &Engine{
		Vehicles: vehicles,
		Rides:    rides,
		Locks:    arb,
		Router:   router,
		Log:      log,
		BBox:     geo.BBox{MinLat: 45.22, MinLon: 19.76, MaxLat: 45.30, MaxLon: 19.88},
		StepMin:  40,
		StepMax:  60,
		MoveProb: 0.9,
		states:   make(map[string]*state),
		inflight: make(map[string]bool),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Engine) Name() string { return "patrol" }

// Run executes one patrol tick over all vehicles of active drivers.
// Per-vehicle failures are isolated.
func (e *Engine) Run(ctx context.Context) {
	vehicles, err := e.Vehicles.ActiveVehicles()
	if err != nil {
		e.Log.Error("patrol vehicle query failed", "error", err)
		return
	}
	for _, v := range vehicles {
		if ctx.Err() != nil {
			return
		}
		if err := e.tickVehicle(ctx, v); err != nil {
			e.Log.Error("patrol vehicle tick failed", "vehicle_id", v.ID, "error", err)
		}
	}
}

func (e *Engine) tickVehicle(ctx context.Context, v *models.Vehicle) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("patrol tick panicked: %v", rec)
		}
	}()

	// An external session owns the position stream; simulation stands
	// down and the stale route is dropped.
	if e.Locks.IsLocked(v.ID) {
		e.Discard(v.ID)
		return nil
	}
	if v.Occupancy == models.OccupancyBusy {
		e.Discard(v.ID)
		return nil
	}
	if v.DriverID != "" {
		if _, err := e.Rides.BindingRideForDriver(v.DriverID); err == nil {
			e.Discard(v.ID)
			return nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	if e.rnd.Float64() >= e.MoveProb {
		return nil
	}

	st := e.currentState(v.ID)
	if st == nil || st.cursor >= len(st.route) {
		e.requestRoute(ctx, v)
		return nil
	}

	step := e.StepMin + e.rnd.Float64()*(e.StepMax-e.StepMin)
	pos, cursor, exhausted := geo.Advance(v.Location, st.route, st.cursor, step)

	e.mu.Lock()
	if cur, ok := e.states[v.ID]; ok && cur == st {
		st.cursor = cursor
		if exhausted {
			delete(e.states, v.ID)
		}
	}
	e.mu.Unlock()

	// Last-writer-wins with an external lock acquired after the check
	// above is acceptable; this is simulation, not telemetry.
	if err := e.Vehicles.UpdateVehicleLocation(v.ID, pos); err != nil {
		return err
	}
	observability.PatrolMovesTotal.Inc()
	if e.Publish != nil {
		_ = e.Publish.PublishVehiclePosition(models.VehiclePosition{
			VehicleID: v.ID,
			Loc:       pos,
			Occupancy: string(v.Occupancy),
			Reported:  time.Now(),
		})
	}
	return nil
}

// requestRoute fetches a fresh route asynchronously so the external call
// never stalls other vehicles. One outstanding request per vehicle.
func (e *Engine) requestRoute(ctx context.Context, v *models.Vehicle) {
	e.mu.Lock()
	if e.inflight[v.ID] {
		e.mu.Unlock()
		return
	}
	e.inflight[v.ID] = true
	dest := e.BBox.RandomPoint(e.rnd)
	e.mu.Unlock()

	observability.PatrolRouteRequests.Inc()
	from := v.Location
	id := v.ID
	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.inflight, id)
			e.mu.Unlock()
		}()
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		route, err := e.Router.Route(rctx, from, dest)
		if err != nil {
			// stay put; the next tick re-attempts
			observability.PatrolRouteFailures.Inc()
			e.Log.Warn("patrol route request failed", "vehicle_id", id, "error", err)
			return
		}
		e.mu.Lock()
		e.states[id] = &state{route: route}
		e.mu.Unlock()
	}()
}

// Discard drops the vehicle's patrol route so its next idle period starts
// fresh.
func (e *Engine) Discard(vehicleID string) {
	e.mu.Lock()
	delete(e.states, vehicleID)
	e.mu.Unlock()
}

// HasRoute reports whether the vehicle currently has an unexhausted route.
func (e *Engine) HasRoute(vehicleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[vehicleID]
	return ok && st.cursor < len(st.route)
}

func (e *Engine) currentState(vehicleID string) *state {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[vehicleID]
}
