package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/example/ride-tracking/internal/models"
)

var ErrNotFound = errors.New("record not found")

// RideStore defines persistence operations for rides and incidents.
type RideStore interface {
	SaveRide(r *models.Ride) error
	UpdateRide(r *models.Ride) error
	// UpdateRideTracking writes only the accrual fields (cost, distance,
	// cursor) and only while the ride is still moving. A terminal ride is
	// left untouched, so a batch working from a stale snapshot can never
	// revive it.
	UpdateRideTracking(id string, totalCost, distanceKm float64, cursor models.Coord) error
	GetRide(id string) (*models.Ride, error)
	// MovingRides returns rides the fare tracker must tick.
	MovingRides() ([]*models.Ride, error)
	// BindingRideForDriver returns the driver's pending/scheduled/accepted/
	// active ride, or ErrNotFound.
	BindingRideForDriver(driverID string) (*models.Ride, error)
	SaveIncident(in *models.Incident) error
}

// VehicleStore defines persistence operations for vehicles.
type VehicleStore interface {
	SaveVehicle(v *models.Vehicle) error
	GetVehicle(id string) (*models.Vehicle, error)
	VehicleByDriver(driverID string) (*models.Vehicle, error)
	UpdateVehicleLocation(id string, loc models.Coord) error
	SetOccupancy(id string, occ models.OccupancyStatus) error
	// ActiveVehicles returns vehicles whose owning driver is active.
	ActiveVehicles() ([]*models.Vehicle, error)
}

// DriverStore defines persistence operations for driver availability.
type DriverStore interface {
	GetDriver(id string) (*models.Driver, error)
	SaveDriver(d *models.Driver) error
}

// Store aggregates the three record stores behind one value for wiring.
type Store interface {
	RideStore
	VehicleStore
	DriverStore
}

// MemoryStore is the in-process Store used when no PG_DSN is configured
// and by tests. It returns copies so callers never share mutable records.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]*models.Ride
	vehicles map[string]*models.Vehicle
	drivers  map[string]*models.Driver
	incident []*models.Incident
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]*models.Ride),
		vehicles: make(map[string]*models.Vehicle),
		drivers:  make(map[string]*models.Driver),
	}
}

func (m *MemoryStore) SaveRide(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRide(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	cp.UpdatedAt = time.Now()
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRideTracking(id string, totalCost, distanceKm float64, cursor models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	// re-check under the lock: a terminal transition since the batch
	// snapshot wins and the accrual write is dropped
	if !r.Status.Moving() {
		return nil
	}
	lat, lon := cursor.Lat, cursor.Lon
	r.TotalCost = totalCost
	r.DistanceTraveled = distanceKm
	r.TrackedLat = &lat
	r.TrackedLon = &lon
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetRide(id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) MovingRides() ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.Status.Moving() {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) BindingRideForDriver(driverID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.DriverID == driverID && r.Status.Binding() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SaveIncident(in *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.incident = append(m.incident, &cp)
	return nil
}

// Incidents is test/introspection access to recorded incidents.
func (m *MemoryStore) Incidents() []*models.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Incident, len(m.incident))
	copy(out, m.incident)
	return out
}

func (m *MemoryStore) SaveVehicle(v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func (m *MemoryStore) GetVehicle(id string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) VehicleByDriver(driverID string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if v.DriverID == driverID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateVehicleLocation(id string, loc models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Location = loc
	v.Updated = time.Now()
	return nil
}

func (m *MemoryStore) SetOccupancy(id string, occ models.OccupancyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Occupancy = occ
	v.Updated = time.Now()
	return nil
}

func (m *MemoryStore) ActiveVehicles() ([]*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Vehicle, 0)
	for _, v := range m.vehicles {
		if d, ok := m.drivers[v.DriverID]; ok && d.Active {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetDriver(id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) SaveDriver(d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.drivers[d.ID] = &cp
	return nil
}
