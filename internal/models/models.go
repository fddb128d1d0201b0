package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RideStatus enumerates the ride lifecycle. A ride is created pending and
// ends in exactly one terminal status; terminal rides are immutable.
type RideStatus string

const (
	StatusPending              RideStatus = "pending"
	StatusScheduled            RideStatus = "scheduled"
	StatusAccepted             RideStatus = "accepted"
	StatusActive               RideStatus = "active"
	StatusFinished             RideStatus = "finished"
	StatusRejected             RideStatus = "rejected"
	StatusCancelled            RideStatus = "cancelled"
	StatusCancelledByDriver    RideStatus = "cancelled_by_driver"
	StatusCancelledByPassenger RideStatus = "cancelled_by_passenger"
	StatusPanic                RideStatus = "panic"
)

func (s RideStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusRejected, StatusCancelled,
		StatusCancelledByDriver, StatusCancelledByPassenger, StatusPanic:
		return true
	}
	return false
}

// Moving reports whether the fare tracker should tick this ride.
func (s RideStatus) Moving() bool { return s == StatusActive }

// Binding reports whether the ride keeps its driver's vehicle off patrol.
func (s RideStatus) Binding() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusAccepted, StatusActive:
		return true
	}
	return false
}

type VehicleCategory string

const (
	CategoryStandard VehicleCategory = "standard"
	CategoryLuxury   VehicleCategory = "luxury"
	CategoryVan      VehicleCategory = "van"
)

type OccupancyStatus string

const (
	OccupancyFree OccupancyStatus = "free"
	OccupancyBusy OccupancyStatus = "busy"
)

type Ride struct {
	ID          string          `json:"id"`
	Status      RideStatus      `json:"status"`
	PassengerID string          `json:"passenger_id"`
	DriverID    string          `json:"driver_id,omitempty"` // empty until accepted
	Passengers  []string        `json:"passengers,omitempty"`
	Invited     []string        `json:"invited,omitempty"` // unregistered co-passenger emails
	Category    VehicleCategory `json:"category"`
	BabySeat    bool            `json:"baby_seat"`
	PetFriendly bool            `json:"pet_friendly"`

	Start Coord   `json:"start"`
	End   Coord   `json:"end"`
	Stops []Coord `json:"stops,omitempty"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	EstimatedCost    float64 `json:"estimated_cost"`
	TotalCost        float64 `json:"total_cost"`
	DistanceTraveled float64 `json:"distance_traveled"` // km

	// Tracking cursor: last position already charged against the fare.
	// Nil until the tracker seeds it on the ride's first moving tick.
	TrackedLat *float64 `json:"tracked_lat,omitempty"`
	TrackedLon *float64 `json:"tracked_lon,omitempty"`

	Paid             bool   `json:"paid"`
	PassengersExited bool   `json:"passengers_exited"`
	PanicFlag        bool   `json:"panic"`
	Reason           string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Vehicle struct {
	ID        string          `json:"id"`
	DriverID  string          `json:"driver_id,omitempty"`
	Category  VehicleCategory `json:"category"`
	Location  Coord           `json:"location"`
	Occupancy OccupancyStatus `json:"occupancy"`
	Updated   time.Time       `json:"updated"`
}

// Driver carries the two-flag availability state machine: a driver may
// request to go offline while bound to a ride, and the request is honored
// only when that ride reaches a terminal status.
type Driver struct {
	ID                string `json:"id"`
	Active            bool   `json:"active"`
	InactiveRequested bool   `json:"inactive_requested"`
}

// Incident is the record persisted when a ride hits the panic override.
type Incident struct {
	ID         string    `json:"id"`
	RideID     string    `json:"ride_id"`
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// VehiclePosition is the event published for every externally reported
// vehicle fix; the consumer mirrors it into Redis GEO for map display.
type VehiclePosition struct {
	VehicleID string    `json:"vehicle_id"`
	Loc       Coord     `json:"loc"`
	Occupancy string    `json:"occupancy"`
	Reported  time.Time `json:"reported"`
}
