package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-tracking/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) SaveRide(r *models.Ride) error {
	_, err := p.db.Exec(`INSERT INTO rides(
			id, status, passenger_id, driver_id, category, baby_seat, pet_friendly,
			start_lat, start_lon, end_lat, end_lon,
			scheduled_at, started_at, ended_at,
			estimated_cost, total_cost, distance_km, tracked_lat, tracked_lon,
			paid, passengers_exited, panic, reason, created_at, updated_at
		) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		r.ID, r.Status, r.PassengerID, nullStr(r.DriverID), r.Category, r.BabySeat, r.PetFriendly,
		r.Start.Lat, r.Start.Lon, r.End.Lat, r.End.Lon,
		r.ScheduledAt, r.StartedAt, r.EndedAt,
		r.EstimatedCost, r.TotalCost, r.DistanceTraveled, r.TrackedLat, r.TrackedLon,
		r.Paid, r.PassengersExited, r.PanicFlag, r.Reason, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) UpdateRide(r *models.Ride) error {
	_, err := p.db.Exec(`UPDATE rides SET
			status=$1, driver_id=$2, started_at=$3, ended_at=$4,
			total_cost=$5, distance_km=$6, tracked_lat=$7, tracked_lon=$8,
			paid=$9, passengers_exited=$10, panic=$11, reason=$12, updated_at=$13
		WHERE id=$14`,
		r.Status, nullStr(r.DriverID), r.StartedAt, r.EndedAt,
		r.TotalCost, r.DistanceTraveled, r.TrackedLat, r.TrackedLon,
		r.Paid, r.PassengersExited, r.PanicFlag, r.Reason, time.Now(), r.ID)
	return err
}

// UpdateRideTracking touches only the accrual columns and is guarded on
// status, so a ride ended between the batch query and this write stays
// terminal.
func (p *PostgresStore) UpdateRideTracking(id string, totalCost, distanceKm float64, cursor models.Coord) error {
	_, err := p.db.Exec(`UPDATE rides SET
			total_cost=$1, distance_km=$2, tracked_lat=$3, tracked_lon=$4, updated_at=$5
		WHERE id=$6 AND status='active'`,
		totalCost, distanceKm, cursor.Lat, cursor.Lon, time.Now(), id)
	return err
}

func (p *PostgresStore) GetRide(id string) (*models.Ride, error) {
	row := p.db.QueryRow(`SELECT `+rideCols+` FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) MovingRides() ([]*models.Ride, error) {
	rows, err := p.db.Query(`SELECT ` + rideCols + ` FROM rides WHERE status='active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) BindingRideForDriver(driverID string) (*models.Ride, error) {
	row := p.db.QueryRow(`SELECT `+rideCols+` FROM rides
		WHERE driver_id=$1 AND status IN ('pending','scheduled','accepted','active')
		LIMIT 1`, driverID)
	return scanRide(row)
}

func (p *PostgresStore) SaveIncident(in *models.Incident) error {
	_, err := p.db.Exec(`INSERT INTO incidents(id, ride_id, reporter_id, reason, created_at)
		VALUES($1,$2,$3,$4,$5)`,
		in.ID, in.RideID, in.ReporterID, in.Reason, in.CreatedAt)
	return err
}

func (p *PostgresStore) SaveVehicle(v *models.Vehicle) error {
	_, err := p.db.Exec(`INSERT INTO vehicles(id, driver_id, category, lat, lon, occupancy, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			driver_id=EXCLUDED.driver_id, category=EXCLUDED.category,
			lat=EXCLUDED.lat, lon=EXCLUDED.lon,
			occupancy=EXCLUDED.occupancy, updated_at=EXCLUDED.updated_at`,
		v.ID, nullStr(v.DriverID), v.Category, v.Location.Lat, v.Location.Lon, v.Occupancy, time.Now())
	return err
}

func (p *PostgresStore) GetVehicle(id string) (*models.Vehicle, error) {
	row := p.db.QueryRow(`SELECT `+vehicleCols+` FROM vehicles WHERE id=$1`, id)
	return scanVehicle(row)
}

func (p *PostgresStore) VehicleByDriver(driverID string) (*models.Vehicle, error) {
	row := p.db.QueryRow(`SELECT `+vehicleCols+` FROM vehicles WHERE driver_id=$1`, driverID)
	return scanVehicle(row)
}

func (p *PostgresStore) UpdateVehicleLocation(id string, loc models.Coord) error {
	res, err := p.db.Exec(`UPDATE vehicles SET lat=$1, lon=$2, updated_at=$3 WHERE id=$4`,
		loc.Lat, loc.Lon, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SetOccupancy(id string, occ models.OccupancyStatus) error {
	res, err := p.db.Exec(`UPDATE vehicles SET occupancy=$1, updated_at=$2 WHERE id=$3`,
		occ, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ActiveVehicles() ([]*models.Vehicle, error) {
	rows, err := p.db.Query(`SELECT v.id, v.driver_id, v.category, v.lat, v.lon, v.occupancy, v.updated_at
		FROM vehicles v JOIN drivers d ON d.id = v.driver_id
		WHERE d.active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetDriver(id string) (*models.Driver, error) {
	row := p.db.QueryRow(`SELECT id, active, inactive_requested FROM drivers WHERE id=$1`, id)
	var d models.Driver
	err := row.Scan(&d.ID, &d.Active, &d.InactiveRequested)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) SaveDriver(d *models.Driver) error {
	_, err := p.db.Exec(`INSERT INTO drivers(id, active, inactive_requested)
		VALUES($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET active=EXCLUDED.active, inactive_requested=EXCLUDED.inactive_requested`,
		d.ID, d.Active, d.InactiveRequested)
	return err
}

const rideCols = `id, status, passenger_id, driver_id, category, baby_seat, pet_friendly,
	start_lat, start_lon, end_lat, end_lon, scheduled_at, started_at, ended_at,
	estimated_cost, total_cost, distance_km, tracked_lat, tracked_lon,
	paid, passengers_exited, panic, reason, created_at, updated_at`

const vehicleCols = `id, driver_id, category, lat, lon, occupancy, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID, reason sql.NullString
	err := row.Scan(
		&r.ID, &r.Status, &r.PassengerID, &driverID, &r.Category, &r.BabySeat, &r.PetFriendly,
		&r.Start.Lat, &r.Start.Lon, &r.End.Lat, &r.End.Lon,
		&r.ScheduledAt, &r.StartedAt, &r.EndedAt,
		&r.EstimatedCost, &r.TotalCost, &r.DistanceTraveled, &r.TrackedLat, &r.TrackedLon,
		&r.Paid, &r.PassengersExited, &r.PanicFlag, &reason, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.DriverID = driverID.String
	r.Reason = reason.String
	return &r, nil
}

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var driverID sql.NullString
	err := row.Scan(&v.ID, &driverID, &v.Category, &v.Location.Lat, &v.Location.Lon, &v.Occupancy, &v.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.DriverID = driverID.String
	return &v, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
