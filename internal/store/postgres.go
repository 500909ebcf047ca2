package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/charity-drive/internal/models"
)

// PostgresStore persists rides in a single rides table. Conditional
// transitions rely on the WHERE status='pending' predicate of a single
// UPDATE, so concurrent accept/cancel calls are serialized by the
// database row lock and exactly one of them applies.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const rideColumns = `id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	pickup_address, dropoff_address, option_id, option_multiplier,
	suggested_fare, final_fare, distance_km, travel_time_minutes,
	charity_id, charity_name, status,
	driver_id, driver_name, driver_plate, vehicle_model, vehicle_color,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *models.RideRequest) error {
	if err := ValidateRide(r); err != nil {
		return err
	}
	var charityID, charityName sql.NullString
	if r.Charity != nil {
		charityID = sql.NullString{String: r.Charity.ID, Valid: true}
		charityName = sql.NullString{String: r.Charity.Name, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(
		id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		pickup_address, dropoff_address, option_id, option_multiplier,
		suggested_fare, final_fare, distance_km, travel_time_minutes,
		charity_id, charity_name, status, created_at, updated_at
	) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		r.ID, r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng,
		r.PickupAddress, r.DropoffAddress, r.RideOption.ID, r.RideOption.Multiplier,
		r.SuggestedFare, r.FinalFare, r.DistanceKm, r.TravelTimeMinutes,
		charityID, charityName, string(r.Status), r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.RideRequest, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := p.scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]*models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE status='pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.RideRequest
	for rows.Next() {
		r, err := p.scanRide(rows)
		if err != nil {
			// a malformed row must not poison the whole listing; log and skip
			p.logger.Error("skipping malformed ride row", "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Accept(ctx context.Context, id string, a models.Assignment) (*models.RideRequest, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides
		SET status='accepted', driver_id=$2, driver_name=$3, driver_plate=$4,
		    vehicle_model=$5, vehicle_color=$6, updated_at=$7
		WHERE id=$1 AND status='pending'
		RETURNING `+rideColumns,
		id, a.DriverID, a.Driver.Name, a.Driver.LicensePlate,
		a.Vehicle.Model, a.Vehicle.Color, time.Now().UTC())
	r, err := p.scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.missOrConflict(ctx, id)
	}
	return r, err
}

func (p *PostgresStore) Cancel(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status='cancelled', updated_at=$2 WHERE id=$1 AND status='pending'`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return p.missOrConflict(ctx, id)
	}
	return nil
}

func (p *PostgresStore) Start(ctx context.Context, id string) (*models.RideRequest, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides
		SET status='in_progress', updated_at=$2
		WHERE id=$1 AND status='accepted'
		RETURNING `+rideColumns, id, time.Now().UTC())
	r, err := p.scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.missOrConflict(ctx, id)
	}
	return r, err
}

func (p *PostgresStore) Complete(ctx context.Context, id string) (*models.RideRequest, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE rides
		SET status='completed', updated_at=$2
		WHERE id=$1 AND status IN ('accepted','in_progress','completed')
		RETURNING `+rideColumns, id, time.Now().UTC())
	r, err := p.scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.missOrConflict(ctx, id)
	}
	return r, err
}

// missOrConflict distinguishes a conditional UPDATE that matched no rows
// because the ride does not exist from one whose status precondition
// failed.
func (p *PostgresStore) missOrConflict(ctx context.Context, id string) error {
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM rides WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: status is %s", ErrConflict, status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanRide(row rowScanner) (*models.RideRequest, error) {
	var r models.RideRequest
	var status string
	var charityID, charityName sql.NullString
	var driverID, driverName, driverPlate sql.NullString
	var vehicleModel, vehicleColor sql.NullString
	err := row.Scan(&r.ID, &r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.PickupAddress, &r.DropoffAddress, &r.RideOption.ID, &r.RideOption.Multiplier,
		&r.SuggestedFare, &r.FinalFare, &r.DistanceKm, &r.TravelTimeMinutes,
		&charityID, &charityName, &status,
		&driverID, &driverName, &driverPlate, &vehicleModel, &vehicleColor,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.RideStatus(status)
	if charityID.Valid {
		r.Charity = &models.Charity{ID: charityID.String, Name: charityName.String}
	}
	if driverID.Valid {
		r.Assignment = &models.Assignment{
			DriverID: driverID.String,
			Driver:   models.Driver{Name: driverName.String, LicensePlate: driverPlate.String},
			Vehicle:  models.Vehicle{Model: vehicleModel.String, Color: vehicleColor.String},
		}
	}
	if err := ValidateRide(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
