package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ride-booking/internal/models"
)

// PostgresStore archives committed ride state. Each SaveRide upserts the
// ride row and its passenger rows in one transaction, so the archive never
// shows a cancelled ride with passengers still pending.
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

func (p *PostgresStore) SaveRide(ctx context.Context, r *models.Ride) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rides(id, creator_id, pickup_lat, pickup_lon, pickup_address,
			dropoff_lat, dropoff_lon, dropoff_address, departure_time, total_seats,
			price, car_model, car_number, smoking_allowed, pets_allowed,
			alcohol_allowed, gender_preference, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		r.ID, r.CreatorID,
		r.Pickup.Coord.Lat, r.Pickup.Coord.Lon, r.Pickup.Address,
		r.Dropoff.Coord.Lat, r.Dropoff.Coord.Lon, r.Dropoff.Address,
		r.DepartureTime, r.TotalSeats, r.Price,
		r.Vehicle.Model, r.Vehicle.Plate,
		r.Preferences.Smoking, r.Preferences.Pets, r.Preferences.Alcohol, string(r.Preferences.Gender),
		string(r.Status), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save ride %s: %w", r.ID, err)
	}

	for _, req := range r.Passengers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO passenger_requests(ride_id, user_id, status, requested_at, decided_at)
			VALUES($1,$2,$3,$4,$5)
			ON CONFLICT (ride_id, user_id, requested_at) DO UPDATE
				SET status = EXCLUDED.status, decided_at = EXCLUDED.decided_at`,
			req.RideID, req.UserID, string(req.Status), req.RequestedAt, req.DecidedAt)
		if err != nil {
			return fmt.Errorf("save request %s/%s: %w", req.RideID, req.UserID, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) Close() error { return p.db.Close() }
