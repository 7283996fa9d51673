package storage

import (
	"context"

	"github.com/barberbook/barberbook/libs/db"
	"github.com/barberbook/barberbook/services/booking-service/internal/model"
)

type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, address, keywords
		FROM locations
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var loc model.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.Keywords); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// ListStaff returns the active staff of a location in menu order.
func (r *CatalogRepository) ListStaff(ctx context.Context, locationID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, location_id::text, name, is_active
		FROM staff
		WHERE location_id = $1 AND is_active
		ORDER BY sort_order, name
	`, locationID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.LocationID, &s.Name, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListServices includes services shared by every location (NULL location_id).
func (r *CatalogRepository) ListServices(ctx context.Context, locationID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(location_id::text, ''), name, price::text, duration_minutes, is_default
		FROM services
		WHERE location_id = $1 OR location_id IS NULL
		ORDER BY is_default DESC, name
	`, locationID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.LocationID, &s.Name, &s.Price, &s.DurationMinutes, &s.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
