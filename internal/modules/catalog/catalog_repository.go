package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordering-and-delivery/internal/models"
)

// RepositoryInterface defines the read-only catalog lookups. Catalog reads
// never lock anything: already-created orders are isolated from price
// changes by the price-at-order-time capture.
type RepositoryInterface interface {
	FindService(ctx context.Context, serviceID string) (*models.Service, error)
	FindMenuItem(ctx context.Context, serviceID, menuItemID string) (*models.MenuItem, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
	ListMenuItems(ctx context.Context, serviceID string) ([]*models.MenuItem, error)
}

// Repository implements RepositoryInterface over PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) FindService(ctx context.Context, serviceID string) (*models.Service, error) {
	const query = `
		SELECT id, name, delivery_fee, min_order_amount, is_active, opening_time, closing_time, created_at
		FROM services
		WHERE id = $1`
	var s models.Service
	err := r.db.QueryRow(ctx, query, serviceID).Scan(
		&s.ID, &s.Name, &s.DeliveryFee, &s.MinOrderAmount,
		&s.IsActive, &s.OpeningTime, &s.ClosingTime, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindService: %w", err)
	}
	return &s, nil
}

func (r *Repository) FindMenuItem(ctx context.Context, serviceID, menuItemID string) (*models.MenuItem, error) {
	const query = `
		SELECT id, service_id, name, price, discounted_price, is_available, created_at
		FROM menu_items
		WHERE id = $1 AND service_id = $2`
	var m models.MenuItem
	err := r.db.QueryRow(ctx, query, menuItemID, serviceID).Scan(
		&m.ID, &m.ServiceID, &m.Name, &m.Price, &m.DiscountedPrice, &m.IsAvailable, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindMenuItem: %w", err)
	}
	return &m, nil
}

func (r *Repository) ListServices(ctx context.Context) ([]*models.Service, error) {
	const query = `
		SELECT id, name, delivery_fee, min_order_amount, is_active, opening_time, closing_time, created_at
		FROM services
		WHERE is_active
		ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListServices: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s := &models.Service{}
		if err := rows.Scan(
			&s.ID, &s.Name, &s.DeliveryFee, &s.MinOrderAmount,
			&s.IsActive, &s.OpeningTime, &s.ClosingTime, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("repository.ListServices scan: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *Repository) ListMenuItems(ctx context.Context, serviceID string) ([]*models.MenuItem, error) {
	const query = `
		SELECT id, service_id, name, price, discounted_price, is_available, created_at
		FROM menu_items
		WHERE service_id = $1
		ORDER BY name`
	rows, err := r.db.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListMenuItems: %w", err)
	}
	defer rows.Close()

	var items []*models.MenuItem
	for rows.Next() {
		m := &models.MenuItem{}
		if err := rows.Scan(
			&m.ID, &m.ServiceID, &m.Name, &m.Price, &m.DiscountedPrice, &m.IsAvailable, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("repository.ListMenuItems scan: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
