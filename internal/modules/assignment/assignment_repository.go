package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordering-and-delivery/internal/models"
)

// RepositoryInterface defines the persistence operations for binding orders
// to delivery team members.
type RepositoryInterface interface {
	FindUser(ctx context.Context, userID string) (*models.User, error)
	ListTeamMembers(ctx context.Context, activeOnly bool) ([]*models.User, error)
	// CountActiveAssignments returns the number of in-flight orders held by
	// the team member.
	CountActiveAssignments(ctx context.Context, teamMemberID string) (int, error)
	FindOrder(ctx context.Context, orderID string) (*models.Order, error)
	// Assign binds the order to the team member and moves it to the given
	// status, guarded by the status the caller observed. The history entry
	// is appended in the same transaction.
	Assign(ctx context.Context, orderID, teamMemberID string, from, to models.OrderStatus, entry models.StatusEntry) error
}

// Repository implements RepositoryInterface over PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) FindUser(ctx context.Context, userID string) (*models.User, error) {
	const query = `
		SELECT id, name, email, phone, role, is_active, created_at
		FROM users
		WHERE id = $1`
	var u models.User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAgentNotFound
		}
		return nil, fmt.Errorf("repository.FindUser: %w", err)
	}
	return &u, nil
}

func (r *Repository) ListTeamMembers(ctx context.Context, activeOnly bool) ([]*models.User, error) {
	query := `
		SELECT id, name, email, phone, role, is_active, created_at
		FROM users
		WHERE role = 'team_member'`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListTeamMembers: %w", err)
	}
	defer rows.Close()

	var members []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListTeamMembers scan: %w", err)
		}
		members = append(members, &u)
	}
	return members, rows.Err()
}

func (r *Repository) CountActiveAssignments(ctx context.Context, teamMemberID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM orders
		WHERE assigned_to = $1 AND status IN ('confirmed', 'preparing', 'out_for_delivery')`
	var count int
	if err := r.db.QueryRow(ctx, query, teamMemberID).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository.CountActiveAssignments: %w", err)
	}
	return count, nil
}

// FindOrder loads the fields assignment decisions need. Line items and
// history are not fetched here.
func (r *Repository) FindOrder(ctx context.Context, orderID string) (*models.Order, error) {
	const query = `
		SELECT id, order_number, customer_id, status, assigned_to
		FROM orders
		WHERE id = $1`
	var o models.Order
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.AssignedTo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindOrder: %w", err)
	}
	return &o, nil
}

func (r *Repository) Assign(ctx context.Context, orderID, teamMemberID string, from, to models.OrderStatus, entry models.StatusEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.Assign begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const update = `
		UPDATE orders
		SET assigned_to = $2, status = $3, updated_at = $4
		WHERE id = $1 AND status = $5`
	cmd, err := tx.Exec(ctx, update, orderID, teamMemberID, to, entry.Timestamp, from)
	if err != nil {
		return fmt.Errorf("repository.Assign exec: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("repository.Assign exists: %w", err)
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrStatusConflict
	}

	const insertHistory = `
		INSERT INTO order_status_history (order_id, status, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insertHistory, orderID, entry.Status, entry.Actor, entry.Note, entry.Timestamp); err != nil {
		return fmt.Errorf("repository.Assign history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.Assign commit: %w", err)
	}
	return nil
}
