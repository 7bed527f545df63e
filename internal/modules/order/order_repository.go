package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordering-and-delivery/internal/models"
)

// ErrDuplicateOrderNumber indicates an order-number collision on insert.
// The service regenerates the number and retries.
var ErrDuplicateOrderNumber = errors.New("order number already exists")

// RepositoryInterface defines the order persistence contract. Every mutation
// is atomic: the status guard in each UPDATE plus the row-level write lock is
// what serializes concurrent transitions on the same order.
type RepositoryInterface interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID string, status models.OrderStatus, page, limit int) ([]*models.Order, int, error)
	ListByAssignee(ctx context.Context, teamMemberID string, status models.OrderStatus, page, limit int) ([]*models.Order, int, error)
	ListAll(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error)

	// UpdateStatus commits a plain transition guarded by the expected
	// current status and appends the history entry in the same transaction.
	UpdateStatus(ctx context.Context, orderID string, from, to models.OrderStatus, entry models.StatusEntry) (*models.Order, error)
	// Cancel is UpdateStatus plus the payment-status derivation
	// (completed -> refunded, anything else -> cancelled).
	Cancel(ctx context.Context, orderID string, from models.OrderStatus, entry models.StatusEntry) (*models.Order, error)
	// CompleteDelivery atomically verifies the stored OTP code and moves
	// the order to delivered: the guard covers the status, the code, the
	// attempt cap, and the expiry, so a concurrent reissue, an exhausted
	// cap, or a racing second agent cannot slip through on a stale read.
	// Clears all OTP fields and marks payment completed.
	CompleteDelivery(ctx context.Context, orderID, code string, maxAttempts int, entry models.StatusEntry) (*models.Order, error)
	// RecordOTPMismatch increments the attempt counter unconditionally, so
	// concurrent wrong guesses each consume an attempt. The cap is enforced
	// in the same statement; once reached it returns ErrOTPAttemptsExceeded
	// and the counter stops moving. Returns the counter after the increment.
	RecordOTPMismatch(ctx context.Context, orderID string, maxAttempts int) (int, error)
	// SetOTP stores a freshly issued OTP, replacing code, expiry and
	// attempt count.
	SetOTP(ctx context.Context, orderID string, state models.OTPState) error
	// UpdatePaymentStatus moves an order's payment status, guarded by the
	// value the caller observed.
	UpdatePaymentStatus(ctx context.Context, orderID string, from, to models.PaymentStatus) error

	FindUser(ctx context.Context, userID string) (*models.User, error)
	GetStatistics(ctx context.Context) (*models.OrderStatistics, error)
}

// Repository implements RepositoryInterface over PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const orderColumns = `
	id, order_number, customer_id, service_id,
	subtotal, tax_amount, delivery_charge, discount_amount, total_amount,
	status, payment_status, assigned_to,
	delivery_otp, otp_expiry, otp_attempts,
	delivery_instructions, created_at, updated_at, delivered_at`

// Create inserts the order, its line items, and the initial history entry in
// one transaction. A unique violation on order_number surfaces as
// ErrDuplicateOrderNumber so the service can regenerate.
func (r *Repository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertOrder = `
		INSERT INTO orders (
			order_number, customer_id, service_id,
			subtotal, tax_amount, delivery_charge, discount_amount, total_amount,
			status, payment_status, delivery_otp, otp_expiry, otp_attempts,
			delivery_instructions
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, insertOrder,
		o.OrderNumber, o.CustomerID, o.ServiceID,
		o.Subtotal, o.TaxAmount, o.DeliveryCharge, o.DiscountAmount, o.TotalAmount,
		o.Status, o.PaymentStatus, nullIfEmpty(o.OTP.Code), nullIfZero(o.OTP.Expiry), o.OTP.Attempts,
		o.DeliveryInstructions,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateOrderNumber
		}
		return nil, fmt.Errorf("repository.Create order: %w", err)
	}

	const insertItem = `
		INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price_at_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	for i := range o.LineItems {
		li := &o.LineItems[i]
		if err := tx.QueryRow(ctx, insertItem,
			o.ID, li.MenuItemID, li.Name, li.Quantity, li.UnitPriceAtOrder,
		).Scan(&li.ID); err != nil {
			return nil, fmt.Errorf("repository.Create item: %w", err)
		}
	}

	for _, entry := range o.StatusHistory {
		if err := r.insertHistory(ctx, tx, o.ID, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.Create commit: %w", err)
	}
	return o, nil
}

func (r *Repository) insertHistory(ctx context.Context, tx pgx.Tx, orderID string, entry models.StatusEntry) error {
	const query = `
		INSERT INTO order_status_history (order_id, status, actor, note, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.Exec(ctx, query, orderID, entry.Status, entry.Actor, entry.Note, entry.Timestamp); err != nil {
		return fmt.Errorf("repository.insertHistory: %w", err)
	}
	return nil
}

// FindByID loads the order with its line items and full status history.
func (r *Repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := r.scanOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	if err := r.loadHistory(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var otpCode *string
	var otpExpiry *time.Time
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.ServiceID,
		&o.Subtotal, &o.TaxAmount, &o.DeliveryCharge, &o.DiscountAmount, &o.TotalAmount,
		&o.Status, &o.PaymentStatus, &o.AssignedTo,
		&otpCode, &otpExpiry, &o.OTP.Attempts,
		&o.DeliveryInstructions, &o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	if otpCode != nil {
		o.OTP.Code = *otpCode
	}
	if otpExpiry != nil {
		o.OTP.Expiry = *otpExpiry
	}
	return &o, nil
}

func (r *Repository) loadItems(ctx context.Context, o *models.Order) error {
	const query = `
		SELECT id, menu_item_id, name, quantity, unit_price_at_order
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, o.ID)
	if err != nil {
		return fmt.Errorf("repository.loadItems: %w", err)
	}
	defer rows.Close()

	o.LineItems = o.LineItems[:0]
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.ID, &li.MenuItemID, &li.Name, &li.Quantity, &li.UnitPriceAtOrder); err != nil {
			return fmt.Errorf("repository.loadItems scan: %w", err)
		}
		o.LineItems = append(o.LineItems, li)
	}
	return rows.Err()
}

func (r *Repository) loadHistory(ctx context.Context, o *models.Order) error {
	const query = `
		SELECT status, actor, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, o.ID)
	if err != nil {
		return fmt.Errorf("repository.loadHistory: %w", err)
	}
	defer rows.Close()

	o.StatusHistory = o.StatusHistory[:0]
	for rows.Next() {
		var e models.StatusEntry
		if err := rows.Scan(&e.Status, &e.Actor, &e.Note, &e.Timestamp); err != nil {
			return fmt.Errorf("repository.loadHistory scan: %w", err)
		}
		o.StatusHistory = append(o.StatusHistory, e)
	}
	return rows.Err()
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID string, status models.OrderStatus, page, limit int) ([]*models.Order, int, error) {
	where := `WHERE customer_id = $1`
	args := []any{customerID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}
	return r.list(ctx, where, args, page, limit)
}

// ListByAssignee returns a team member's assignments: the in-flight set by
// default, or exactly the requested status when one is given.
func (r *Repository) ListByAssignee(ctx context.Context, teamMemberID string, status models.OrderStatus, page, limit int) ([]*models.Order, int, error) {
	where := `WHERE assigned_to = $1 AND status IN ('confirmed', 'preparing', 'out_for_delivery')`
	args := []any{teamMemberID}
	if status != "" {
		where = `WHERE assigned_to = $1 AND status = $2`
		args = append(args, status)
	}
	return r.list(ctx, where, args, page, limit)
}

func (r *Repository) ListAll(ctx context.Context, status models.OrderStatus, page, limit int) ([]*models.Order, int, error) {
	where := ``
	var args []any
	if status != "" {
		where = `WHERE status = $1`
		args = append(args, status)
	}
	return r.list(ctx, where, args, page, limit)
}

func (r *Repository) list(ctx context.Context, where string, args []any, page, limit int) ([]*models.Order, int, error) {
	offset := (page - 1) * limit
	query := fmt.Sprintf(
		`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		orderColumns, where, limit, offset,
	)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.list query: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.list scan: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.list rows: %w", err)
	}

	for _, o := range orders {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, 0, err
		}
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.list count: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus performs the optimistic read-modify-write: the UPDATE only
// applies while the order still has the status the service validated
// against. Zero rows affected means either the order is gone or a concurrent
// transition won the race.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, from, to models.OrderStatus, entry models.StatusEntry) (*models.Order, error) {
	const query = `
		UPDATE orders
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`
	return r.guardedTransition(ctx, orderID, query, entry, orderID, from, to, entry.Timestamp)
}

func (r *Repository) Cancel(ctx context.Context, orderID string, from models.OrderStatus, entry models.StatusEntry) (*models.Order, error) {
	const query = `
		UPDATE orders
		SET status = 'cancelled',
		    payment_status = CASE WHEN payment_status = 'completed' THEN 'refunded' ELSE 'cancelled' END,
		    updated_at = $3
		WHERE id = $1 AND status = $2`
	return r.guardedTransition(ctx, orderID, query, entry, orderID, from, entry.Timestamp)
}

func (r *Repository) CompleteDelivery(ctx context.Context, orderID, code string, maxAttempts int, entry models.StatusEntry) (*models.Order, error) {
	const query = `
		UPDATE orders
		SET status = 'delivered',
		    payment_status = 'completed',
		    delivered_at = $3,
		    delivery_otp = NULL,
		    otp_expiry = NULL,
		    otp_attempts = 0,
		    updated_at = $3
		WHERE id = $1 AND status = 'out_for_delivery' AND delivery_otp = $2
		  AND otp_attempts < $4 AND otp_expiry >= $3`
	return r.guardedTransition(ctx, orderID, query, entry, orderID, code, entry.Timestamp, maxAttempts)
}

// guardedTransition runs a status-guarded UPDATE plus the history append in
// one transaction and returns the refreshed order.
func (r *Repository) guardedTransition(ctx context.Context, orderID, query string, entry models.StatusEntry, args ...any) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.guardedTransition begin: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.guardedTransition exec: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("repository.guardedTransition exists: %w", err)
		}
		if !exists {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrStatusConflict
	}

	if err := r.insertHistory(ctx, tx, orderID, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.guardedTransition commit: %w", err)
	}
	return r.FindByID(ctx, orderID)
}

func (r *Repository) RecordOTPMismatch(ctx context.Context, orderID string, maxAttempts int) (int, error) {
	const query = `
		UPDATE orders
		SET otp_attempts = otp_attempts + 1, updated_at = now()
		WHERE id = $1 AND delivery_otp IS NOT NULL AND otp_attempts < $2
		RETURNING otp_attempts`
	var attempts int
	err := r.db.QueryRow(ctx, query, orderID, maxAttempts).Scan(&attempts)
	if err == nil {
		return attempts, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("repository.RecordOTPMismatch: %w", err)
	}

	// Zero rows: the order is gone, no code is issued, or the cap is
	// already exhausted.
	var hasOTP bool
	checkErr := r.db.QueryRow(ctx, `SELECT delivery_otp IS NOT NULL FROM orders WHERE id = $1`, orderID).Scan(&hasOTP)
	if checkErr != nil {
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return 0, models.ErrNotFound
		}
		return 0, fmt.Errorf("repository.RecordOTPMismatch: %w", checkErr)
	}
	if !hasOTP {
		return 0, models.ErrOTPNotIssued
	}
	return 0, models.ErrOTPAttemptsExceeded
}

func (r *Repository) SetOTP(ctx context.Context, orderID string, state models.OTPState) error {
	const query = `
		UPDATE orders
		SET delivery_otp = $2, otp_expiry = $3, otp_attempts = $4, updated_at = now()
		WHERE id = $1 AND status NOT IN ('delivered', 'cancelled')`
	cmd, err := r.db.Exec(ctx, query, orderID, state.Code, state.Expiry, state.Attempts)
	if err != nil {
		return fmt.Errorf("repository.SetOTP: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, orderID string, from, to models.PaymentStatus) error {
	const query = `
		UPDATE orders
		SET payment_status = $3, updated_at = now()
		WHERE id = $1 AND payment_status = $2`
	cmd, err := r.db.Exec(ctx, query, orderID, from, to)
	if err != nil {
		return fmt.Errorf("repository.UpdatePaymentStatus: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrStatusConflict
	}
	return nil
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
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindUser: %w", err)
	}
	return &u, nil
}

func (r *Repository) GetStatistics(ctx context.Context) (*models.OrderStatistics, error) {
	stats := &models.OrderStatistics{StatusDistribution: make(map[models.OrderStatus]int)}

	const summary = `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(AVG(total_amount), 0)
		FROM orders`
	if err := r.db.QueryRow(ctx, summary).Scan(&stats.TotalOrders, &stats.TotalRevenue, &stats.AverageOrderValue); err != nil {
		return nil, fmt.Errorf("repository.GetStatistics summary: %w", err)
	}

	const byStatus = `SELECT status, COUNT(*) FROM orders GROUP BY status`
	rows, err := r.db.Query(ctx, byStatus)
	if err != nil {
		return nil, fmt.Errorf("repository.GetStatistics distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("repository.GetStatistics scan: %w", err)
		}
		stats.StatusDistribution[status] = count
	}
	return stats, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
