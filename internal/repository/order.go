package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rastreio-bot/internal/model"
)

const orderColumns = `id, name, phone, product, tracking_code, carrier_status,
	last_location, last_update, last_notified_status, unread_count,
	last_message, last_message_at, profile_picture_url, created_at`

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		order         model.Order
		trackingCode  sql.NullString
		carrierStatus sql.NullString
		watermark     sql.NullString
		lastMessageAt sql.NullTime
	)
	err := row.Scan(
		&order.ID,
		&order.Name,
		&order.Phone,
		&order.Product,
		&trackingCode,
		&carrierStatus,
		&order.LastLocation,
		&order.LastUpdate,
		&watermark,
		&order.UnreadCount,
		&order.LastMessage,
		&lastMessageAt,
		&order.ProfilePictureURL,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.TrackingCode = nullableString(trackingCode)
	order.CarrierStatus = nullableString(carrierStatus)
	order.LastNotifiedStatus = nullableString(watermark)
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		order.LastMessageAt = &t
	}
	return &order, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// toNull maps nil and blank strings to SQL NULL
func toNull(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}

// List returns all orders, newest first. A non-empty search filters by
// name or phone substring.
func (r *OrderRepository) List(ctx context.Context, search string) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE name LIKE ? OR phone LIKE ?`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// Get gets an order by id. Returns nil, nil when absent.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return order, nil
}

// FindByPhone gets the order owning any of the given phone variants.
// Returns nil, nil when absent.
func (r *OrderRepository) FindByPhone(ctx context.Context, phones ...string) (*model.Order, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(phones)), ",")
	args := make([]any, 0, len(phones))
	for _, p := range phones {
		args = append(args, p)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE phone IN (`+placeholders+`) ORDER BY id LIMIT 1`,
		args...,
	)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by phone: %w", err)
	}
	return order, nil
}

// Create inserts an order. Returns ErrDuplicatePhone when the phone is taken.
func (r *OrderRepository) Create(ctx context.Context, in model.NewOrder) (*model.Order, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (name, phone, product, tracking_code, profile_picture_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.Name, in.Phone, in.Product, toNull(in.TrackingCode), in.ProfilePictureURL, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePhone
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read order id: %w", err)
	}

	order, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %d vanished after insert", id)
	}
	return order, nil
}

// Update applies a partial update and returns the number of changed rows
func (r *OrderRepository) Update(ctx context.Context, id int64, u model.OrderUpdate) (int64, error) {
	if u.IsEmpty() {
		return 0, nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if u.Name != nil {
		set("name", strings.TrimSpace(*u.Name))
	}
	if u.Phone != nil {
		set("phone", *u.Phone)
	}
	if u.Product != nil {
		set("product", strings.TrimSpace(*u.Product))
	}
	if u.TrackingCode != nil {
		set("tracking_code", toNull(u.TrackingCode))
	}
	if u.CarrierStatus != nil {
		set("carrier_status", toNull(u.CarrierStatus))
	}
	if u.LastLocation != nil {
		set("last_location", *u.LastLocation)
	}
	if u.LastUpdate != nil {
		set("last_update", *u.LastUpdate)
	}
	if u.LastNotifiedStatus != nil {
		set("last_notified_status", toNull(u.LastNotifiedStatus))
	}
	if u.ProfilePictureURL != nil {
		set("profile_picture_url", *u.ProfilePictureURL)
	}

	args = append(args, id)
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicatePhone
		}
		return 0, fmt.Errorf("failed to update order %d: %w", id, err)
	}
	return result.RowsAffected()
}

// Delete removes an order; its history goes with it
func (r *OrderRepository) Delete(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	return result.RowsAffected()
}

// IncrementUnread atomically bumps the unread counter
func (r *OrderRepository) IncrementUnread(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET unread_count = unread_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment unread for order %d: %w", id, err)
	}
	return nil
}

// ClearUnread resets the unread counter and returns the number of changed rows
func (r *OrderRepository) ClearUnread(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE orders SET unread_count = 0 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to clear unread for order %d: %w", id, err)
	}
	return result.RowsAffected()
}

// Count returns the number of orders
func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	return count, err
}
