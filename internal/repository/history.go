package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rastreio-bot/internal/model"
)

const previewLength = 120

// HistoryRepository is the append-only per-order message ledger
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records a message and refreshes the order's last-message preview
// in the same transaction. Returns the new entry id.
func (r *HistoryRepository) Append(ctx context.Context, orderID int64, text, category string, direction model.Direction) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO message_history (order_id, text, category, direction, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, orderID, text, category, string(direction), now)
	if err != nil {
		return 0, fmt.Errorf("failed to append history for order %d: %w", orderID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read history id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET last_message = ?, last_message_at = ? WHERE id = ?`,
		preview(text), now, orderID,
	); err != nil {
		return 0, fmt.Errorf("failed to update message preview for order %d: %w", orderID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit history: %w", err)
	}
	return id, nil
}

// List returns an order's history, oldest first
func (r *HistoryRepository) List(ctx context.Context, orderID int64) ([]*model.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, text, category, direction, created_at
		FROM message_history
		WHERE order_id = ?
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for order %d: %w", orderID, err)
	}
	defer rows.Close()

	entries := make([]*model.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry     model.HistoryEntry
			direction string
		)
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.Text, &entry.Category, &direction, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Direction = model.Direction(direction)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return entries, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "…"
}
