package service

import (
	"context"

	"rastreio-bot/internal/model"
)

// OrderStore is the durable order collaborator
type OrderStore interface {
	List(ctx context.Context, search string) ([]*model.Order, error)
	Get(ctx context.Context, id int64) (*model.Order, error)
	FindByPhone(ctx context.Context, phones ...string) (*model.Order, error)
	Create(ctx context.Context, in model.NewOrder) (*model.Order, error)
	Update(ctx context.Context, id int64, u model.OrderUpdate) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	IncrementUnread(ctx context.Context, id int64) error
	ClearUnread(ctx context.Context, id int64) (int64, error)
}

// HistoryStore is the append-only message ledger
type HistoryStore interface {
	Append(ctx context.Context, orderID int64, text, category string, direction model.Direction) (int64, error)
	List(ctx context.Context, orderID int64) ([]*model.HistoryEntry, error)
}

// Messenger is the outbound side of the messaging transport
type Messenger interface {
	SendText(ctx context.Context, phone, text string) error
	ProfilePictureURL(ctx context.Context, phone string) (string, error)
}

// Publisher fans events out to dashboard observers
type Publisher interface {
	Publish(event any)
}

// OrderNotifier sends the automatic message an order is due, if any
type OrderNotifier interface {
	EvaluateOrder(ctx context.Context, orderID int64) (bool, error)
}
