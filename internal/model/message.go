package model

import "time"

// Message categories recorded in the history ledger. Carrier status
// notifications use the status value itself as their category.
const (
	CategoryWelcome = "welcome"
	CategoryManual  = "manual"
	CategoryInbound = "inbound"
)

// Direction of a history entry
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// HistoryEntry is one message exchanged with a customer
type HistoryEntry struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"pedidoId"`
	Text      string    `json:"mensagem"`
	Category  string    `json:"tipo"`
	Direction Direction `json:"origem"`
	CreatedAt time.Time `json:"dataEnvio"`
}

// IncomingMessage represents a message received from WhatsApp
type IncomingMessage struct {
	MessageID  string    `json:"message_id"`
	FromPhone  string    `json:"from_phone"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	IsGroup    bool      `json:"is_group"`
	IsStatus   bool      `json:"is_status"`
	Timestamp  time.Time `json:"timestamp"`
}
