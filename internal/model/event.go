package model

// Realtime event type discriminators
const (
	EventStatusUpdate = "status_update"
	EventNewMessage   = "nova_mensagem"
	EventNewContact   = "novo_contato"
	EventOrderUpdated = "pedido_atualizado"
	EventOrderRemoved = "pedido_removido"
)

// StatusUpdateEvent carries the session state to dashboards
type StatusUpdateEvent struct {
	Type string `json:"type"`
	SessionState
}

// NewStatusUpdateEvent wraps a session snapshot
func NewStatusUpdateEvent(state SessionState) StatusUpdateEvent {
	return StatusUpdateEvent{Type: EventStatusUpdate, SessionState: state}
}

// OrderEvent references an order by id
type OrderEvent struct {
	Type    string `json:"type"`
	OrderID int64  `json:"pedidoId"`
}

// NewMessageEvent signals a new history entry for an order
func NewMessageEvent(orderID int64) OrderEvent {
	return OrderEvent{Type: EventNewMessage, OrderID: orderID}
}

// OrderUpdatedEvent signals changed order fields
func OrderUpdatedEvent(orderID int64) OrderEvent {
	return OrderEvent{Type: EventOrderUpdated, OrderID: orderID}
}

// OrderRemovedEvent signals a deleted order
func OrderRemovedEvent(orderID int64) OrderEvent {
	return OrderEvent{Type: EventOrderRemoved, OrderID: orderID}
}

// NewContactEvent carries a freshly created order
type NewContactEvent struct {
	Type  string `json:"type"`
	Order *Order `json:"pedido"`
}

// NewNewContactEvent wraps a created order
func NewNewContactEvent(order *Order) NewContactEvent {
	return NewContactEvent{Type: EventNewContact, Order: order}
}
