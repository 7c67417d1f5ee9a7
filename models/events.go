package models

import "time"

// Event types published on the order topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventConversionSent     = "conversion.sent"
)

// OrderCreatedEvent is published after a checkout or inquiry is stored.
type OrderCreatedEvent struct {
	Event       string    `json:"event"`
	OrderID     string    `json:"order_id"`
	Kind        string    `json:"kind"`
	ProductName string    `json:"product_name"`
	Total       int       `json:"total"`
	Timestamp   time.Time `json:"timestamp"`
}

// OrderStatusEvent is published after a status change is stored.
type OrderStatusEvent struct {
	Event     string    `json:"event"`
	OrderID   string    `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusChangeMessage is what courier webhooks and back-office tools put on
// the status queue.
type StatusChangeMessage struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Actor   string `json:"actor,omitempty"`
}

// ConversionAuditEvent records a server conversion that was sent.
type ConversionAuditEvent struct {
	Event     string    `json:"event"`
	OrderID   string    `json:"order_id"`
	EventName string    `json:"event_name"`
	Value     float64   `json:"value"`
	Currency  string    `json:"currency"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
