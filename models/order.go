package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order kinds.
const (
	KindOrder   = "order"
	KindInquiry = "inquiry"
)

// Order statuses.
const (
	StatusIntake    = "intake"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Delivery zones.
const (
	ZoneInsideDhaka  = "inside_dhaka"
	ZoneOutsideDhaka = "outside_dhaka"
)

// Order is a storefront order or product inquiry. OrderNumber holds the
// order id issued at submission; it never changes.
type Order struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id"`
	Kind           string         `gorm:"type:varchar(16);not null;default:'order'" json:"kind"`
	Status         string         `gorm:"type:varchar(20);not null;default:'intake';index" json:"status"`
	CustomerName   string         `gorm:"not null" json:"customer_name"`
	Phone          string         `gorm:"type:varchar(20);not null" json:"phone"`
	Email          string         `json:"email,omitempty"`
	Address        string         `json:"address,omitempty"`
	City           string         `json:"city,omitempty"`
	Zone           string         `gorm:"type:varchar(20)" json:"zone,omitempty"`
	ProductID      string         `json:"product_id,omitempty"`
	ProductName    string         `gorm:"not null" json:"product_name"`
	Variant        string         `json:"variant,omitempty"`
	Quantity       int            `gorm:"not null;default:1" json:"quantity"`
	UnitPrice      int            `json:"unit_price"`
	DeliveryCharge int            `json:"delivery_charge"`
	Total          int            `json:"total"`
	Note           string         `json:"note,omitempty"`
	ConfirmedAt    *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns the row id so inserts work on postgres and sqlite alike.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o *Order) IsInquiry() bool {
	return o.Kind == KindInquiry
}

var transitions = map[string][]string{
	StatusIntake:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	switch s {
	case StatusIntake, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
// Delivered and cancelled orders are final.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
