// Package conversion defines the conversion events shared by the browser pixel
// and the server-side conversion API.
package conversion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/myseetara-source/seetara-website-sub001/orderid"
)

// EventName is the ad-platform event name.
type EventName string

const (
	EventPurchase EventName = "Purchase"
	EventLead     EventName = "Lead"
	EventRefund   EventName = "Refund"
)

var (
	ErrMissingOrderID = errors.New("conversion event requires an order id")
	ErrInvalidValue   = errors.New("conversion value must be a positive number")
)

// Content describes what was bought or asked about.
type Content struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Variant   string `json:"variant,omitempty"`
}

// Descriptor is the content_name sent to both channels: "<name> - <variant>".
func (c Content) Descriptor() string {
	name := strings.TrimSpace(c.Name)
	variant := strings.TrimSpace(c.Variant)
	switch {
	case name == "":
		return variant
	case variant == "":
		return name
	default:
		return name + " - " + variant
	}
}

// IDs returns content_ids; empty when no product id is known.
func (c Content) IDs() []string {
	if c.ProductID == "" {
		return nil
	}
	return []string{c.ProductID}
}

// Event is one of Purchase, Lead or Refund. The set is closed.
type Event interface {
	Name() EventName
	DedupKey() orderid.OrderID
	OccurredAt() time.Time
	isEvent()
}

// Purchase is a completed order. Value is always positive unless the event was
// built with LegacyZeroValuePurchase.
type Purchase struct {
	OrderID  orderid.OrderID
	Value    float64
	Currency string
	Content  Content
	Time     time.Time
}

// Lead is a product inquiry. It carries no monetary value.
type Lead struct {
	OrderID orderid.OrderID
	Content Content
	Time    time.Time
}

// Refund compensates a Purchase when an order is cancelled.
type Refund struct {
	OrderID  orderid.OrderID
	Value    float64
	Currency string
	Content  Content
	Time     time.Time
}

func (Purchase) Name() EventName             { return EventPurchase }
func (p Purchase) DedupKey() orderid.OrderID { return p.OrderID }
func (p Purchase) OccurredAt() time.Time     { return p.Time }
func (Purchase) isEvent()                    {}

func (Lead) Name() EventName             { return EventLead }
func (l Lead) DedupKey() orderid.OrderID { return l.OrderID }
func (l Lead) OccurredAt() time.Time     { return l.Time }
func (Lead) isEvent()                    {}

func (Refund) Name() EventName             { return EventRefund }
func (r Refund) DedupKey() orderid.OrderID { return r.OrderID }
func (r Refund) OccurredAt() time.Time     { return r.Time }
func (Refund) isEvent()                    {}

// NewPurchase validates and builds a Purchase.
func NewPurchase(id orderid.OrderID, value float64, currency string, content Content, at time.Time) (Purchase, error) {
	if id.IsZero() {
		return Purchase{}, ErrMissingOrderID
	}
	if !validAmount(value) || value == 0 {
		return Purchase{}, fmt.Errorf("%w: got %v", ErrInvalidValue, value)
	}
	return Purchase{OrderID: id, Value: value, Currency: normalizeCurrency(currency), Content: content, Time: at}, nil
}

// LegacyZeroValuePurchase builds a Purchase with value 0 for storefronts that
// opt into firing even when the order total could not be read.
func LegacyZeroValuePurchase(id orderid.OrderID, currency string, content Content, at time.Time) (Purchase, error) {
	if id.IsZero() {
		return Purchase{}, ErrMissingOrderID
	}
	return Purchase{OrderID: id, Currency: normalizeCurrency(currency), Content: content, Time: at}, nil
}

// NewLead builds a Lead.
func NewLead(id orderid.OrderID, content Content, at time.Time) (Lead, error) {
	if id.IsZero() {
		return Lead{}, ErrMissingOrderID
	}
	return Lead{OrderID: id, Content: content, Time: at}, nil
}

// NewRefund builds a Refund. Like a Purchase it needs a positive value; a
// cancelled order with no known total has nothing to reverse.
func NewRefund(id orderid.OrderID, value float64, currency string, content Content, at time.Time) (Refund, error) {
	if id.IsZero() {
		return Refund{}, ErrMissingOrderID
	}
	if !validAmount(value) || value == 0 {
		return Refund{}, fmt.Errorf("%w: got %v", ErrInvalidValue, value)
	}
	return Refund{OrderID: id, Value: value, Currency: normalizeCurrency(currency), Content: content, Time: at}, nil
}

// ValueOf returns the monetary value of e, or false for a Lead.
func ValueOf(e Event) (float64, string, bool) {
	switch ev := e.(type) {
	case Purchase:
		return ev.Value, ev.Currency, true
	case Refund:
		return ev.Value, ev.Currency, true
	default:
		return 0, "", false
	}
}

// ContentOf returns the content descriptor of any event.
func ContentOf(e Event) Content {
	switch ev := e.(type) {
	case Purchase:
		return ev.Content
	case Lead:
		return ev.Content
	case Refund:
		return ev.Content
	default:
		return Content{}
	}
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
