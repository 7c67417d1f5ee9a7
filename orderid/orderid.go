// Package orderid issues the order identifier that every conversion channel
// uses as its deduplication key.
//
// An OrderID is opaque. It is generated once when an order or inquiry is
// submitted and is then copied byte for byte into the redirect URL, the order
// row, the browser pixel event (eventID) and the server-side conversion event
// (event_id). Nothing may prefix, suffix or re-case it along the way.
package orderid

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix marks identifiers issued by the web storefront.
const Prefix = "WEB"

// MaxLength bounds identifiers accepted from untrusted input (query strings,
// queue messages).
const MaxLength = 64

var (
	ErrEmpty     = errors.New("order id is empty")
	ErrMalformed = errors.New("order id is malformed")
)

// OrderID is the shared dedup key of the browser and server conversion channels.
type OrderID string

func (id OrderID) String() string { return string(id) }

// IsZero reports whether no identifier has been resolved.
func (id OrderID) IsZero() bool { return id == "" }

// Parse accepts an identifier read from outside the process. The value is
// returned verbatim; only the character set and length are checked.
func Parse(raw string) (OrderID, error) {
	if raw == "" {
		return "", ErrEmpty
	}
	if len(raw) > MaxLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrMalformed, MaxLength)
	}
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrMalformed, r)
		}
	}
	return OrderID(raw), nil
}

// Issuer generates identifiers of the form WEB<unix millis><6 hex>. The random
// suffix keeps submissions landing in the same millisecond apart.
type Issuer struct {
	now    func() time.Time
	random func() uuid.UUID
}

// NewIssuer returns an Issuer backed by the wall clock and v4 UUIDs.
func NewIssuer() *Issuer {
	return &Issuer{now: time.Now, random: uuid.New}
}

// NewIssuerWith is used by tests to pin the clock and the random source.
func NewIssuerWith(now func() time.Time, random func() uuid.UUID) *Issuer {
	return &Issuer{now: now, random: random}
}

// Issue returns a new identifier. uuid.New panics when the system random
// source is unavailable, which stops the checkout before any order is stored.
func (i *Issuer) Issue() OrderID {
	millis := i.now().UnixMilli()
	r := i.random()
	suffix := strings.ToUpper(fmt.Sprintf("%x", r[:3]))
	return OrderID(fmt.Sprintf("%s%013d%s", Prefix, millis, suffix))
}
