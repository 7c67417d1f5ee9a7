// Package ledger records which conversion events a channel has already sent.
//
// Each channel owns its ledger: the browser pixel keeps one in session storage
// and the server relay keeps one in Redis, Postgres or DynamoDB. The two never
// read each other. They only agree on the key, which is the order id. The
// ledger is a best-effort guard; the ad platform does the final dedup.
package ledger

import (
	"context"
	"errors"

	"github.com/myseetara-source/seetara-website-sub001/conversion"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
)

// Channel namespaces ledger entries.
type Channel string

const (
	ChannelPixel  Channel = "pixel"
	ChannelServer Channel = "capi"
)

var ErrNilBackend = errors.New("ledger backend is not configured")

// Ledger answers "has this key already been sent on my channel?".
// MarkFired is idempotent and safe to call more than once.
type Ledger interface {
	HasFired(ctx context.Context, key string) (bool, error)
	MarkFired(ctx context.Context, key string) error
}

// Claimer adds an atomic check-and-mark. Claim returns true only for the
// first caller of a key, so concurrent retries cannot both send. Release drops
// a claim whose send failed; releasing an absent key is not an error.
type Claimer interface {
	Ledger
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// PixelKey is the per-order client key: pixel_fired_<order id>.
func PixelKey(id orderid.OrderID) string {
	return PixelKeyPrefix + id.String()
}

// PixelKeyPrefix prefixes every client ledger entry in session storage.
const PixelKeyPrefix = "pixel_fired_"

// ServerKey scopes the relay's idempotency record to (order id, event) so a
// Purchase and its compensating Refund are tracked separately.
func ServerKey(id orderid.OrderID, event conversion.EventName) string {
	return id.String() + ":" + string(event)
}
