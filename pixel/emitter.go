// Package pixel fires the browser-side conversion event on the order
// confirmation view.
//
// An Emitter lives for one page view. It does nothing until Hydrate is
// called, locks the order id on its first hydrated Run, and fires at most once
// per order id across views thanks to the session-storage ledger.
package pixel

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/myseetara-source/seetara-website-sub001/conversion"
	"github.com/myseetara-source/seetara-website-sub001/ledger"
	"github.com/myseetara-source/seetara-website-sub001/metrics"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
)

// Query parameters of the confirmation URL.
const (
	ParamOrderID   = "order_id"
	ParamType      = "type"
	ParamTotal     = "total"
	ParamProduct   = "product"
	ParamVariant   = "variant"
	ParamProductID = "product_id"

	TypeBuy     = "buy"
	TypeInquiry = "inquiry"
)

// Session-storage keys written at submission time as a fallback for a lost
// query string.
const (
	PendingOrderIDKey    = "pending_order_id"
	PendingOrderTotalKey = "pending_order_total"
	PendingOrderTypeKey  = "pending_order_type"
)

// InvalidValuePolicy decides what happens to a Purchase whose total does not
// parse as a positive number.
type InvalidValuePolicy string

const (
	PolicySuppress InvalidValuePolicy = "suppress"
	PolicyFireZero InvalidValuePolicy = "fire_zero"
)

// ParsePolicy maps a config string to a policy. Unknown values suppress.
func ParsePolicy(s string) InvalidValuePolicy {
	if InvalidValuePolicy(strings.ToLower(strings.TrimSpace(s))) == PolicyFireZero {
		return PolicyFireZero
	}
	return PolicySuppress
}

type Config struct {
	Currency           string
	InvalidValuePolicy InvalidValuePolicy
	Now                func() time.Time
}

// lockedOrder is the snapshot taken when the id locks. Later query changes
// never touch it.
type lockedOrder struct {
	id      orderid.OrderID
	kind    string
	total   string
	content conversion.Content
	source  string
}

type Emitter struct {
	mu       sync.Mutex
	tracker  Tracker
	ledger   ledger.Ledger
	storage  ledger.Storage
	cfg      Config
	logger   *zap.Logger
	hydrated bool
	state    State
	locked   *lockedOrder
}

func NewEmitter(tracker Tracker, l ledger.Ledger, storage ledger.Storage, cfg Config, logger *zap.Logger) *Emitter {
	if cfg.Currency == "" {
		cfg.Currency = "BDT"
	}
	if cfg.InvalidValuePolicy == "" {
		cfg.InvalidValuePolicy = PolicySuppress
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		tracker: tracker,
		ledger:  l,
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		state:   StateAwaitingHydration,
	}
}

// Hydrate signals that the client runtime has taken over the view.
func (e *Emitter) Hydrate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hydrated = true
	if e.state == StateAwaitingHydration {
		e.state = StateAwaitingStableID
	}
}

func (e *Emitter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LockedID returns the locked order id, if any.
func (e *Emitter) LockedID() (orderid.OrderID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked == nil {
		return "", false
	}
	return e.locked.id, true
}

// Run is the view effect. It may be called on every render with the current
// query; it fires at most once and returns the resulting state.
func (e *Emitter) Run(ctx context.Context, query url.Values) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Terminal() {
		return e.state
	}
	if !e.hydrated {
		e.state = StateAwaitingHydration
		return e.state
	}
	if e.locked == nil {
		locked, ok := e.resolve(query)
		if !ok {
			e.state = StateAwaitingStableID
			return e.state
		}
		e.locked = locked
		e.logger.Debug("order id locked",
			zap.String("order_id", locked.id.String()),
			zap.String("source", locked.source))
	}
	e.state = StateReadyToFire
	e.state = e.fire(ctx)
	return e.state
}

func (e *Emitter) resolve(query url.Values) (*lockedOrder, bool) {
	content := conversion.Content{
		ProductID: query.Get(ParamProductID),
		Name:      query.Get(ParamProduct),
		Variant:   query.Get(ParamVariant),
	}
	if id, err := orderid.Parse(query.Get(ParamOrderID)); err == nil {
		return &lockedOrder{
			id:      id,
			kind:    query.Get(ParamType),
			total:   query.Get(ParamTotal),
			content: content,
			source:  "query",
		}, true
	}

	if e.storage == nil {
		return nil, false
	}
	raw, ok, err := e.storage.GetItem(PendingOrderIDKey)
	if err != nil {
		e.logger.Warn("failed to read pending order id", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	id, err := orderid.Parse(raw)
	if err != nil {
		return nil, false
	}
	locked := &lockedOrder{
		id:      id,
		kind:    e.pendingOr(PendingOrderTypeKey, query.Get(ParamType)),
		total:   e.pendingOr(PendingOrderTotalKey, query.Get(ParamTotal)),
		content: content,
		source:  "pending",
	}
	return locked, true
}

func (e *Emitter) pendingOr(key, fallback string) string {
	if v, ok, err := e.storage.GetItem(key); err == nil && ok && v != "" {
		return v
	}
	return fallback
}

// fire runs ReadyToFire to a terminal state. Caller holds e.mu.
func (e *Emitter) fire(ctx context.Context) State {
	id := e.locked.id
	key := ledger.PixelKey(id)
	name := string(conversion.EventPurchase)
	if e.locked.kind == TypeInquiry {
		name = string(conversion.EventLead)
	}
	log := e.logger.With(zap.String("order_id", id.String()), zap.String("channel", string(ledger.ChannelPixel)))
	observe := func(outcome string) {
		metrics.ObserveConversion(string(ledger.ChannelPixel), name, outcome)
	}

	if e.ledger != nil {
		fired, err := e.ledger.HasFired(ctx, key)
		if err != nil {
			log.Warn("ledger check failed, treating as not fired", zap.Error(err))
		} else if fired {
			log.Debug("conversion already fired")
			observe(metrics.OutcomeSkippedDuplicate)
			return StateSkipped
		}
	}

	event, ok := e.buildEvent(log)
	if !ok {
		observe(metrics.OutcomeSuppressed)
		return StateSuppressed
	}

	if e.tracker == nil {
		log.Debug("tracking channel not loaded")
		observe(metrics.OutcomeFailed)
		return StateUnavailable
	}
	payload := conversion.ToPixel(event)
	if err := e.tracker.Track(ctx, payload.Event, payload.Params, payload.Options); err != nil {
		log.Debug("tracking channel unavailable", zap.Error(err))
		observe(metrics.OutcomeFailed)
		return StateUnavailable
	}
	observe(metrics.OutcomeSent)

	if e.ledger != nil {
		if err := e.ledger.MarkFired(ctx, key); err != nil {
			log.Warn("failed to record fired conversion", zap.Error(err))
		}
	}
	log.Info("conversion fired", zap.String("event_name", string(payload.Event)))
	return StateFired
}

func (e *Emitter) buildEvent(log *zap.Logger) (conversion.Event, bool) {
	l := e.locked
	at := e.cfg.Now()

	if l.kind == TypeInquiry {
		lead, err := conversion.NewLead(l.id, l.content, at)
		if err != nil {
			log.Warn("cannot build lead event", zap.Error(err))
			return nil, false
		}
		return lead, true
	}

	value, err := conversion.ParseValue(l.total)
	if err == nil {
		purchase, err := conversion.NewPurchase(l.id, value, e.cfg.Currency, l.content, at)
		if err == nil {
			return purchase, true
		}
	}
	if e.cfg.InvalidValuePolicy != PolicyFireZero {
		log.Warn("invalid order total, purchase suppressed", zap.String("total", l.total), zap.Error(err))
		return nil, false
	}
	log.Warn("invalid order total, firing purchase with zero value", zap.String("total", l.total), zap.Error(err))
	purchase, err := conversion.LegacyZeroValuePurchase(l.id, e.cfg.Currency, l.content, at)
	if err != nil {
		return nil, false
	}
	return purchase, true
}

// SavePending writes the fallback keys at submission time.
func SavePending(storage ledger.Storage, id orderid.OrderID, kind, total string) error {
	if err := storage.SetItem(PendingOrderIDKey, id.String()); err != nil {
		return err
	}
	if kind != "" {
		if err := storage.SetItem(PendingOrderTypeKey, kind); err != nil {
			return err
		}
	}
	if total != "" {
		if err := storage.SetItem(PendingOrderTotalKey, total); err != nil {
			return err
		}
	}
	return nil
}
