// Package relay mirrors order conversions to the server-side conversion API.
//
// A Relay maps an order status transition to at most one conversion event,
// claims (order id, event) in its own ledger, and sends. It never reports
// failure to the caller that changed the order.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/myseetara-source/seetara-website-sub001/capi"
	"github.com/myseetara-source/seetara-website-sub001/conversion"
	"github.com/myseetara-source/seetara-website-sub001/ledger"
	"github.com/myseetara-source/seetara-website-sub001/metrics"
	"github.com/myseetara-source/seetara-website-sub001/models"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
	"github.com/myseetara-source/seetara-website-sub001/publisher"
)

// Sender transmits one event to the conversion API.
type Sender interface {
	Send(ctx context.Context, e conversion.Event, user capi.UserData) (capi.Response, error)
}

// Outcome is the result of handling one transition.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeDuplicate  Outcome = "skipped_duplicate"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
	OutcomeNoEvent    Outcome = "no_event"
	OutcomeDisabled   Outcome = "disabled"
)

// Transition is an order status change as the relay sees it.
type Transition struct {
	OrderID  orderid.OrderID
	Inquiry  bool
	From     string
	To       string
	Total    float64
	Currency string
	Content  conversion.Content
	Customer capi.UserData
	At       time.Time
}

type Relay struct {
	sender  Sender
	ledger  ledger.Claimer
	audit   publisher.EventPublisher
	cw      aws_pkg.MetricsRecorder
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

type Option func(*Relay)

// WithAudit publishes a conversion.sent event after every successful send.
func WithAudit(p publisher.EventPublisher) Option {
	return func(r *Relay) { r.audit = p }
}

// WithCloudWatch counts sends and failures in CloudWatch as well.
func WithCloudWatch(m aws_pkg.MetricsRecorder) Option {
	return func(r *Relay) { r.cw = m }
}

// WithTimeout bounds each Dispatch. The default is 15s.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) { r.timeout = d }
}

// New returns a Relay. A nil sender disables transmission.
func New(sender Sender, claimer ledger.Claimer, logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		sender:  sender,
		ledger:  claimer,
		logger:  logger,
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EventFor maps a transition to the event it should send. Confirmation sends
// Purchase, cancellation sends Refund, everything else sends nothing.
// Inquiries never send.
func EventFor(t Transition) (conversion.Event, error) {
	if t.Inquiry || t.From == t.To {
		return nil, nil
	}
	switch t.To {
	case models.StatusConfirmed:
		return conversion.NewPurchase(t.OrderID, t.Total, t.Currency, t.Content, t.At)
	case models.StatusCancelled:
		return conversion.NewRefund(t.OrderID, t.Total, t.Currency, t.Content, t.At)
	default:
		return nil, nil
	}
}

// Handle processes one transition synchronously.
func (r *Relay) Handle(ctx context.Context, t Transition) Outcome {
	log := r.logger.With(
		zap.String("order_id", t.OrderID.String()),
		zap.String("from", t.From),
		zap.String("to", t.To),
		zap.String("channel", string(ledger.ChannelServer)),
	)

	ev, err := EventFor(t)
	if err != nil {
		if errors.Is(err, conversion.ErrInvalidValue) {
			log.Warn("invalid order total, conversion suppressed", zap.Float64("total", t.Total))
		} else {
			log.Warn("cannot build conversion event", zap.Error(err))
		}
		metrics.ObserveConversion(string(ledger.ChannelServer), eventLabel(t), metrics.OutcomeSuppressed)
		return OutcomeSuppressed
	}
	if ev == nil {
		return OutcomeNoEvent
	}
	name := string(ev.Name())
	log = log.With(zap.String("event_name", name))

	if r.sender == nil {
		log.Debug("conversion API disabled")
		return OutcomeDisabled
	}

	key := ledger.ServerKey(t.OrderID, ev.Name())
	held := false
	if r.ledger != nil {
		claimed, err := r.ledger.Claim(ctx, key)
		switch {
		case err != nil:
			// The platform dedups on event_id; sending once more is the lesser harm.
			log.Warn("ledger claim failed, sending anyway", zap.Error(err))
		case !claimed:
			log.Info("conversion already sent")
			metrics.ObserveConversion(string(ledger.ChannelServer), name, metrics.OutcomeSkippedDuplicate)
			return OutcomeDuplicate
		default:
			held = true
		}
	}

	start := time.Now()
	resp, err := r.sender.Send(ctx, ev, t.Customer)
	metrics.ConversionSendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("conversion send failed", zap.Error(err))
		if held {
			// Only a successful send may leave an entry behind.
			if rerr := r.ledger.Release(context.WithoutCancel(ctx), key); rerr != nil {
				log.Warn("failed to release ledger claim", zap.Error(rerr))
			}
		}
		metrics.ObserveConversion(string(ledger.ChannelServer), name, metrics.OutcomeFailed)
		r.recordCloudWatch(ctx, aws_pkg.MetricConversionsFailed, name)
		return OutcomeFailed
	}

	log.Info("conversion sent", zap.Int("events_received", resp.EventsReceived), zap.String("trace_id", resp.FBTraceID))
	metrics.ObserveConversion(string(ledger.ChannelServer), name, metrics.OutcomeSent)
	r.recordCloudWatch(ctx, aws_pkg.MetricConversionsSent, name)
	r.publishAudit(ctx, ev, resp, log)
	return OutcomeSent
}

// Dispatch handles t in the background with its own deadline, detached from
// the caller's request context.
func (r *Relay) Dispatch(t Transition) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.Handle(ctx, t)
	}()
}

// Wait blocks until every dispatched transition has been handled.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) recordCloudWatch(ctx context.Context, metric, event string) {
	if r.cw == nil {
		return
	}
	if err := r.cw.RecordCount(ctx, metric, map[string]string{"event": event}); err != nil {
		r.logger.Debug("cloudwatch metric failed", zap.Error(err))
	}
}

func (r *Relay) publishAudit(ctx context.Context, ev conversion.Event, resp capi.Response, log *zap.Logger) {
	if r.audit == nil {
		return
	}
	value, currency, _ := conversion.ValueOf(ev)
	audit := models.ConversionAuditEvent{
		Event:     models.EventConversionSent,
		OrderID:   ev.DedupKey().String(),
		EventName: string(ev.Name()),
		Value:     value,
		Currency:  currency,
		TraceID:   resp.FBTraceID,
		Timestamp: time.Now().UTC(),
	}
	if err := r.audit.Publish(ctx, audit.OrderID, audit); err != nil {
		log.Warn("conversion audit publish failed", zap.Error(err))
	}
}

func eventLabel(t Transition) string {
	if t.To == models.StatusCancelled {
		return string(conversion.EventRefund)
	}
	return string(conversion.EventPurchase)
}
