package relay_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myseetara-source/seetara-website-sub001/capi"
	"github.com/myseetara-source/seetara-website-sub001/conversion"
	"github.com/myseetara-source/seetara-website-sub001/ledger"
	"github.com/myseetara-source/seetara-website-sub001/models"
	"github.com/myseetara-source/seetara-website-sub001/pixel"
	"github.com/myseetara-source/seetara-website-sub001/relay"
)

type mockSender struct {
	mu     sync.Mutex
	events []conversion.Event
	err    error
	delay  time.Duration
}

func (m *mockSender) Send(_ context.Context, e conversion.Event, _ capi.UserData) (capi.Response, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return capi.Response{}, m.err
	}
	m.events = append(m.events, e)
	return capi.Response{EventsReceived: 1, FBTraceID: "trace"}, nil
}

func (m *mockSender) sent() []conversion.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]conversion.Event(nil), m.events...)
}

type mockAudit struct {
	mu     sync.Mutex
	events []interface{}
}

func (m *mockAudit) Publish(_ context.Context, _ string, event interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

type brokenLedger struct{}

func (brokenLedger) HasFired(context.Context, string) (bool, error) { return false, errors.New("down") }
func (brokenLedger) MarkFired(context.Context, string) error        { return errors.New("down") }
func (brokenLedger) Claim(context.Context, string) (bool, error)    { return false, errors.New("down") }
func (brokenLedger) Release(context.Context, string) error          { return errors.New("down") }

func cancellation() relay.Transition {
	return relay.Transition{
		OrderID:  "WEB1700000000123",
		From:     models.StatusConfirmed,
		To:       models.StatusCancelled,
		Total:    1800,
		Currency: "BDT",
		Content:  conversion.Content{Name: "Leather Tote", Variant: "Brown"},
		At:       time.Unix(1700000500, 0),
	}
}

func TestHandle_CancellationSendsRefundOnce(t *testing.T) {
	sender := &mockSender{}
	audit := &mockAudit{}
	r := relay.New(sender, ledger.NewMemoryLedger(ledger.ChannelServer, 0), nil, relay.WithAudit(audit))

	assert.Equal(t, relay.OutcomeSent, r.Handle(context.Background(), cancellation()))
	assert.Equal(t, relay.OutcomeDuplicate, r.Handle(context.Background(), cancellation()))

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, conversion.EventRefund, sent[0].Name())
	assert.Equal(t, "WEB1700000000123", sent[0].DedupKey().String())

	require.Len(t, audit.events, 1)
	assert.Equal(t, "Refund", audit.events[0].(models.ConversionAuditEvent).EventName)
}

func TestHandle_ConcurrentRetriesSendOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sender := &mockSender{delay: 5 * time.Millisecond}
	r := relay.New(sender, ledger.NewRedisLedger(rdb, "", ledger.ChannelServer, time.Hour), nil)

	for i := 0; i < 10; i++ {
		r.Dispatch(cancellation())
	}
	r.Wait()
	assert.Len(t, sender.sent(), 1)
}

func TestHandle_PurchaseAndRefundAreSeparateKeys(t *testing.T) {
	sender := &mockSender{}
	r := relay.New(sender, ledger.NewMemoryLedger(ledger.ChannelServer, 0), nil)

	confirm := cancellation()
	confirm.From, confirm.To = models.StatusIntake, models.StatusConfirmed

	assert.Equal(t, relay.OutcomeSent, r.Handle(context.Background(), confirm))
	assert.Equal(t, relay.OutcomeSent, r.Handle(context.Background(), cancellation()))
	assert.Len(t, sender.sent(), 2)
}

func TestHandle_NoEventTransitions(t *testing.T) {
	sender := &mockSender{}
	r := relay.New(sender, ledger.NewMemoryLedger(ledger.ChannelServer, 0), nil)

	shipped := cancellation()
	shipped.To = models.StatusShipped
	assert.Equal(t, relay.OutcomeNoEvent, r.Handle(context.Background(), shipped))

	same := cancellation()
	same.From = models.StatusCancelled
	assert.Equal(t, relay.OutcomeNoEvent, r.Handle(context.Background(), same))

	inquiry := cancellation()
	inquiry.Inquiry = true
	assert.Equal(t, relay.OutcomeNoEvent, r.Handle(context.Background(), inquiry))

	assert.Empty(t, sender.sent())
}

func TestHandle_NonPositivePurchaseSuppressed(t *testing.T) {
	sender := &mockSender{}
	r := relay.New(sender, ledger.NewMemoryLedger(ledger.ChannelServer, 0), nil)

	confirm := cancellation()
	confirm.From, confirm.To, confirm.Total = models.StatusIntake, models.StatusConfirmed, 0
	assert.Equal(t, relay.OutcomeSuppressed, r.Handle(context.Background(), confirm))
	assert.Empty(t, sender.sent())
}

func TestHandle_ZeroTotalCancellationSuppressed(t *testing.T) {
	sender := &mockSender{}
	l := ledger.NewMemoryLedger(ledger.ChannelServer, 0)
	r := relay.New(sender, l, nil)

	cancel := cancellation()
	cancel.Total = 0
	assert.Equal(t, relay.OutcomeSuppressed, r.Handle(context.Background(), cancel))
	assert.Empty(t, sender.sent())

	fired, _ := l.HasFired(context.Background(), "WEB1700000000123:Refund")
	assert.False(t, fired)
}

func TestHandle_SendFailureIsContained(t *testing.T) {
	sender := &mockSender{err: capi.ErrTransmission}
	r := relay.New(sender, ledger.NewMemoryLedger(ledger.ChannelServer, 0), nil)

	assert.Equal(t, relay.OutcomeFailed, r.Handle(context.Background(), cancellation()))
}

func TestHandle_FailedSendCanBeRetried(t *testing.T) {
	l := ledger.NewMemoryLedger(ledger.ChannelServer, 0)
	confirm := cancellation()
	confirm.From, confirm.To = models.StatusIntake, models.StatusConfirmed

	failing := &mockSender{err: capi.ErrTransmission}
	assert.Equal(t, relay.OutcomeFailed, relay.New(failing, l, nil).Handle(context.Background(), confirm))

	fired, err := l.HasFired(context.Background(), "WEB1700000000123:Purchase")
	require.NoError(t, err)
	assert.False(t, fired, "a failed send leaves no ledger entry")

	healthy := &mockSender{}
	r := relay.New(healthy, l, nil)
	assert.Equal(t, relay.OutcomeSent, r.Handle(context.Background(), confirm))
	assert.Equal(t, relay.OutcomeDuplicate, r.Handle(context.Background(), confirm))
	require.Len(t, healthy.sent(), 1)
	assert.Equal(t, conversion.EventPurchase, healthy.sent()[0].Name())
}

func TestHandle_LedgerDownStillSends(t *testing.T) {
	sender := &mockSender{}
	r := relay.New(sender, brokenLedger{}, nil)

	assert.Equal(t, relay.OutcomeSent, r.Handle(context.Background(), cancellation()))
	assert.Len(t, sender.sent(), 1)
}

func TestHandle_DisabledSender(t *testing.T) {
	l := ledger.NewMemoryLedger(ledger.ChannelServer, 0)
	r := relay.New(nil, l, nil)

	assert.Equal(t, relay.OutcomeDisabled, r.Handle(context.Background(), cancellation()))
	fired, _ := l.HasFired(context.Background(), "WEB1700000000123:Refund")
	assert.False(t, fired, "nothing is claimed while the transport is off")
}

func TestDedupKeyMatchesClientEmitter(t *testing.T) {
	// Client side: the confirmation page fires for this order.
	tracker := &recordingTracker{}
	storage := ledger.NewSessionStorage()
	e := pixel.NewEmitter(tracker, ledger.NewStorageLedger(storage), storage, pixel.Config{}, nil)
	e.Hydrate()
	q := url.Values{}
	q.Set("order_id", "WEB1700000000123")
	q.Set("total", "1800")
	require.Equal(t, pixel.StateFired, e.Run(context.Background(), q))

	// Server side: the admin confirms the same order.
	sender := &mockSender{}
	r := relay.New(sender, ledger.NewMemoryLedger(ledger.ChannelServer, 0), nil)
	confirm := cancellation()
	confirm.From, confirm.To = models.StatusIntake, models.StatusConfirmed
	require.Equal(t, relay.OutcomeSent, r.Handle(context.Background(), confirm))

	server := capi.BuildServerEvent(sender.sent()[0], capi.UserData{}, "", time.Now())
	assert.Equal(t, tracker.eventID, server.EventID)
	assert.Equal(t, []byte(tracker.eventID), []byte(server.EventID))
}

type recordingTracker struct{ eventID string }

func (r *recordingTracker) Track(_ context.Context, _ conversion.EventName, _ conversion.PixelParams, opts conversion.PixelOptions) error {
	r.eventID = opts.EventID
	return nil
}
