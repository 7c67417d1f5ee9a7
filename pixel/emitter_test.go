package pixel_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myseetara-source/seetara-website-sub001/conversion"
	"github.com/myseetara-source/seetara-website-sub001/ledger"
	"github.com/myseetara-source/seetara-website-sub001/metrics"
	"github.com/myseetara-source/seetara-website-sub001/orderid"
	"github.com/myseetara-source/seetara-website-sub001/pixel"
)

type trackCall struct {
	Event   conversion.EventName
	Params  conversion.PixelParams
	Options conversion.PixelOptions
}

type mockTracker struct {
	mu    sync.Mutex
	calls []trackCall
	err   error
}

func (m *mockTracker) Track(_ context.Context, event conversion.EventName, params conversion.PixelParams, opts conversion.PixelOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, trackCall{Event: event, Params: params, Options: opts})
	return nil
}

func (m *mockTracker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type failingLedger struct{ marks int }

func (f *failingLedger) HasFired(context.Context, string) (bool, error) {
	return false, errors.New("storage disabled")
}

func (f *failingLedger) MarkFired(context.Context, string) error {
	f.marks++
	return errors.New("storage disabled")
}

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

func newEmitter(tr pixel.Tracker, storage *ledger.SessionStorage, policy pixel.InvalidValuePolicy) *pixel.Emitter {
	return pixel.NewEmitter(tr, ledger.NewStorageLedger(storage), storage,
		pixel.Config{Currency: "BDT", InvalidValuePolicy: policy, Now: fixedNow}, nil)
}

func successQuery() url.Values {
	q := url.Values{}
	q.Set("order_id", "WEB1700000000123")
	q.Set("type", "buy")
	q.Set("total", "1800")
	q.Set("product", "Leather Tote")
	q.Set("variant", "Brown")
	return q
}

func TestEmitter_ConfirmationScenario(t *testing.T) {
	storage := ledger.NewSessionStorage()
	tracker := &mockTracker{}
	ctx := context.Background()

	// First view: pre-hydration render, then hydrate.
	e := newEmitter(tracker, storage, pixel.PolicySuppress)
	assert.Equal(t, pixel.StateAwaitingHydration, e.Run(ctx, successQuery()))
	assert.Equal(t, 0, tracker.count())

	e.Hydrate()
	assert.Equal(t, pixel.StateFired, e.Run(ctx, successQuery()))
	require.Equal(t, 1, tracker.count())

	call := tracker.calls[0]
	assert.Equal(t, conversion.EventPurchase, call.Event)
	assert.Equal(t, "WEB1700000000123", call.Options.EventID)
	assert.Equal(t, "WEB1700000000123", call.Params.OrderID)
	require.NotNil(t, call.Params.Value)
	assert.Equal(t, 1800.0, *call.Params.Value)
	assert.Equal(t, "BDT", call.Params.Currency)
	assert.Equal(t, "Leather Tote - Brown", call.Params.ContentName)

	v, ok, _ := storage.GetItem("pixel_fired_WEB1700000000123")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	// Refresh: a new view instance over the same session.
	reload := newEmitter(tracker, storage, pixel.PolicySuppress)
	reload.Hydrate()
	assert.Equal(t, pixel.StateSkipped, reload.Run(ctx, successQuery()))
	id, ok := reload.LockedID()
	assert.True(t, ok)
	assert.Equal(t, orderid.OrderID("WEB1700000000123"), id)
	assert.Equal(t, 1, tracker.count())
}

func TestEmitter_AtMostOnceAcrossRerenders(t *testing.T) {
	storage := ledger.NewSessionStorage()
	tracker := &mockTracker{}
	ctx := context.Background()

	for view := 0; view < 3; view++ {
		e := newEmitter(tracker, storage, pixel.PolicySuppress)
		e.Hydrate()
		for render := 0; render < 5; render++ {
			e.Run(ctx, successQuery())
		}
	}
	assert.Equal(t, 1, tracker.count())
}

func TestEmitter_NoFireBeforeHydration(t *testing.T) {
	tracker := &mockTracker{}
	e := newEmitter(tracker, ledger.NewSessionStorage(), pixel.PolicySuppress)

	for i := 0; i < 10; i++ {
		assert.Equal(t, pixel.StateAwaitingHydration, e.Run(context.Background(), successQuery()))
	}
	assert.Equal(t, 0, tracker.count())
	_, locked := e.LockedID()
	assert.False(t, locked, "id must not lock before hydration")
}

func TestEmitter_LockedIDIgnoresLaterQueryChanges(t *testing.T) {
	storage := ledger.NewSessionStorage()
	tracker := &mockTracker{err: pixel.ErrChannelUnavailable}
	ctx := context.Background()

	e := newEmitter(tracker, storage, pixel.PolicySuppress)
	e.Hydrate()
	e.Run(ctx, successQuery())

	other := successQuery()
	other.Set("order_id", "WEB1700000000999")
	e.Run(ctx, url.Values{})
	e.Run(ctx, other)

	id, ok := e.LockedID()
	require.True(t, ok)
	assert.Equal(t, orderid.OrderID("WEB1700000000123"), id)
}

func TestEmitter_LockHoldsWhileQueryEmpties(t *testing.T) {
	storage := ledger.NewSessionStorage()
	ctx := context.Background()

	tracker := &mockTracker{}
	e := pixel.NewEmitter(tracker, ledger.NewStorageLedger(storage), storage,
		pixel.Config{Now: fixedNow}, nil)
	e.Hydrate()
	assert.Equal(t, pixel.StateFired, e.Run(ctx, successQuery()))
	assert.Equal(t, pixel.StateFired, e.Run(ctx, url.Values{}))
	assert.Equal(t, 1, tracker.count())
}

func TestEmitter_NoIDNeverFires(t *testing.T) {
	tracker := &mockTracker{}
	e := newEmitter(tracker, ledger.NewSessionStorage(), pixel.PolicySuppress)
	e.Hydrate()

	q := successQuery()
	q.Del("order_id")
	for i := 0; i < 3; i++ {
		assert.Equal(t, pixel.StateAwaitingStableID, e.Run(context.Background(), q))
	}
	assert.Equal(t, 0, tracker.count())
}

func TestEmitter_FallbackToPendingOrderID(t *testing.T) {
	storage := ledger.NewSessionStorage()
	require.NoError(t, pixel.SavePending(storage, "WEB1700000000456ABCDEF", pixel.TypeBuy, "2,450"))
	tracker := &mockTracker{}
	ctx := context.Background()

	e := newEmitter(tracker, storage, pixel.PolicySuppress)
	e.Hydrate()
	assert.Equal(t, pixel.StateFired, e.Run(ctx, url.Values{}))
	e.Run(ctx, url.Values{})

	require.Equal(t, 1, tracker.count())
	assert.Equal(t, "WEB1700000000456ABCDEF", tracker.calls[0].Options.EventID)
	assert.Equal(t, 2450.0, *tracker.calls[0].Params.Value)

	reload := newEmitter(tracker, storage, pixel.PolicySuppress)
	reload.Hydrate()
	assert.Equal(t, pixel.StateSkipped, reload.Run(ctx, url.Values{}))
	assert.Equal(t, 1, tracker.count())
}

func TestEmitter_InquiryFiresLeadWithoutValue(t *testing.T) {
	tracker := &mockTracker{}
	e := newEmitter(tracker, ledger.NewSessionStorage(), pixel.PolicySuppress)
	e.Hydrate()

	q := url.Values{}
	q.Set("order_id", "WEB1700000000789")
	q.Set("type", "inquiry")
	q.Set("product", "Crossbody Bag")
	assert.Equal(t, pixel.StateFired, e.Run(context.Background(), q))

	require.Equal(t, 1, tracker.count())
	assert.Equal(t, conversion.EventLead, tracker.calls[0].Event)
	assert.Nil(t, tracker.calls[0].Params.Value)
}

func TestEmitter_InvalidTotal(t *testing.T) {
	q := successQuery()
	q.Set("total", "call for price")

	t.Run("suppress", func(t *testing.T) {
		storage := ledger.NewSessionStorage()
		tracker := &mockTracker{}
		e := newEmitter(tracker, storage, pixel.PolicySuppress)
		e.Hydrate()
		assert.Equal(t, pixel.StateSuppressed, e.Run(context.Background(), q))
		assert.Equal(t, 0, tracker.count())
		_, ok, _ := storage.GetItem("pixel_fired_WEB1700000000123")
		assert.False(t, ok)
	})

	t.Run("fire_zero", func(t *testing.T) {
		tracker := &mockTracker{}
		e := newEmitter(tracker, ledger.NewSessionStorage(), pixel.PolicyFireZero)
		e.Hydrate()
		assert.Equal(t, pixel.StateFired, e.Run(context.Background(), q))
		require.Equal(t, 1, tracker.count())
		require.NotNil(t, tracker.calls[0].Params.Value)
		assert.Equal(t, 0.0, *tracker.calls[0].Params.Value)
	})
}

func TestEmitter_ChannelUnavailableIsSilent(t *testing.T) {
	storage := ledger.NewSessionStorage()
	tracker := &mockTracker{err: pixel.ErrChannelUnavailable}
	ctx := context.Background()

	e := newEmitter(tracker, storage, pixel.PolicySuppress)
	e.Hydrate()
	assert.Equal(t, pixel.StateUnavailable, e.Run(ctx, successQuery()))
	assert.Equal(t, pixel.StateUnavailable, e.Run(ctx, successQuery()))

	_, ok, _ := storage.GetItem("pixel_fired_WEB1700000000123")
	assert.False(t, ok, "nothing was sent so nothing is recorded")

	// Nil tracker behaves the same way.
	e = newEmitter(nil, storage, pixel.PolicySuppress)
	e.Hydrate()
	assert.Equal(t, pixel.StateUnavailable, e.Run(ctx, successQuery()))
}

func TestEmitter_LedgerFailureStillFires(t *testing.T) {
	tracker := &mockTracker{}
	l := &failingLedger{}
	e := pixel.NewEmitter(tracker, l, ledger.NewSessionStorage(), pixel.Config{Now: fixedNow}, nil)
	e.Hydrate()

	assert.Equal(t, pixel.StateFired, e.Run(context.Background(), successQuery()))
	assert.Equal(t, 1, tracker.count())
	assert.Equal(t, 1, l.marks)
}

func pixelCount(event, outcome string) float64 {
	return testutil.ToFloat64(metrics.ConversionEvents.WithLabelValues("pixel", event, outcome))
}

func TestEmitter_RecordsOutcomeMetrics(t *testing.T) {
	ctx := context.Background()
	sent := pixelCount("Purchase", metrics.OutcomeSent)
	skipped := pixelCount("Purchase", metrics.OutcomeSkippedDuplicate)
	suppressed := pixelCount("Purchase", metrics.OutcomeSuppressed)
	failed := pixelCount("Purchase", metrics.OutcomeFailed)

	storage := ledger.NewSessionStorage()
	e := newEmitter(&mockTracker{}, storage, pixel.PolicySuppress)
	e.Hydrate()
	require.Equal(t, pixel.StateFired, e.Run(ctx, successQuery()))

	e = newEmitter(&mockTracker{}, storage, pixel.PolicySuppress)
	e.Hydrate()
	require.Equal(t, pixel.StateSkipped, e.Run(ctx, successQuery()))

	bad := successQuery()
	bad.Set("order_id", "WEB1700000000999")
	bad.Set("total", "n/a")
	e = newEmitter(&mockTracker{}, ledger.NewSessionStorage(), pixel.PolicySuppress)
	e.Hydrate()
	require.Equal(t, pixel.StateSuppressed, e.Run(ctx, bad))

	e = newEmitter(&mockTracker{err: pixel.ErrChannelUnavailable}, ledger.NewSessionStorage(), pixel.PolicySuppress)
	e.Hydrate()
	require.Equal(t, pixel.StateUnavailable, e.Run(ctx, successQuery()))

	assert.Equal(t, sent+1, pixelCount("Purchase", metrics.OutcomeSent))
	assert.Equal(t, skipped+1, pixelCount("Purchase", metrics.OutcomeSkippedDuplicate))
	assert.Equal(t, suppressed+1, pixelCount("Purchase", metrics.OutcomeSuppressed))
	assert.Equal(t, failed+1, pixelCount("Purchase", metrics.OutcomeFailed))
}

func TestWriterTracker(t *testing.T) {
	var buf bytes.Buffer
	e := pixel.NewEmitter(pixel.NewWriterTracker(&buf), ledger.NewStorageLedger(ledger.NewSessionStorage()),
		nil, pixel.Config{Now: fixedNow}, nil)
	e.Hydrate()
	require.Equal(t, pixel.StateFired, e.Run(context.Background(), successQuery()))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, "Purchase", payload["event"])
	assert.Equal(t, "WEB1700000000123", payload["options"].(map[string]any)["eventID"])
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, pixel.PolicyFireZero, pixel.ParsePolicy(" FIRE_ZERO "))
	assert.Equal(t, pixel.PolicySuppress, pixel.ParsePolicy("suppress"))
	assert.Equal(t, pixel.PolicySuppress, pixel.ParsePolicy("whatever"))
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, pixel.StateAwaitingHydration.Terminal())
	assert.False(t, pixel.StateAwaitingStableID.Terminal())
	assert.True(t, pixel.StateFired.Terminal())
	assert.True(t, pixel.StateSkipped.Terminal())
	assert.Equal(t, "awaiting_stable_id", pixel.StateAwaitingStableID.String())
}
