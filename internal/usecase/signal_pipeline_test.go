package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/internal/repository"
)

type stubRenderer struct {
	img  []byte
	err  error
	reqs []domrepo.RenderRequest
}

func (r *stubRenderer) Render(_ context.Context, _ string, req domrepo.RenderRequest) ([]byte, error) {
	r.reqs = append(r.reqs, req)
	return r.img, r.err
}

type recordingForwarder struct {
	mu    sync.Mutex
	calls []*models.Correlation
	err   error
}

func (f *recordingForwarder) Name() string { return "recording" }

func (f *recordingForwarder) Forward(_ context.Context, _ *models.Alert, c *models.Correlation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

type memJournal struct {
	repository.NopJournal
	mu     sync.Mutex
	events []*models.SignalEvent
}

func (j *memJournal) Record(_ context.Context, ev *models.SignalEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

type pipelineFixture struct {
	store     *repository.StateStore
	registry  *DestinationRegistry
	deliverer *recordingDeliverer
	pipeline  *SignalPipeline
}

func newPipeline(t *testing.T, opts ...PipelineOption) *pipelineFixture {
	t.Helper()
	store := newStore(t)
	reg := NewDestinationRegistry(store, nopLogger(), "vip", nil)
	d := &recordingDeliverer{}
	p := NewSignalPipeline(store, NewCorrelator(store, nopLogger(), "BUY"), NewBroadcaster(reg, d, nopLogger()), nopLogger(), opts...)
	return &pipelineFixture{store: store, registry: reg, deliverer: d, pipeline: p}
}

func TestPipeline_OpeningScenario(t *testing.T) {
	ctx := context.Background()
	f := newPipeline(t)
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1002"))

	require.NoError(t, f.pipeline.Process(ctx, alert("vip", "EURUSD", "BUY")))

	stored, found, err := f.store.LastSignal(ctx, "vip", "EURUSD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "BUY", stored)
	assert.Equal(t, "EURUSD:last_signal", f.store.CorrelationKey("vip", "EURUSD"))

	got := f.deliverer.all()
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Contains(t, s.Text, "EURUSD")
		assert.Contains(t, s.Text, "BUY")
	}
}

func TestPipeline_ResultScenario(t *testing.T) {
	ctx := context.Background()
	journal := &memJournal{}
	f := newPipeline(t, WithJournal(journal))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))
	require.NoError(t, f.store.SetLastSignal(ctx, "vip", "EURUSD", "Buy"))

	price := decimal.RequireFromString("1.2345")
	a := alert("vip", "EURUSD", "LOSS")
	a.Price = &price
	require.NoError(t, f.pipeline.Process(ctx, a))

	got := f.deliverer.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "❌ <b>LOSS</b>")
	assert.Contains(t, got[0].Text, "BUY")
	assert.Contains(t, got[0].Text, "1.2345")

	require.Len(t, journal.events, 1)
	ev := journal.events[0]
	assert.Equal(t, models.KindResult, ev.Kind)
	assert.Equal(t, models.OutcomeLoss, ev.Outcome)
	assert.Equal(t, "Buy", ev.Direction)
	assert.Equal(t, 1, ev.Destinations)
}

func TestPipeline_InactiveSystemDoesNothing(t *testing.T) {
	ctx := context.Background()
	fwd := &recordingForwarder{}
	journal := &memJournal{}
	f := newPipeline(t, WithForwarder(fwd), WithJournal(journal))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))
	require.NoError(t, f.store.SetSystemActive(ctx, false))

	require.NoError(t, f.pipeline.Process(ctx, alert("vip", "EURUSD", "BUY")))

	_, found, err := f.store.LastSignal(ctx, "vip", "EURUSD")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, f.deliverer.all())
	assert.Empty(t, fwd.calls)
	assert.Empty(t, journal.events)
}

func TestPipeline_ResultChart(t *testing.T) {
	ctx := context.Background()
	r := &stubRenderer{img: []byte("png")}
	f := newPipeline(t, WithRenderer(r))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))

	a := alert("vip", "EURUSD", "WIN")
	a.Timeframe = "5MIN"
	require.NoError(t, f.pipeline.Process(ctx, a))

	got := f.deliverer.all()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("png"), got[0].Image)
	assert.Contains(t, got[0].Caption, "WIN")

	require.Len(t, r.reqs, 1)
	assert.True(t, r.reqs[0].Win)
	assert.Equal(t, "BUY", r.reqs[0].Direction)
	assert.Equal(t, 5*time.Minute, r.reqs[0].Span)
}

func TestPipeline_RendererFailureFallsBackToText(t *testing.T) {
	ctx := context.Background()
	r := &stubRenderer{err: models.ErrRendererUnavailable}
	f := newPipeline(t, WithRenderer(r))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))

	require.NoError(t, f.pipeline.Process(ctx, alert("vip", "EURUSD", "WIN")))

	got := f.deliverer.all()
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Image)
	assert.Contains(t, got[0].Text, "WIN")
}

func TestPipeline_OpeningSkipsRenderer(t *testing.T) {
	ctx := context.Background()
	r := &stubRenderer{img: []byte("png")}
	f := newPipeline(t, WithRenderer(r))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))

	require.NoError(t, f.pipeline.Process(ctx, alert("vip", "EURUSD", "SELL")))
	assert.Empty(t, r.reqs)
}

func TestPipeline_NoDestinationsStillForwards(t *testing.T) {
	ctx := context.Background()
	fwd := &recordingForwarder{err: errors.New("downstream 500")}
	f := newPipeline(t, WithForwarder(fwd))

	err := f.pipeline.Process(ctx, alert("gold", "XAUUSD", "BUY"))
	assert.ErrorIs(t, err, models.ErrNoDestinations)
	require.Len(t, fwd.calls, 1)
	assert.Equal(t, models.KindOpening, fwd.calls[0].Kind)
}

func TestPipeline_StoreDownStillDelivers(t *testing.T) {
	ctx := context.Background()
	store := brokenStore{newStore(t)}
	reg := NewDestinationRegistry(store, nopLogger(), "vip", []string{"-1001"})
	d := &recordingDeliverer{}
	p := NewSignalPipeline(store, NewCorrelator(store, nopLogger(), "BUY"), NewBroadcaster(reg, d, nopLogger()), nopLogger())

	require.NoError(t, p.Process(ctx, alert("vip", "EURUSD", "WIN")))
	got := d.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "BUY")
}

type panickingForwarder struct{}

func (panickingForwarder) Name() string { return "panic" }

func (panickingForwarder) Forward(context.Context, *models.Alert, *models.Correlation) error {
	panic("boom")
}

func TestPipeline_DispatchRecoversAndCloses(t *testing.T) {
	ctx := context.Background()
	f := newPipeline(t, WithForwarder(panickingForwarder{}))
	require.NoError(t, f.registry.Register(ctx, "vip", "-1001"))

	f.pipeline.Dispatch(alert("vip", "EURUSD", "BUY"))
	f.pipeline.Wait()
	assert.Len(t, f.deliverer.all(), 1)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.pipeline.Close(closeCtx))

	f.pipeline.Dispatch(alert("vip", "EURUSD", "SELL"))
	f.pipeline.Wait()
	assert.Len(t, f.deliverer.all(), 1)
}
