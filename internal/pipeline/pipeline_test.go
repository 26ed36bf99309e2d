package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/internal/audit"
	"quantgate/internal/cache"
	"quantgate/internal/config"
	"quantgate/internal/domain"
	"quantgate/internal/gates"
	"quantgate/internal/leverage"
	"quantgate/internal/portfolio"
)

// fakeFetcher serves canned snapshots and indicators.
type fakeFetcher struct {
	price          float64
	snapshotErr    error
	indicatorCalls int
}

func (f *fakeFetcher) FetchIndicators(_ context.Context, _, _ string) (domain.IndicatorSnapshot, error) {
	f.indicatorCalls++
	return domain.IndicatorSnapshot{"rsi_14": 55.0}, nil
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, symbol string) (*domain.MarketSnapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return domain.NewBaseSnapshot(domain.BaseSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Price:     f.price,
	}), nil
}

// fakeProvider returns a fixed decision per symbol.
type fakeProvider struct {
	decisions map[string]domain.Decision
}

func (f *fakeProvider) Decide(_ context.Context, snapshot *domain.MarketSnapshot, _ domain.EquityState, _ float64) (domain.Decision, string, error) {
	d, ok := f.decisions[snapshot.Base.Symbol]
	if !ok {
		d = domain.Decision{Action: domain.ActionHold, PositionType: domain.PositionSwing}
	}
	return d, `{"action":"` + string(d.Action) + `"}`, nil
}

// memorySink collects records in memory.
type memorySink struct {
	records []audit.CycleRecord
}

func (s *memorySink) Append(rec audit.CycleRecord) error {
	s.records = append(s.records, rec.Redacted())
	return nil
}

// failExecutor rejects every intent.
type failExecutor struct{}

func (failExecutor) Execute(context.Context, domain.OrderIntent) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{}, errors.New("exchange unavailable")
}

func newTestPipeline(symbols []string, fetcher *fakeFetcher, provider *fakeProvider, sink audit.Sink) *Pipeline {
	risk := config.RiskConfig{
		MaxEquityUsagePct: 0.30,
		SwingTargetPct:    0.25,
		ScalpTargetPct:    0.15,
		MinAllocationUSD:  3.0,
		MinNotionalUSD:    20.0,
		MaxLeverage:       10,
	}
	return New(Params{
		Symbols:  symbols,
		Mode:     "paper",
		Cache:    cache.New(nil),
		Fetcher:  fetcher,
		Provider: provider,
		Advisor:  leverage.NewAdvisor(),
		Alloc:    portfolio.NewAllocator(risk, nil),
		Book:     portfolio.NewPositionBook(),
		Gate:     gates.NewOrderGate(risk, nil),
		Executor: NewPaperExecutor(),
		Sink:     sink,
	})
}

func TestRunCycleApprovesBoundedEntry(t *testing.T) {
	sink := &memorySink{}
	fetcher := &fakeFetcher{price: 50000}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.5, // requests 500 of equity 1000
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
			Reason:       "breakout",
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, fetcher, provider, sink)

	err := p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000})
	require.NoError(t, err)
	require.Len(t, sink.records, 1)

	rec := sink.records[0]
	assert.True(t, rec.RiskApproved)
	assert.True(t, rec.Executed)
	assert.Equal(t, "long", rec.ParsedAction)
	assert.NotEmpty(t, rec.OrderID)

	// Swing ceiling caps 500 -> 250; 2x leverage at price 50k -> 0.01.
	assert.InDelta(t, 0.01, rec.FilledSize, 1e-9)

	// Margin committed for the position.
	assert.Equal(t, 250.0, p.book.Snapshot().Total())
}

func TestRunCycleHoldShortCircuits(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, &fakeProvider{}, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].RiskApproved)
	assert.False(t, sink.records[0].Executed)
	assert.Equal(t, "hold", sink.records[0].ParsedAction)
}

func TestRunCycleDeniesDustAllocation(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.5,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)

	// Equity 1: swing ceiling 0.25, below the $3 floor.
	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1}))
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].RiskApproved)
	assert.Equal(t, "allocation below minimum", sink.records[0].RiskReason)
}

func TestEntryDeniedBelowMinimumNotional(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.05,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)

	// Equity 100 at 2x: $5 margin is a $10 notional, under the $20
	// exchange minimum.
	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 100, AvailableCash: 100}))
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].RiskApproved)
	assert.Contains(t, sink.records[0].RiskReason, "below exchange minimum")
	assert.False(t, sink.records[0].Executed)
	assert.Empty(t, p.book.Snapshot())
}

func TestEntryDeniedOnInsufficientCash(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.5,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)

	// Equity supports a $250 margin but only $100 is free to commit.
	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 100}))
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].RiskApproved)
	assert.Contains(t, sink.records[0].RiskReason, "insufficient available cash")
	assert.Empty(t, p.book.Snapshot())
}

func TestRunCycleDeniesOnHardGateFailure(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.5,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	// Non-positive price fails the price gate (and zeroes the size).
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: -1}, provider, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].RiskApproved)
	assert.NotEmpty(t, sink.records[0].RiskReason)

	// Nothing committed on denial.
	assert.Empty(t, p.book.Snapshot())
}

func TestSequentialAllocationExhaustsBudget(t *testing.T) {
	sink := &memorySink{}
	decision := domain.Decision{
		Action:       domain.ActionLong,
		SizePct:      1.0,
		PositionType: domain.PositionSwing,
		Confidence:   0.95,
	}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": decision, "ETH/USDT": decision, "SOL/USDT": decision,
	}}
	p := newTestPipeline([]string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}, &fakeFetcher{price: 100}, provider, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	require.Len(t, sink.records, 3)

	// Budget 300: first symbol takes the 250 swing ceiling, second gets
	// the remaining 50, third is denied.
	assert.True(t, sink.records[0].RiskApproved)
	assert.True(t, sink.records[1].RiskApproved)
	assert.False(t, sink.records[2].RiskApproved)
	assert.Equal(t, 300.0, p.book.Snapshot().Total())
}

func TestCloseWithoutPositionDenied(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {Action: domain.ActionClose, PositionType: domain.PositionSwing},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].RiskApproved)
	assert.Equal(t, "no position to close", sink.records[0].RiskReason)
}

func TestEntryThenCloseReleasesMargin(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.2,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	assert.Equal(t, 200.0, p.book.Snapshot().Total())

	provider.decisions["BTC/USDT"] = domain.Decision{Action: domain.ActionClose, PositionType: domain.PositionSwing}
	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))

	assert.Empty(t, p.book.Snapshot())
	last := sink.records[len(sink.records)-1]
	assert.True(t, last.Executed)
	assert.Equal(t, "close", last.ParsedAction)
}

func TestEntryDeniedWhilePositionExists(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.2,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))

	require.Len(t, sink.records, 2)
	assert.True(t, sink.records[0].RiskApproved)
	assert.False(t, sink.records[1].RiskApproved)
	assert.Equal(t, "position already exists", sink.records[1].RiskReason)
}

func TestFetchFailureSkipsSymbolSilently(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{snapshotErr: errors.New("exchange down")}, &fakeProvider{}, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	assert.Empty(t, sink.records)
}

func TestExecutionFailureRecordedNotCommitted(t *testing.T) {
	sink := &memorySink{}
	provider := &fakeProvider{decisions: map[string]domain.Decision{
		"BTC/USDT": {
			Action:       domain.ActionLong,
			SizePct:      0.2,
			PositionType: domain.PositionSwing,
			Confidence:   0.9,
		},
	}}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, provider, sink)
	p.executor = failExecutor{}

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].RiskApproved)
	assert.False(t, sink.records[0].Executed)
	assert.Empty(t, p.book.Snapshot())
}

func TestRunCycleHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &memorySink{}
	p := newTestPipeline([]string{"BTC/USDT"}, &fakeFetcher{price: 50000}, &fakeProvider{}, sink)

	err := p.RunCycle(ctx, domain.EquityState{Equity: 1000, AvailableCash: 1000})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.records)
}

func TestIndicatorCacheReducesFetches(t *testing.T) {
	sink := &memorySink{}
	fetcher := &fakeFetcher{price: 50000}
	p := newTestPipeline([]string{"BTC/USDT"}, fetcher, &fakeProvider{}, sink)

	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	first := fetcher.indicatorCalls
	assert.Equal(t, 6, first) // one fetch per timeframe tier

	// Immediate second cycle: everything still fresh, no new fetches.
	require.NoError(t, p.RunCycle(context.Background(), domain.EquityState{Equity: 1000, AvailableCash: 1000}))
	assert.Equal(t, first, fetcher.indicatorCalls)
}
