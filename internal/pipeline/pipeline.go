// Package pipeline wires the risk core together: indicator cache,
// leverage advisor, capital allocator, and order gate, evaluated once
// per symbol per polling cycle. Evaluation is strictly sequential;
// allocation decisions within a cycle form a single pass so committed
// margin is never double-spent.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quantgate/internal/audit"
	"quantgate/internal/cache"
	"quantgate/internal/data"
	"quantgate/internal/domain"
	"quantgate/internal/gates"
	"quantgate/internal/leverage"
	"quantgate/internal/metrics"
	"quantgate/internal/portfolio"
)

// timeframes the cache tracks per symbol, highest tier first.
var timeframes = []string{"1d", "4h", "1h", "15m", "5m", "1m"}

// DecisionProvider is the upstream signal producer. The pipeline treats
// its output as read-only and owns all risk gating downstream of it.
type DecisionProvider interface {
	// Decide returns the candidate decision plus the raw upstream
	// output for the audit trail.
	Decide(ctx context.Context, snapshot *domain.MarketSnapshot, equity domain.EquityState, positionSize float64) (domain.Decision, string, error)
}

// Executor dispatches approved order intents.
type Executor interface {
	Execute(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionResult, error)
}

// Pipeline evaluates symbols against the risk core each polling cycle.
type Pipeline struct {
	symbols  []string
	mode     string
	cache    *cache.IndicatorCache
	fetcher  data.Fetcher
	provider DecisionProvider
	advisor  *leverage.Advisor
	alloc    *portfolio.Allocator
	book     *portfolio.PositionBook
	gate     *gates.OrderGate
	executor Executor
	sink     audit.Sink

	// tracked position size per symbol; positive long, negative short.
	positions map[string]float64

	metrics *metrics.Registry
	log     zerolog.Logger
}

// Params collects the pipeline collaborators.
type Params struct {
	Symbols  []string
	Mode     string
	Cache    *cache.IndicatorCache
	Fetcher  data.Fetcher
	Provider DecisionProvider
	Advisor  *leverage.Advisor
	Alloc    *portfolio.Allocator
	Book     *portfolio.PositionBook
	Gate     *gates.OrderGate
	Executor Executor
	Sink     audit.Sink
	Metrics  *metrics.Registry
}

// New assembles a pipeline.
func New(p Params) *Pipeline {
	return &Pipeline{
		symbols:   p.Symbols,
		mode:      p.Mode,
		cache:     p.Cache,
		fetcher:   p.Fetcher,
		provider:  p.Provider,
		advisor:   p.Advisor,
		alloc:     p.Alloc,
		book:      p.Book,
		gate:      p.Gate,
		executor:  p.Executor,
		sink:      p.Sink,
		positions: make(map[string]float64),
		metrics:   p.Metrics,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// RunCycle evaluates every symbol once, sequentially. Cancellation is
// cooperative and checked at symbol boundaries; in-flight evaluation is
// bounded and non-blocking apart from data fetches.
func (p *Pipeline) RunCycle(ctx context.Context, equity domain.EquityState) error {
	start := time.Now()
	defer func() { p.metrics.ObserveCycle(time.Since(start).Seconds()) }()

	for _, symbol := range p.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.evaluateSymbol(ctx, symbol, equity)
	}
	return nil
}

// evaluateSymbol runs one symbol through the full gate chain. Denials
// are normal outcomes: the symbol is skipped, the cycle moves on.
func (p *Pipeline) evaluateSymbol(ctx context.Context, symbol string, equity domain.EquityState) {
	snapshot, err := p.marketSnapshot(ctx, symbol)
	if err != nil {
		// No fresh data this cycle; nothing to decide on.
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("skipping symbol, no market data")
		return
	}

	positionBefore := p.positions[symbol]
	record := audit.NewRecord(symbol, p.mode)
	record.MarketPrice = snapshot.CanonicalPrice()
	record.PositionBefore = positionBefore

	decision, raw, err := p.provider.Decide(ctx, snapshot, equity, positionBefore)
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("decision provider failed")
		return
	}
	record.LLMRawOutput = raw
	record.ParsedAction = string(decision.Action)
	record.ParsedSizePct = decision.SizePct
	record.ParsedReason = decision.Reason

	switch {
	case decision.Action == domain.ActionHold:
		record.RiskApproved = true
		p.append(record)
	case decision.Action == domain.ActionClose:
		p.evaluateClose(ctx, symbol, snapshot, decision, record)
	case decision.Action.IsEntry():
		p.evaluateEntry(ctx, symbol, snapshot, decision, equity, record)
	default:
		p.deny(record, fmt.Sprintf("unknown action %q", decision.Action))
	}
}

func (p *Pipeline) evaluateEntry(ctx context.Context, symbol string, snapshot *domain.MarketSnapshot, decision domain.Decision, equity domain.EquityState, record audit.CycleRecord) {
	positionBefore := p.positions[symbol]
	if positionBefore != 0 {
		p.deny(record, "position already exists")
		return
	}

	lev := p.advisor.Advise(equity.Equity, decision.Confidence)

	// Fresh snapshot per symbol: the allocation pass is sequential, so
	// margin committed earlier in this cycle is already visible here.
	requested := equity.Equity * decision.SizePct
	capital := p.alloc.CapCapital(decision.PositionType, requested, equity.Equity, p.book.Snapshot())
	if capital == 0 {
		p.deny(record, "allocation below minimum")
		return
	}

	price := snapshot.CanonicalPrice()
	var size float64
	if price > 0 {
		size = capital * float64(lev) / price
	}

	checks, ok := p.gate.ValidateAll(size, price, equity.Equity, equity.AvailableCash, capital, float64(lev))
	if !ok {
		p.deny(record, gates.FirstFailure(checks))
		return
	}

	intent := domain.OrderIntent{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Action:       decision.Action,
		PositionType: decision.PositionType,
		Capital:      capital,
		Leverage:     lev,
		Size:         size,
		Price:        price,
		StopLoss:     decision.StopLoss,
		TakeProfit:   decision.TakeProfit,
		Reason:       decision.Reason,
	}

	record.RiskApproved = true
	result, err := p.executor.Execute(ctx, intent)
	if err != nil {
		p.log.Error().Err(err).Str("symbol", symbol).Msg("execution failed")
		record.RiskReason = fmt.Sprintf("execution failed: %v", err)
		p.append(record)
		return
	}

	if result.Executed {
		p.book.Commit(symbol, decision.PositionType, capital)
		filled := result.FilledSize
		if decision.Action == domain.ActionShort {
			filled = -filled
		}
		p.positions[symbol] = positionBefore + filled
	}

	record.Executed = result.Executed
	record.OrderID = result.OrderID
	record.FilledSize = result.FilledSize
	record.FillPrice = result.FillPrice
	p.append(record)

	p.log.Info().Str("symbol", symbol).Str("action", string(decision.Action)).
		Float64("capital", capital).Int("leverage", lev).
		Msg("order intent dispatched")
}

func (p *Pipeline) evaluateClose(ctx context.Context, symbol string, snapshot *domain.MarketSnapshot, decision domain.Decision, record audit.CycleRecord) {
	position := p.positions[symbol]
	if position == 0 {
		p.deny(record, "no position to close")
		return
	}

	action := domain.ActionClose
	size := position
	if size < 0 {
		size = -size
	}

	intent := domain.OrderIntent{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Action:       action,
		PositionType: decision.PositionType,
		Size:         size,
		Price:        snapshot.CanonicalPrice(),
		Reason:       decision.Reason,
	}

	record.RiskApproved = true
	result, err := p.executor.Execute(ctx, intent)
	if err != nil {
		p.log.Error().Err(err).Str("symbol", symbol).Msg("close execution failed")
		record.RiskReason = fmt.Sprintf("execution failed: %v", err)
		p.append(record)
		return
	}

	if result.Executed {
		delete(p.positions, symbol)
		p.book.Release(symbol, decision.PositionType)
	}

	record.Executed = result.Executed
	record.OrderID = result.OrderID
	record.FilledSize = result.FilledSize
	record.FillPrice = result.FillPrice
	p.append(record)
}

// marketSnapshot fetches the current snapshot and attaches cached (or
// freshly fetched) indicators for every tracked timeframe, namespaced
// by tier.
func (p *Pipeline) marketSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	snapshot, err := p.fetcher.FetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch failed: %w", err)
	}

	merged := make(domain.IndicatorSnapshot)
	for _, tf := range timeframes {
		indicators, ok := p.cache.Lookup(symbol, tf)
		if !ok {
			indicators, err = p.fetcher.FetchIndicators(ctx, symbol, tf)
			if err != nil {
				// Treated as no fresh data for this tier, not as cache
				// corruption; lower tiers may still inform the decision.
				p.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).
					Msg("indicator fetch failed")
				continue
			}
			p.cache.Store(symbol, tf, indicators)
		}
		for name, value := range indicators {
			merged[tf+"."+name] = value
		}
	}
	snapshot.Base.Indicators = merged
	return snapshot, nil
}

func (p *Pipeline) deny(record audit.CycleRecord, reason string) {
	record.RiskApproved = false
	record.RiskReason = reason
	p.log.Warn().Str("symbol", record.Symbol).Str("reason", reason).Msg("risk check denied")
	p.append(record)
}

func (p *Pipeline) append(record audit.CycleRecord) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Append(record); err != nil {
		p.log.Error().Err(err).Str("symbol", record.Symbol).Msg("failed to append audit record")
	}
}
