package trader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradedeck/internal/analyst"
	"tradedeck/internal/indicator"
	"tradedeck/internal/logger"
	"tradedeck/internal/model"
	"tradedeck/internal/portfolio"
)

// strategyIndicators is the fixed panel fed to the analyst on every run.
var strategyIndicators = []indicator.Request{
	{Kind: indicator.KindSMA, Period: 20},
	{Kind: indicator.KindEMA, Period: 12},
	{Kind: indicator.KindBollinger, Period: 20},
	{Kind: indicator.KindRSI, Period: 14},
	{Kind: indicator.KindMACD, FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
}

// StrategyResult reports the outcome of a single strategy evaluation.
type StrategyResult struct {
	Advice   analyst.Advice `json:"advice"`
	Acted    bool           `json:"acted"`
	OrderID  string         `json:"order_id,omitempty"`
	Position string         `json:"position_id,omitempty"`
	RanAt    time.Time      `json:"ran_at"`
}

// RunStrategy evaluates the indicator panel on hourly bars, asks the LLM
// analyst for a call, and executes it when confidence clears the
// configured threshold. Holds and low-confidence calls are journaled as
// events only.
func (s *Service) RunStrategy(ctx context.Context) (*StrategyResult, error) {
	_, adviser, err := s.clients()
	if err != nil {
		return nil, err
	}
	s.metrics.StrategyRuns.Inc()

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("strategy", time.Now()))

	bars, outputs, err := s.MarketData(ctx, model.OneHour, strategyIndicators)
	if err != nil {
		s.metrics.StrategyErrors.Inc()
		return nil, fmt.Errorf("strategy market data: %w", err)
	}

	advice, err := adviser.Analyze(ctx, s.cfg.Product, bars, outputs)
	if err != nil {
		s.metrics.StrategyErrors.Inc()
		return nil, fmt.Errorf("strategy analysis: %w", err)
	}
	attrs := append(logger.LogWithTrace(ctx),
		slog.String("action", advice.Action),
		slog.Float64("confidence", advice.Confidence))
	s.log.Info("strategy advice", attrs...)

	result := &StrategyResult{Advice: advice, RanAt: time.Now().UTC()}

	if advice.Confidence >= s.cfg.ConfidenceThreshold {
		switch advice.Action {
		case analyst.ActionBuy:
			if len(s.Positions()) == 0 {
				tr, err := s.ExecuteTrade(ctx, TradeRequest{
					Action: model.SideBuy, Amount: s.cfg.TradeAmountUSD,
				}, "strategy: "+advice.Reasoning)
				if err != nil {
					s.metrics.StrategyErrors.Inc()
					return nil, err
				}
				result.Acted = true
				result.OrderID = tr.OrderID
				result.Position = tr.PositionID
			}
		case analyst.ActionSell:
			for _, p := range s.Positions() {
				tr, err := s.ClosePosition(ctx, p.ID)
				if err != nil {
					s.metrics.StrategyErrors.Inc()
					return nil, err
				}
				result.Acted = true
				result.OrderID = tr.OrderID
			}
		}
	}

	s.events.BroadcastEvent("strategy_run", result)
	return result, nil
}

// Performance builds the PnL summary from the full journal and the current
// price of the configured product.
func (s *Service) Performance(ctx context.Context) (portfolio.Summary, error) {
	if !s.Configured() {
		return portfolio.Summary{}, ErrNotConfigured
	}
	trades, err := s.journal.AllTrades()
	if err != nil {
		return portfolio.Summary{}, err
	}
	price, err := s.lastClose(ctx)
	if err != nil {
		return portfolio.Summary{}, err
	}
	return portfolio.Summarize(trades, s.Positions(), price), nil
}
