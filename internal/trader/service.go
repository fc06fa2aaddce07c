// Package trader orchestrates the dashboard's trading features: cached
// market-data fetches with indicator computation, LLM-advised strategy
// runs, position lifecycle, and the trade journal.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradedeck/internal/analyst"
	"tradedeck/internal/cache"
	"tradedeck/internal/creds"
	"tradedeck/internal/exchange"
	"tradedeck/internal/indicator"
	"tradedeck/internal/journal"
	"tradedeck/internal/metrics"
	"tradedeck/internal/model"
)

// Default position exits relative to entry price.
const (
	defaultStopLossPct   = 0.95
	defaultTakeProfitPct = 1.10
)

// ErrNotConfigured is returned for every trading operation before API keys
// have been supplied via the configure endpoint.
var ErrNotConfigured = errors.New("trader is not initialized: configure API keys first")

// ErrPositionNotFound is returned for updates to unknown position IDs.
var ErrPositionNotFound = errors.New("position not found")

// Exchange is the slice of the exchange client the service uses.
type Exchange interface {
	GetCandles(ctx context.Context, product string, g model.Granularity, limit int) ([]model.Bar, error)
	GetAccountBalance(ctx context.Context) ([]exchange.Balance, error)
	PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (string, error)
}

// Adviser is the slice of the LLM analyst the service uses.
type Adviser interface {
	Analyze(ctx context.Context, product string, bars []model.Bar, outputs []indicator.Output) (analyst.Advice, error)
}

// Broadcaster pushes dashboard events to connected WebSocket clients.
type Broadcaster interface {
	BroadcastEvent(eventType string, payload interface{})
}

// Config configures the trader service.
type Config struct {
	Product             string  // e.g. "BTC-USD"
	CandleLimit         int     // bars fetched per series
	TradeAmountUSD      float64 // quote size for strategy buys
	ConfidenceThreshold float64 // minimum LLM confidence to act, 0..1
	ExchangeBaseURL     string  // optional override for sandboxes
}

// Service is the trading orchestrator. Construction wires the static
// collaborators; the exchange and analyst clients are (re)built whenever
// credentials change.
type Service struct {
	cfg     Config
	creds   *creds.Store
	cache   cache.SeriesCache
	journal *journal.Journal
	metrics *metrics.Metrics
	events  Broadcaster
	log     *slog.Logger

	// Factories, replaceable in tests.
	newExchange func(c creds.Credentials) Exchange
	newAdviser  func(apiKey string) Adviser

	mu        sync.RWMutex
	exchange  Exchange
	adviser   Adviser
	positions map[string]*model.Position
}

// New creates the trader service and, when credentials were persisted from
// a previous run, initializes the trading clients immediately.
func New(cfg Config, credStore *creds.Store, seriesCache cache.SeriesCache, jnl *journal.Journal, m *metrics.Metrics, events Broadcaster, log *slog.Logger) (*Service, error) {
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 300
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}

	s := &Service{
		cfg:       cfg,
		creds:     credStore,
		cache:     seriesCache,
		journal:   jnl,
		metrics:   m,
		events:    events,
		log:       log,
		positions: make(map[string]*model.Position),
		newExchange: func(c creds.Credentials) Exchange {
			return exchange.NewClient(exchange.Config{
				APIKey:    c.ExchangeAPIKey,
				APISecret: c.ExchangeAPISecret,
				BaseURL:   cfg.ExchangeBaseURL,
			})
		},
		newAdviser: func(apiKey string) Adviser {
			return analyst.New(apiKey, log)
		},
	}

	positions, err := jnl.LoadPositions()
	if err != nil {
		return nil, fmt.Errorf("restore positions: %w", err)
	}
	for i := range positions {
		p := positions[i]
		s.positions[p.ID] = &p
	}
	if len(positions) > 0 {
		log.Info("restored open positions", slog.Int("count", len(positions)))
	}

	if c, ok := credStore.Get(); ok {
		s.installClients(c)
		log.Info("trader initialized from saved credentials",
			slog.String("exchange_key", creds.Redacted(c.ExchangeAPIKey)))
	}
	return s, nil
}

func (s *Service) installClients(c creds.Credentials) {
	s.mu.Lock()
	s.exchange = s.newExchange(c)
	s.adviser = s.newAdviser(c.OpenAIAPIKey)
	s.mu.Unlock()
}

// Configure validates and persists new credentials, then rebuilds the
// trading clients.
func (s *Service) Configure(c creds.Credentials) error {
	if err := s.creds.Set(c); err != nil {
		return err
	}
	s.installClients(c)
	s.log.Info("credentials configured",
		slog.String("exchange_key", creds.Redacted(c.ExchangeAPIKey)),
		slog.String("openai_key", creds.Redacted(c.OpenAIAPIKey)))
	return nil
}

// Configured reports whether the trading clients are ready.
func (s *Service) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exchange != nil
}

// CheckTOTP delegates to the credential store's trade guard.
func (s *Service) CheckTOTP(code string) error {
	return s.creds.CheckTOTP(code)
}

func (s *Service) clients() (Exchange, Adviser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.exchange == nil {
		return nil, nil, ErrNotConfigured
	}
	return s.exchange, s.adviser, nil
}

// MarketData returns the OHLCV series for the configured product plus the
// requested indicator outputs, all index-aligned. Series are served from
// the TTL cache when fresh.
func (s *Service) MarketData(ctx context.Context, g model.Granularity, reqs []indicator.Request) ([]model.Bar, []indicator.Output, error) {
	ex, _, err := s.clients()
	if err != nil {
		return nil, nil, err
	}

	key := cache.Key{Product: s.cfg.Product, Granularity: g}
	bars, ok := s.cache.Get(ctx, key)
	if ok {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
		s.metrics.ExchangeRequests.WithLabelValues("candles").Inc()
		bars, err = ex.GetCandles(ctx, s.cfg.Product, g, s.cfg.CandleLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch market data: %w", err)
		}
		s.cache.Set(ctx, key, bars)
	}

	outputs := make([]indicator.Output, 0, len(reqs))
	for _, req := range reqs {
		start := time.Now()
		out, err := indicator.Compute(bars, req)
		if err != nil {
			return nil, nil, err
		}
		s.metrics.IndicatorComputeDur.Observe(time.Since(start).Seconds())
		s.metrics.IndicatorsTotal.WithLabelValues(string(req.Kind)).Inc()
		outputs = append(outputs, out)
	}
	return bars, outputs, nil
}

// AccountBalance proxies the exchange balance call.
func (s *Service) AccountBalance(ctx context.Context) ([]exchange.Balance, error) {
	ex, _, err := s.clients()
	if err != nil {
		return nil, err
	}
	s.metrics.ExchangeRequests.WithLabelValues("accounts").Inc()
	return ex.GetAccountBalance(ctx)
}

// lastClose resolves the most recent hourly close for the configured
// product. The series cache keeps repeat lookups cheap between bars.
func (s *Service) lastClose(ctx context.Context) (float64, error) {
	bars, _, err := s.MarketData(ctx, model.OneHour, nil)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, errors.New("empty market data series")
	}
	return bars[len(bars)-1].Close, nil
}

// TradeRequest is a manual trade from the dashboard.
type TradeRequest struct {
	Action string  `json:"action"` // BUY or SELL
	Amount float64 `json:"amount"` // USD for BUY, base size for SELL
}

// TradeResult reports an executed manual trade.
type TradeResult struct {
	OrderID    string `json:"order_id"`
	PositionID string `json:"position_id,omitempty"`
}

// ExecuteTrade places a market order. Buys open a tracked position with
// default 5% stop-loss and 10% take-profit; sells only journal the fill.
func (s *Service) ExecuteTrade(ctx context.Context, req TradeRequest, reason string) (*TradeResult, error) {
	ex, _, err := s.clients()
	if err != nil {
		return nil, err
	}
	if req.Action != model.SideBuy && req.Action != model.SideSell {
		return nil, fmt.Errorf("invalid trade action %q", req.Action)
	}
	if req.Amount <= 0 {
		return nil, errors.New("trade amount must be positive")
	}

	order := exchange.OrderRequest{Product: s.cfg.Product, Side: req.Action}
	if req.Action == model.SideBuy {
		order.QuoteSize = req.Amount
	} else {
		order.BaseSize = req.Amount
	}

	orderID, err := ex.PlaceMarketOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("execute trade: %w", err)
	}
	s.metrics.OrdersPlaced.WithLabelValues(req.Action).Inc()

	result := &TradeResult{OrderID: orderID}

	if req.Action == model.SideBuy {
		price, err := s.lastClose(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve entry price: %w", err)
		}
		size := req.Amount / price
		pos := model.Position{
			ID:         fmt.Sprintf("pos-%d", time.Now().UnixNano()),
			Product:    s.cfg.Product,
			EntryPrice: price,
			Size:       size,
			StopLoss:   price * defaultStopLossPct,
			TakeProfit: price * defaultTakeProfitPct,
			OpenedAt:   time.Now().UTC(),
		}
		if err := s.openPosition(pos); err != nil {
			return nil, err
		}
		result.PositionID = pos.ID

		s.recordTrade(model.Trade{
			PositionID: pos.ID, Product: s.cfg.Product, Side: model.SideBuy,
			Size: size, Price: price, Reason: reason, TS: time.Now().UTC(),
		})
	} else {
		s.recordTrade(model.Trade{
			PositionID: "manual_sell", Product: s.cfg.Product, Side: model.SideSell,
			Size: req.Amount, Price: 0, Reason: reason, TS: time.Now().UTC(),
		})
	}

	s.events.BroadcastEvent("trade_executed", map[string]interface{}{
		"action":   req.Action,
		"amount":   req.Amount,
		"order_id": orderID,
		"reason":   reason,
	})
	return result, nil
}

func (s *Service) openPosition(p model.Position) error {
	if err := s.journal.SavePosition(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.positions[p.ID] = &p
	s.mu.Unlock()
	return nil
}

func (s *Service) recordTrade(t model.Trade) {
	if err := s.journal.RecordTrade(t); err != nil {
		// A journal failure must not unwind an already-executed order.
		s.log.Error("journal write failed", slog.String("error", err.Error()))
	}
}

// Positions returns a snapshot of open positions, oldest first.
func (s *Service) Positions() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sortPositions(out)
	return out
}

func sortPositions(ps []model.Position) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].OpenedAt.Before(ps[j-1].OpenedAt); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// PositionUpdate carries optional field updates; nil means unchanged.
type PositionUpdate struct {
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	Size       *float64 `json:"size"`
}

// UpdatePosition applies partial updates to an open position.
func (s *Service) UpdatePosition(id string, upd PositionUpdate) (model.Position, error) {
	s.mu.Lock()
	pos, ok := s.positions[id]
	if !ok {
		s.mu.Unlock()
		return model.Position{}, ErrPositionNotFound
	}
	if upd.StopLoss != nil {
		pos.StopLoss = *upd.StopLoss
	}
	if upd.TakeProfit != nil {
		pos.TakeProfit = *upd.TakeProfit
	}
	if upd.Size != nil {
		pos.Size = *upd.Size
	}
	updated := *pos
	s.mu.Unlock()

	if err := s.journal.SavePosition(updated); err != nil {
		return model.Position{}, err
	}
	s.events.BroadcastEvent("position_updated", updated)
	return updated, nil
}

// ClosePosition market-sells the position's full size, journals the exit,
// and drops the position. The position is claimed under the write lock
// before the order goes out, so concurrent closes of the same ID cannot
// both sell; a failed order restores the claim.
func (s *Service) ClosePosition(ctx context.Context, id string) (*TradeResult, error) {
	ex, _, err := s.clients()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	pos, ok := s.positions[id]
	if ok {
		delete(s.positions, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrPositionNotFound
	}
	size := pos.Size

	orderID, err := ex.PlaceMarketOrder(ctx, exchange.OrderRequest{
		Product: s.cfg.Product, Side: model.SideSell, BaseSize: size,
	})
	if err != nil {
		s.mu.Lock()
		s.positions[id] = pos
		s.mu.Unlock()
		return nil, fmt.Errorf("close position: %w", err)
	}
	s.metrics.OrdersPlaced.WithLabelValues(model.SideSell).Inc()

	price, err := s.lastClose(ctx)
	if err != nil {
		price = 0 // exit already happened; journal with unknown price
	}

	if err := s.journal.DeletePosition(id); err != nil {
		s.log.Error("delete position failed", slog.String("error", err.Error()))
	}

	s.recordTrade(model.Trade{
		PositionID: id, Product: s.cfg.Product, Side: model.SideSell,
		Size: size, Price: price, Reason: "manual_close", TS: time.Now().UTC(),
	})
	s.events.BroadcastEvent("position_closed", map[string]interface{}{
		"position_id": id,
		"order_id":    orderID,
	})
	return &TradeResult{OrderID: orderID, PositionID: id}, nil
}

// TradeHistory returns the most recent journal entries.
func (s *Service) TradeHistory(limit int) ([]model.Trade, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	return s.journal.ListTrades(limit)
}
