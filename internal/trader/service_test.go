package trader

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
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

// ────────────────────────── fakes ──────────────────────────

type fakeExchange struct {
	candles     []model.Bar
	candleCalls int
	orders      []exchange.OrderRequest
	orderErr    error
}

func (f *fakeExchange) GetCandles(_ context.Context, _ string, _ model.Granularity, _ int) ([]model.Bar, error) {
	f.candleCalls++
	return f.candles, nil
}

func (f *fakeExchange) GetAccountBalance(context.Context) ([]exchange.Balance, error) {
	return []exchange.Balance{{Currency: "USD", Available: 1000}}, nil
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, req exchange.OrderRequest) (string, error) {
	if f.orderErr != nil {
		return "", f.orderErr
	}
	f.orders = append(f.orders, req)
	return "ord-1", nil
}

type fakeAdviser struct {
	advice analyst.Advice
	err    error
}

func (f *fakeAdviser) Analyze(context.Context, string, []model.Bar, []indicator.Output) (analyst.Advice, error) {
	return f.advice, f.err
}

type fakeEvents struct {
	events []string
}

func (f *fakeEvents) BroadcastEvent(eventType string, _ interface{}) {
	f.events = append(f.events, eventType)
}

func (f *fakeEvents) has(eventType string) bool {
	for _, e := range f.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func testBars(closes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = model.Bar{
			TS: ts.Add(time.Duration(i) * time.Hour),
			Open: c, High: c, Low: c, Close: c, Volume: 100,
		}
	}
	return bars
}

func newTestService(t *testing.T) (*Service, *fakeExchange, *fakeAdviser, *fakeEvents) {
	t.Helper()
	dir := t.TempDir()

	store, err := creds.NewStore(dir)
	if err != nil {
		t.Fatalf("creds store: %v", err)
	}
	jnl, err := journal.New(journal.Config{DBPath: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	t.Cleanup(func() { jnl.Close() })

	ex := &fakeExchange{candles: testBars(95, 98, 100)}
	adv := &fakeAdviser{advice: analyst.Advice{Action: analyst.ActionHold, Confidence: 0.5}}
	ev := &fakeEvents{}

	svc, err := New(Config{
		Product:             "BTC-USD",
		TradeAmountUSD:      500,
		ConfidenceThreshold: 0.6,
	}, store, cache.NewMemory(time.Minute), jnl, metrics.New(), ev, slog.Default())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.newExchange = func(creds.Credentials) Exchange { return ex }
	svc.newAdviser = func(string) Adviser { return adv }

	if err := svc.Configure(creds.Credentials{
		ExchangeAPIKey:    "ex-key",
		ExchangeAPISecret: "ex-secret",
		OpenAIAPIKey:      "oa-key",
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	return svc, ex, adv, ev
}

// ────────────────────────── tests ──────────────────────────

func TestUnconfiguredServiceRejectsOperations(t *testing.T) {
	dir := t.TempDir()
	store, _ := creds.NewStore(dir)
	jnl, _ := journal.New(journal.Config{DBPath: filepath.Join(dir, "test.db")})
	defer jnl.Close()

	svc, err := New(Config{Product: "BTC-USD"}, store, cache.NewMemory(time.Minute),
		jnl, metrics.New(), &fakeEvents{}, slog.Default())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, _, err := svc.MarketData(context.Background(), model.OneHour, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("MarketData error = %v, want ErrNotConfigured", err)
	}
	if _, err := svc.RunStrategy(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RunStrategy error = %v, want ErrNotConfigured", err)
	}
	if _, err := svc.TradeHistory(10); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("TradeHistory error = %v, want ErrNotConfigured", err)
	}
}

func TestMarketDataServesFromCache(t *testing.T) {
	svc, ex, _, _ := newTestService(t)
	ctx := context.Background()

	reqs := []indicator.Request{{Kind: indicator.KindSMA, Period: 2}}

	bars, outputs, err := svc.MarketData(ctx, model.OneHour, reqs)
	if err != nil {
		t.Fatalf("MarketData: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if len(outputs) != 1 || len(outputs[0].Lines["sma"]) != len(bars) {
		t.Fatalf("indicator output not aligned with bars")
	}

	if _, _, err := svc.MarketData(ctx, model.OneHour, reqs); err != nil {
		t.Fatalf("second MarketData: %v", err)
	}
	if ex.candleCalls != 1 {
		t.Errorf("exchange called %d times, want 1 (cache should serve second call)", ex.candleCalls)
	}
}

func TestExecuteTradeBuyOpensPosition(t *testing.T) {
	svc, ex, _, ev := newTestService(t)

	res, err := svc.ExecuteTrade(context.Background(), TradeRequest{
		Action: model.SideBuy, Amount: 500,
	}, "manual")
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if res.OrderID != "ord-1" || res.PositionID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(ex.orders) != 1 || ex.orders[0].QuoteSize != 500 {
		t.Fatalf("order not placed with quote size 500: %+v", ex.orders)
	}

	positions := svc.Positions()
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	p := positions[0]
	// Last close in the fixture series is 100.
	if p.EntryPrice != 100 {
		t.Errorf("entry price = %v, want 100", p.EntryPrice)
	}
	if math.Abs(p.StopLoss-95) > 1e-9 || math.Abs(p.TakeProfit-110) > 1e-9 {
		t.Errorf("exits = %v/%v, want 95/110", p.StopLoss, p.TakeProfit)
	}
	if math.Abs(p.Size-5) > 1e-9 {
		t.Errorf("size = %v, want 5 (500 USD at 100)", p.Size)
	}

	trades, err := svc.TradeHistory(10)
	if err != nil {
		t.Fatalf("TradeHistory: %v", err)
	}
	if len(trades) != 1 || trades[0].Side != model.SideBuy {
		t.Fatalf("journal missing buy: %+v", trades)
	}
	if !ev.has("trade_executed") {
		t.Error("trade_executed event not broadcast")
	}
}

func TestExecuteTradeRejectsBadInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ExecuteTrade(ctx, TradeRequest{Action: "SHORT", Amount: 10}, ""); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, err := svc.ExecuteTrade(ctx, TradeRequest{Action: model.SideBuy, Amount: 0}, ""); err == nil {
		t.Error("expected error for zero amount")
	}
}

func TestUpdatePosition(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ExecuteTrade(ctx, TradeRequest{Action: model.SideBuy, Amount: 500}, "")
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	newSL := 90.0
	updated, err := svc.UpdatePosition(res.PositionID, PositionUpdate{StopLoss: &newSL})
	if err != nil {
		t.Fatalf("UpdatePosition: %v", err)
	}
	if updated.StopLoss != 90 {
		t.Errorf("stop loss = %v, want 90", updated.StopLoss)
	}
	if updated.TakeProfit != 110 {
		t.Errorf("take profit changed unexpectedly: %v", updated.TakeProfit)
	}

	if _, err := svc.UpdatePosition("pos-missing", PositionUpdate{}); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("error = %v, want ErrPositionNotFound", err)
	}
}

func TestClosePositionSellsFullSize(t *testing.T) {
	svc, ex, _, ev := newTestService(t)
	ctx := context.Background()

	res, err := svc.ExecuteTrade(ctx, TradeRequest{Action: model.SideBuy, Amount: 500}, "")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	closed, err := svc.ClosePosition(ctx, res.PositionID)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if closed.PositionID != res.PositionID {
		t.Errorf("closed %q, want %q", closed.PositionID, res.PositionID)
	}
	if len(svc.Positions()) != 0 {
		t.Error("position still open after close")
	}

	sell := ex.orders[len(ex.orders)-1]
	if sell.Side != model.SideSell || math.Abs(sell.BaseSize-5) > 1e-9 {
		t.Errorf("close order = %+v, want SELL of base size 5", sell)
	}
	if !ev.has("position_closed") {
		t.Error("position_closed event not broadcast")
	}
}

// gatedExchange blocks sell orders until released, exposing windows where
// a second close of the same position could slip in.
type gatedExchange struct {
	*fakeExchange
	sellStarted chan struct{}
	proceed     chan struct{}
	sells       int64
}

func (g *gatedExchange) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	if req.Side == model.SideSell {
		atomic.AddInt64(&g.sells, 1)
		g.sellStarted <- struct{}{}
		<-g.proceed
	}
	return g.fakeExchange.PlaceMarketOrder(ctx, req)
}

func TestClosePositionConcurrentDoubleCloseSellsOnce(t *testing.T) {
	svc, ex, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ExecuteTrade(ctx, TradeRequest{Action: model.SideBuy, Amount: 500}, "")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	gated := &gatedExchange{
		fakeExchange: ex,
		sellStarted:  make(chan struct{}, 2),
		proceed:      make(chan struct{}),
	}
	svc.mu.Lock()
	svc.exchange = gated
	svc.mu.Unlock()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.ClosePosition(ctx, res.PositionID)
			errs <- err
		}()
	}

	// One call must reach the exchange and block there.
	select {
	case <-gated.sellStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("no close reached the exchange")
	}
	// The other must lose the claim and return before any release.
	select {
	case err := <-errs:
		if !errors.Is(err, ErrPositionNotFound) {
			t.Fatalf("loser error = %v, want ErrPositionNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second close did not return; both may be selling")
	}

	close(gated.proceed)
	if err := <-errs; err != nil {
		t.Fatalf("winning close: %v", err)
	}
	if got := atomic.LoadInt64(&gated.sells); got != 1 {
		t.Errorf("position was market-sold %d times, want exactly 1", got)
	}
}

func TestClosePositionRestoredWhenOrderFails(t *testing.T) {
	svc, ex, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ExecuteTrade(ctx, TradeRequest{Action: model.SideBuy, Amount: 500}, "")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	ex.orderErr = errors.New("exchange unavailable")
	if _, err := svc.ClosePosition(ctx, res.PositionID); err == nil {
		t.Fatal("expected close to fail")
	}
	if len(svc.Positions()) != 1 {
		t.Fatal("failed close must leave the position open")
	}

	ex.orderErr = nil
	if _, err := svc.ClosePosition(ctx, res.PositionID); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if len(svc.Positions()) != 0 {
		t.Error("position still open after successful retry")
	}
}

func TestRunStrategyBuysOnConfidentAdvice(t *testing.T) {
	svc, ex, adv, ev := newTestService(t)
	adv.advice = analyst.Advice{Action: analyst.ActionBuy, Confidence: 0.9, Reasoning: "uptrend"}

	res, err := svc.RunStrategy(context.Background())
	if err != nil {
		t.Fatalf("RunStrategy: %v", err)
	}
	if !res.Acted {
		t.Fatal("strategy did not act on confident BUY")
	}
	if len(ex.orders) != 1 || ex.orders[0].QuoteSize != 500 {
		t.Fatalf("expected one buy for configured amount, got %+v", ex.orders)
	}
	if len(svc.Positions()) != 1 {
		t.Error("strategy buy did not open a position")
	}
	if !ev.has("strategy_run") {
		t.Error("strategy_run event not broadcast")
	}
}

func TestRunStrategyHoldsBelowThreshold(t *testing.T) {
	svc, ex, adv, _ := newTestService(t)
	adv.advice = analyst.Advice{Action: analyst.ActionBuy, Confidence: 0.4}

	res, err := svc.RunStrategy(context.Background())
	if err != nil {
		t.Fatalf("RunStrategy: %v", err)
	}
	if res.Acted || len(ex.orders) != 0 {
		t.Errorf("strategy acted on low-confidence advice: %+v", res)
	}
}

func TestRunStrategySkipsBuyWithOpenPosition(t *testing.T) {
	svc, ex, adv, _ := newTestService(t)
	if _, err := svc.ExecuteTrade(context.Background(), TradeRequest{Action: model.SideBuy, Amount: 500}, ""); err != nil {
		t.Fatalf("seed buy: %v", err)
	}
	adv.advice = analyst.Advice{Action: analyst.ActionBuy, Confidence: 0.95}

	res, err := svc.RunStrategy(context.Background())
	if err != nil {
		t.Fatalf("RunStrategy: %v", err)
	}
	if res.Acted {
		t.Error("strategy pyramided into an existing position")
	}
	if len(ex.orders) != 1 {
		t.Errorf("got %d orders, want only the seed buy", len(ex.orders))
	}
}

func TestRunStrategySellClosesPositions(t *testing.T) {
	svc, _, adv, _ := newTestService(t)
	if _, err := svc.ExecuteTrade(context.Background(), TradeRequest{Action: model.SideBuy, Amount: 500}, ""); err != nil {
		t.Fatalf("seed buy: %v", err)
	}
	adv.advice = analyst.Advice{Action: analyst.ActionSell, Confidence: 0.8}

	res, err := svc.RunStrategy(context.Background())
	if err != nil {
		t.Fatalf("RunStrategy: %v", err)
	}
	if !res.Acted {
		t.Fatal("strategy did not close position on confident SELL")
	}
	if len(svc.Positions()) != 0 {
		t.Error("position still open after strategy sell")
	}
}

func TestPerformanceSummary(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.ExecuteTrade(ctx, TradeRequest{Action: model.SideBuy, Amount: 500}, "")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.ClosePosition(ctx, res.PositionID); err != nil {
		t.Fatalf("close: %v", err)
	}

	sum, err := svc.Performance(ctx)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if sum.TotalTrades != 2 {
		t.Errorf("total trades = %d, want 2", sum.TotalTrades)
	}
	// Bought and sold at the same fixture price of 100.
	if math.Abs(sum.RealizedPnL) > 1e-9 {
		t.Errorf("realized PnL = %v, want 0", sum.RealizedPnL)
	}
	if sum.OpenPositions != 0 {
		t.Errorf("open positions = %d, want 0", sum.OpenPositions)
	}
}
