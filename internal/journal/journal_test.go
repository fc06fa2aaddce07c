package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradedeck/internal/model"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_Ping(t *testing.T) {
	j := newTestJournal(t)
	if err := j.Ping(context.Background()); err != nil {
		t.Fatalf("ping on open journal: %v", err)
	}
}

func TestJournal_TradesRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := j.RecordTrade(model.Trade{
			PositionID: "pos-1",
			Product:    "BTC-USD",
			Side:       model.SideBuy,
			Size:       0.01,
			Price:      float64(60000 + i*100),
			Reason:     "manual",
			TS:         base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	trades, err := j.ListTrades(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	// Newest first.
	if trades[0].Price != 60400 {
		t.Errorf("newest trade price: got %.0f, want 60400", trades[0].Price)
	}

	all, err := j.AllTrades()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 || all[0].Price != 60000 {
		t.Errorf("AllTrades: len=%d first=%.0f, want 5 / 60000", len(all), all[0].Price)
	}
}

func TestJournal_ListTradesDefaultLimit(t *testing.T) {
	j := newTestJournal(t)
	trades, err := j.ListTrades(0)
	if err != nil {
		t.Fatal(err)
	}
	if trades != nil {
		t.Errorf("empty journal: got %d trades", len(trades))
	}
}

func TestJournal_PositionsRoundTrip(t *testing.T) {
	j := newTestJournal(t)

	pos := model.Position{
		ID:         "pos-42",
		Product:    "BTC-USD",
		EntryPrice: 61000,
		Size:       0.05,
		StopLoss:   57950,
		TakeProfit: 67100,
		OpenedAt:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := j.SavePosition(pos); err != nil {
		t.Fatal(err)
	}

	// Updating the same ID replaces, not duplicates.
	pos.StopLoss = 59000
	if err := j.SavePosition(pos); err != nil {
		t.Fatal(err)
	}

	positions, err := j.LoadPositions()
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if positions[0].StopLoss != 59000 {
		t.Errorf("stop loss: got %.0f, want 59000", positions[0].StopLoss)
	}
	if !positions[0].OpenedAt.Equal(pos.OpenedAt) {
		t.Errorf("opened_at mismatch: %v", positions[0].OpenedAt)
	}

	if err := j.DeletePosition("pos-42"); err != nil {
		t.Fatal(err)
	}
	positions, err = j.LoadPositions()
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Errorf("position not deleted: %d remaining", len(positions))
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")

	j, err := New(Config{DBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.RecordTrade(model.Trade{PositionID: "p", Product: "BTC-USD", Side: model.SideSell, Size: 1, Price: 50000, Reason: "manual_close", TS: time.Now()}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j2, err := New(Config{DBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer j2.Close()

	trades, err := j2.ListTrades(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Errorf("trades lost across reopen: got %d", len(trades))
	}
}
