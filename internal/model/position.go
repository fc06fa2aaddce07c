package model

import "time"

// Position is an open long position tracked by the dashboard.
type Position struct {
	ID         string    `json:"id"`
	Product    string    `json:"product"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"` // base-currency quantity
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

// UnrealizedPnL returns the mark-to-market profit for this position.
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Size
}

// Trade side constants.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade is one executed order, recorded in the journal.
type Trade struct {
	PositionID string    `json:"position_id"`
	Product    string    `json:"product"`
	Side       string    `json:"side"` // BUY or SELL
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"` // "manual", "manual_close", "strategy"
	TS         time.Time `json:"ts"`
}

// ProfitLoss returns the signed P&L of a round trip from entry to exit.
func ProfitLoss(entryPrice, exitPrice, size float64) float64 {
	return (exitPrice - entryPrice) * size
}
