// Package portfolio computes performance summaries over the trade journal
// and open positions: realized and unrealized P&L, win rate, and volume
// totals for the dashboard's performance panel.
package portfolio

import "tradedeck/internal/model"

// Summary is the dashboard performance view.
type Summary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`

	TotalTrades     int     `json:"total_trades"`
	ClosedTrades    int     `json:"closed_trades"`
	OpenPositions   int     `json:"open_positions"`
	WinRate         float64 `json:"win_rate"` // percent of closed round trips with positive P&L
	TotalBuyVolume  float64 `json:"total_buy_volume"`
	TotalSellVolume float64 `json:"total_sell_volume"`

	AvgProfitPerTrade float64 `json:"avg_profit_per_trade"`
	AvgLossPerTrade   float64 `json:"avg_loss_per_trade"`
	MaxProfit         float64 `json:"max_profit"`
	MaxLoss           float64 `json:"max_loss"`
}

// Summarize folds the journal and open positions into a Summary. Round
// trips are matched by position ID: a SELL realizes P&L against the BUY
// that opened the same position. Unrealized P&L marks open positions to
// currentPrice.
func Summarize(trades []model.Trade, positions []model.Position, currentPrice float64) Summary {
	var s Summary
	s.TotalTrades = len(trades)
	s.OpenPositions = len(positions)

	entries := make(map[string]model.Trade, len(trades))
	var wins int
	var profitSum, lossSum float64
	var profitCount, lossCount int

	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			s.TotalBuyVolume += t.Size
			entries[t.PositionID] = t
		case model.SideSell:
			s.TotalSellVolume += t.Size
			entry, ok := entries[t.PositionID]
			if !ok {
				continue // sell without a tracked entry — volume only
			}
			pnl := model.ProfitLoss(entry.Price, t.Price, t.Size)
			s.RealizedPnL += pnl
			s.ClosedTrades++
			if pnl > 0 {
				wins++
				profitSum += pnl
				profitCount++
				if pnl > s.MaxProfit {
					s.MaxProfit = pnl
				}
			} else {
				lossSum += pnl
				lossCount++
				if pnl < s.MaxLoss {
					s.MaxLoss = pnl
				}
			}
		}
	}

	if s.ClosedTrades > 0 {
		s.WinRate = float64(wins) / float64(s.ClosedTrades) * 100
	}
	if profitCount > 0 {
		s.AvgProfitPerTrade = profitSum / float64(profitCount)
	}
	if lossCount > 0 {
		s.AvgLossPerTrade = lossSum / float64(lossCount)
	}

	for i := range positions {
		s.UnrealizedPnL += positions[i].UnrealizedPnL(currentPrice)
	}
	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	return s
}
