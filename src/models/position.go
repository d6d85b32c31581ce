package models

// -----------------------------------------------------------------------------

// MPnl is one (realized, unrealized) pair.
type MPnl struct {
	Realized   float64
	Unrealized float64
}

// -----------------------------------------------------------------------------

// MBodPosition is one beginning-of-day inventory row as loaded from storage.
type MBodPosition struct {
	SubAccountID int64
	SecurityID   int64
	Position     MPosition
}

// -----------------------------------------------------------------------------

// MPosition is the inventory of one (account, security) pair. BOD rows carry
// the opening values; fills and marks update the rest intraday.
type MPosition struct {
	Qty                     float64 `json:"qty"`
	AvgPx                   float64 `json:"avg_px"`
	UnrealizedPnl           float64 `json:"unrealized_pnl"`
	RealizedPnl             float64 `json:"realized_pnl"`
	TotalBoughtQty          float64 `json:"total_bought_qty"`
	TotalSoldQty            float64 `json:"total_sold_qty"`
	TotalOutstandingBuyQty  float64 `json:"total_outstanding_buy_qty"`
	TotalOutstandingSellQty float64 `json:"total_outstanding_sell_qty"`
	BrokerAccountID         int64   `json:"-"`
	Tm                      int64   `json:"-"`
}
