package models

// -----------------------------------------------------------------------------

// DepthLevels is the number of book levels carried per snapshot.
const DepthLevels = 5

// MDepthLevel is one price level of the order book.
type MDepthLevel struct {
	AskPrice float64
	AskSize  int64
	BidPrice float64
	BidSize  int64
}

// -----------------------------------------------------------------------------

// MSnapshot is the most recently observed market data for one security:
// trade fields plus the top book levels. Tm is seconds since epoch and is
// bumped on every update; publishers compare Tm to decide whether anything
// new happened.
type MSnapshot struct {
	Tm     int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Qty    int64
	Volume int64
	Vwap   float64
	Depth  [DepthLevels]MDepthLevel
}

// -----------------------------------------------------------------------------

// MQuote is one raw quote record as delivered by a feed adapter before it is
// folded into the snapshot table.
type MQuote struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    int64   `json:"volume"`
	Bid       float64 `json:"bid"`
	BidSize   int64   `json:"bid_size"`
	Ask       float64 `json:"ask"`
	AskSize   int64   `json:"ask_size"`
	Timestamp int64   `json:"timestamp"`
	FetchedAt int64   `json:"fetched_at"`
}
