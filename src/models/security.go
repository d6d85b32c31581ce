package models

// -----------------------------------------------------------------------------

// MExchange is a listing venue.
type MExchange struct {
	ID   int64
	Name string
	Mic  string
}

// -----------------------------------------------------------------------------

// MSecurity is one tradable instrument from the reference catalog.
// Classification codes (Sector .. SubIndustry) are exported as strings on the
// wire even though they are numeric here.
type MSecurity struct {
	ID            int64
	Symbol        string
	LocalSymbol   string
	Exchange      *MExchange
	Type          string
	LotSize       int64
	Multiplier    float64
	ClosePx       float64
	Rate          float64
	Currency      string
	Adv20         float64
	MarketCap     float64
	Sector        int64
	IndustryGroup int64
	Industry      int64
	SubIndustry   int64
	Bbgid         string
	Cusip         string
	Sedol         string
	Isin          string
}

// -----------------------------------------------------------------------------

// ExchangeName returns the venue name or "" for unlisted records.
func (s *MSecurity) ExchangeName() string {
	if s == nil || s.Exchange == nil {
		return ""
	}
	return s.Exchange.Name
}

// -----------------------------------------------------------------------------

// ExchangeID returns the venue id or 0.
func (s *MSecurity) ExchangeID() int64 {
	if s == nil || s.Exchange == nil {
		return 0
	}
	return s.Exchange.ID
}
