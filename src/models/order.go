package models

import "strings"

// -----------------------------------------------------------------------------

// OrderSide enumerates order directions. Wire form is the lowercase word.
type OrderSide int

const (
	SideUnknown OrderSide = iota
	SideBuy
	SideSell
	SideShort
)

func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	case SideShort:
		return "short"
	}
	return ""
}

// ParseOrderSide matches buy/sell/short case-insensitively.
func ParseOrderSide(str string) (OrderSide, bool) {
	switch strings.ToLower(str) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	case "short":
		return SideShort, true
	}
	return SideUnknown, false
}

// -----------------------------------------------------------------------------

// OrderType enumerates order types. The zero value is limit, which is also
// the silent default when parsing an unrecognized string.
type OrderType int

const (
	TypeLimit OrderType = iota
	TypeMarket
	TypeStop
	TypeStopLimit
	TypeOTC
)

func (t OrderType) String() string {
	switch t {
	case TypeLimit:
		return "limit"
	case TypeMarket:
		return "market"
	case TypeStop:
		return "stop"
	case TypeStopLimit:
		return "stop_limit"
	case TypeOTC:
		return "otc"
	}
	return ""
}

// ParseOrderType accepts market, stop, "stop limit" and otc
// case-insensitively; anything else keeps the limit default.
func ParseOrderType(str string) OrderType {
	switch strings.ToLower(str) {
	case "market":
		return TypeMarket
	case "stop":
		return TypeStop
	case "stop limit":
		return TypeStopLimit
	case "otc":
		return TypeOTC
	}
	return TypeLimit
}

// -----------------------------------------------------------------------------

// TimeInForce enumerates order lifetimes. The zero value is Day, which is
// also the silent default when parsing an unrecognized string.
type TimeInForce int

const (
	TifDay TimeInForce = iota
	TifIOC
	TifGTC
	TifOPG
	TifFOK
	TifGTX
)

func (t TimeInForce) String() string {
	switch t {
	case TifDay:
		return "Day"
	case TifIOC:
		return "IOC"
	case TifGTC:
		return "GTC"
	case TifOPG:
		return "OPG"
	case TifFOK:
		return "FOK"
	case TifGTX:
		return "GTX"
	}
	return ""
}

// ParseTimeInForce accepts GTC, OPG, IOC, FOK and GTX case-insensitively;
// anything else keeps the Day default.
func ParseTimeInForce(str string) TimeInForce {
	switch strings.ToUpper(str) {
	case "GTC":
		return TifGTC
	case "OPG":
		return TifOPG
	case "IOC":
		return TifIOC
	case "FOK":
		return TifFOK
	case "GTX":
		return TifGTX
	}
	return TifDay
}

// -----------------------------------------------------------------------------

// OrderStatus tracks an order through the connectivity pipeline.
type OrderStatus int

const (
	StatusUnconfirmed OrderStatus = iota
	StatusPending
	StatusNew
	StatusFilled
	StatusCancelled
	StatusRejected
)

// -----------------------------------------------------------------------------

// MOrder is one order intent attributed to a user, plus its live state.
// OrigID is non-zero on replacements and refers to the replaced order.
type MOrder struct {
	ID            int64
	OrigID        int64
	AlgoID        int64
	Security      *MSecurity
	User          *MUser
	SubAccount    *MSubAccount
	BrokerAccount *MBrokerAccount
	Qty           float64
	Price         float64
	StopPrice     float64
	Side          OrderSide
	Type          OrderType
	Tif           TimeInForce
	Status        OrderStatus
	CumQty        float64
	Tm            int64
}

// -----------------------------------------------------------------------------

// IsLive reports whether the order can still trade or be cancelled.
func (o *MOrder) IsLive() bool {
	switch o.Status {
	case StatusUnconfirmed, StatusPending, StatusNew:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// IsBuy treats buy as the long direction; sell and short reduce.
func (o *MOrder) IsBuy() bool {
	return o.Side == SideBuy
}

// -----------------------------------------------------------------------------

// SubAccountID returns the owning sub-account id or 0.
func (o *MOrder) SubAccountID() int64 {
	if o.SubAccount == nil {
		return 0
	}
	return o.SubAccount.ID
}

// -----------------------------------------------------------------------------

// BrokerAccountID returns the clearing account id or 0.
func (o *MOrder) BrokerAccountID() int64 {
	if o.BrokerAccount == nil {
		return 0
	}
	return o.BrokerAccount.ID
}
