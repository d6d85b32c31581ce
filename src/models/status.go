package models

// MAdapterStatus is one upstream connection as reported by the status endpoint.
type MAdapterStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // exchange | data
	Connected bool   `json:"connected"`
}

// MGatewayStatus represents the process counters served by /api/status.
type MGatewayStatus struct {
	Name            string           `json:"name"`
	StartTime       int64            `json:"start_time"`
	UptimeSeconds   int64            `json:"uptime_seconds"`
	TradingDate     string           `json:"trading_date"`
	Sessions        int              `json:"sessions"`
	Orders          int              `json:"orders"`
	LiveOrders      int              `json:"live_orders"`
	ConfirmationSeq int64            `json:"confirmation_seq"`
	RunningAlgos    int              `json:"running_algos"`
	Securities      int              `json:"securities"`
	Adapters        []MAdapterStatus `json:"adapters"`
}
