package models

// -----------------------------------------------------------------------------

// ExecType classifies a confirmation.
type ExecType int

const (
	ExecUnconfirmed ExecType = iota
	ExecPending
	ExecPendingCancel
	ExecNew
	ExecCancelled
	ExecFilled
	ExecPartial
	ExecNewRejected
	ExecCancelRejected
	ExecRiskRejected
)

// Status is the wire status string for the exec type.
func (e ExecType) Status() string {
	switch e {
	case ExecUnconfirmed:
		return "unconfirmed"
	case ExecPending:
		return "pending"
	case ExecPendingCancel:
		return "pending_cancel"
	case ExecNew:
		return "new"
	case ExecCancelled:
		return "cancelled"
	case ExecFilled:
		return "filled"
	case ExecPartial:
		return "partial"
	case ExecNewRejected:
		return "new_rejected"
	case ExecCancelRejected:
		return "cancel_rejected"
	case ExecRiskRejected:
		return "risk_rejected"
	}
	return ""
}

// -----------------------------------------------------------------------------

// TransType qualifies fill confirmations. Fills that are neither new nor
// cancel corrections are not published.
type TransType int

const (
	TransNew TransType = iota
	TransCancel
	TransCorrect
	TransStatus
)

// -----------------------------------------------------------------------------

// MConfirmation is one immutable execution report from the order book.
// TransactionTime is microseconds since epoch; Seq is assigned by the store
// and is the replay cursor for the offline verb. OrderID carries the
// venue-assigned id on ExecNew.
type MConfirmation struct {
	Order           *MOrder
	ExecType        ExecType
	TransactionTime int64
	Seq             int64
	OrderID         string
	LastShares      float64
	LastPx          float64
	ExecID          string
	ExecTransType   TransType
	Text            string
}

// SetSeq is called once by the confirmation store on append.
func (c *MConfirmation) SetSeq(seq int64) { c.Seq = seq }

func (c *MConfirmation) GetSeq() int64 { return c.Seq }
