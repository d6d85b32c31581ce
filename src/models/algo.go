package models

// -----------------------------------------------------------------------------

// Algo lifecycle statuses as published on the wire.
const (
	AlgoRunning = "running"
	AlgoStopped = "stopped"
)

// -----------------------------------------------------------------------------

// MAlgo is one spawned algorithm instance. ParamsJSON holds the raw
// parameter object exactly as the client sent it.
type MAlgo struct {
	ID         int64
	Token      string
	Name       string
	User       *MUser
	Status     string
	ParamsJSON string
	Tm         int64
}

// -----------------------------------------------------------------------------

// UserID returns the owning user id or 0.
func (a *MAlgo) UserID() int64 {
	if a == nil || a.User == nil {
		return 0
	}
	return a.User.ID
}

// -----------------------------------------------------------------------------

// MParamDef describes one strategy parameter for the algo_def catalog frame.
// Default carries the kind: bool, int64, float64, string, a security tuple or
// a vector of scalars.
type MParamDef struct {
	Name      string
	Default   interface{}
	Required  bool
	Min       float64
	Max       float64
	Precision int
}

// -----------------------------------------------------------------------------

// MAlgoEvent is one sequenced lifecycle event kept for offline replay.
type MAlgoEvent struct {
	Seq    int64
	AlgoID int64
	Tm     int64
	Token  string
	Name   string
	Status string
	Body   string
	UserID int64
}

// SetSeq is called once by the event store on append.
func (e *MAlgoEvent) SetSeq(seq int64) { e.Seq = seq }

func (e *MAlgoEvent) GetSeq() int64 { return e.Seq }
