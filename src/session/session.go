package session

import (
	"sync/atomic"

	"trade-gateway/src/algo"
	"trade-gateway/src/auth"
	"trade-gateway/src/exchange"
	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/position"
	"trade-gateway/src/refdata"
	"trade-gateway/src/wire"
)

// -----------------------------------------------------------------------------
// A Session owns one client connection: it parses inbound frames, dispatches
// verbs against the process-wide engines and serializes everything it sends
// back. All session state is confined to its strand, so handlers never lock.
// -----------------------------------------------------------------------------

// ISessionTable resolves live sessions by id. Timer callbacks hold ids, not
// session pointers, so a closed session cannot be revived by a stale timer.
type ISessionTable interface {

	// Get returns the session or nil if it is gone.
	Get(id uint64) *Session
}

// -----------------------------------------------------------------------------

// Deps bundles the process-wide engines a session dispatches into. One value
// is shared by every session the server creates.
type Deps struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	Tokens     *auth.TokenStore
	Securities *refdata.SecurityManager
	Accounts   *refdata.AccountManager
	MarketData *marketdata.Manager
	Exchanges  *exchange.Manager
	Book       *exchange.GlobalOrderBook
	Algos      *algo.Manager
	Positions  *position.Manager
	Sessions   ISessionTable

	// BootTm is the process start time in epoch seconds, echoed in the
	// login reply.
	BootTm int64

	// StopServer and Kill are the process-level halves of the shutdown
	// verb: stop accepting connections, then end the process hard.
	StopServer func()
	Kill       func()
}

// -----------------------------------------------------------------------------

// subEntry is one market data subscription: a reference count and the last
// snapshot sent, which the publisher diffs against.
type subEntry struct {
	refs int
	last models.MSnapshot
}

// pnlKey identifies one (sub-account, security) PnL stream.
type pnlKey struct {
	acc int64
	sec int64
}

// -----------------------------------------------------------------------------

type Session struct {
	ID uint64
	Deps

	transport interfaces.ITransport
	strand    *strand
	closed    atomic.Bool

	// Everything below runs on the strand only.
	user       *models.MUser
	subs       map[int64]*subEntry
	ecSeen     map[string]bool
	mdSeen     map[string]bool
	singleLast map[pnlKey]models.MPnl
	pnlLast    map[int64]models.MPnl
	subPnl     bool
	testTokens map[string]struct{}
}

// -----------------------------------------------------------------------------

// NewSession wraps one accepted transport. The caller registers the session
// in its table before any message can arrive.
func NewSession(id uint64, transport interfaces.ITransport, deps Deps) *Session {
	s := &Session{
		ID:         id,
		Deps:       deps,
		transport:  transport,
		strand:     newStrand(),
		subs:       make(map[int64]*subEntry),
		ecSeen:     make(map[string]bool),
		mdSeen:     make(map[string]bool),
		singleLast: make(map[pnlKey]models.MPnl),
		pnlLast:    make(map[int64]models.MPnl),
		testTokens: make(map[string]struct{}),
	}
	deps.Logger.Debug("%s: session %d opened", transport.RemoteAddr(), id)
	return s
}

// -----------------------------------------------------------------------------

// Close tears the session down. Idempotent and safe from any goroutine,
// including the session's own strand.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.Book.UnregisterListener(s.ID)
	s.Algos.UnregisterListener(s.ID)
	s.strand.stop()
	s.transport.Close()
	s.Logger.Debug("%s: session %d closed", s.transport.RemoteAddr(), s.ID)
}

// -----------------------------------------------------------------------------

// OnMessageAsync queues one inbound frame onto the strand. Stateful
// transports feed their read loop through here.
func (s *Session) OnMessageAsync(raw []byte) {
	s.strand.post(func() { s.dispatch(raw, "") })
}

// -----------------------------------------------------------------------------

// OnMessageSync handles one inbound frame on the calling goroutine, with the
// request's own session token. Stateless transports are request-scoped, so
// nothing else can race the session state.
func (s *Session) OnMessageSync(raw []byte, token string) {
	s.dispatch(raw, token)
}

// -----------------------------------------------------------------------------

// reply encodes one frame and sends it.
func (s *Session) reply(elems ...interface{}) {
	frame, err := wire.Frame(elems...)
	if err != nil {
		s.Logger.Error("%s: encode: %v", s.transport.RemoteAddr(), err)
		return
	}
	s.sendRaw(frame)
}

func (s *Session) sendRaw(frame []byte) {
	if s.closed.Load() {
		return
	}
	s.transport.Send(frame)
}

// -----------------------------------------------------------------------------

// onLogin serves both login and validate_user: same credential check, but
// validate_user only echoes the result and never touches session state.
func (s *Session) onLogin(action string, msg wire.Msg) error {
	name, err := msg.GetString(1)
	if err != nil {
		return err
	}
	pwd, err := msg.GetString(2)
	if err != nil {
		return err
	}
	user := s.Accounts.GetUser(name)
	state := auth.Verify(user, pwd)

	if action == "validate_user" {
		corr, err := msg.GetInt(3)
		if err != nil {
			return err
		}
		var id int64
		if state == auth.StateOK {
			id = user.ID
		}
		s.reply("user_validation", id, corr)
		return nil
	}

	if state != auth.StateOK {
		s.Logger.Warning("%s: login %q: %s", s.transport.RemoteAddr(), name, state)
		s.reply("connection", state)
		return nil
	}

	token := s.Tokens.Mint(user)
	s.reply("connection", "ok", map[string]interface{}{
		"session":            position.Session(),
		"userId":             user.ID,
		"startTime":          s.BootTm,
		"sessionToken":       token,
		"securitiesCheckSum": s.Securities.CheckSum(),
	})

	// First login on a stateful connection binds the user and starts the
	// stream: catalog now, diffs every publish tick. Repeat logins only
	// mint a fresh token.
	if s.user == nil && !s.transport.Stateless() {
		s.user = user
		s.Logger.Info("%s: user %s logged in", s.transport.RemoteAddr(), user.Name)
		s.Book.RegisterListener(s.ID, s)
		s.Algos.RegisterListener(s.ID, s)
		s.sendCatalog()
		s.schedulePublish()
	}
	return nil
}
