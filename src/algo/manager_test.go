package algo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gateway/src/exchange"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/refdata"
)

// -----------------------------------------------------------------------------

type noopTracker struct{}

func (noopTracker) OnConfirmation(cm *models.MConfirmation) {}

// -----------------------------------------------------------------------------

type eventRec struct {
	ev      *models.MAlgoEvent
	offline bool
}

type testMsgRec struct {
	token   string
	msg     string
	stopped bool
}

type eventSink struct {
	mu     sync.Mutex
	events []eventRec
	msgs   []testMsgRec
}

func (s *eventSink) SendAlgoEvent(ev *models.MAlgoEvent, offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventRec{ev: ev, offline: offline})
}

func (s *eventSink) SendTestMsg(token, msg string, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, testMsgRec{token: token, msg: msg, stopped: stopped})
}

func (s *eventSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, r := range s.events {
		out = append(out, r.ev.Status)
	}
	return out
}

func (s *eventSink) eventSnapshot() []eventRec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventRec, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) msgSnapshot() []testMsgRec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]testMsgRec, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// -----------------------------------------------------------------------------

// fillSink totals executed shares per algo id off the confirmation stream.
type fillSink struct {
	mu     sync.Mutex
	filled map[int64]float64
}

func newFillSink() *fillSink {
	return &fillSink{filled: make(map[int64]float64)}
}

func (s *fillSink) SendConfirmation(cm *models.MConfirmation, offline bool) {
	if cm.ExecType != models.ExecFilled && cm.ExecType != models.ExecPartial {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filled[cm.Order.AlgoID] += cm.LastShares
}

func (s *fillSink) total(algoID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled[algoID]
}

// -----------------------------------------------------------------------------

type algoEngine struct {
	mgr        *Manager
	book       *exchange.GlobalOrderBook
	md         *marketdata.Manager
	securities *refdata.SecurityManager
	accounts   *refdata.AccountManager
	user       *models.MUser
}

// newAlgoEngine wires seeded reference data, a paper venue and the algo
// manager. tick shortens the strategy loops for the duration of the test.
func newAlgoEngine(t *testing.T, latency, tick time.Duration) *algoEngine {
	t.Helper()

	oldTick := strategyTick
	strategyTick = tick
	t.Cleanup(func() { strategyTick = oldTick })

	log := testLogger(t)
	securities, accounts := seededRefData(t)

	cfg := &models.MConfig{Name: "test", AlgoDir: t.TempDir()}
	md := marketdata.NewManager(cfg, securities, log)
	router := exchange.NewManager(cfg, log)
	book := exchange.NewGlobalOrderBook(router, noopTracker{}, 256, log)

	paper := exchange.NewPaperAdapter(models.MExchangeAdapterConfig{
		Name:      "paper",
		Type:      "paper",
		LatencyMs: int(latency / time.Millisecond),
	}, book, md, log)
	t.Cleanup(func() { _ = paper.Stop() })
	require.NoError(t, router.AddAdapter(paper))

	mgr := NewManager(cfg, book, md, 64, log)
	t.Cleanup(mgr.StopAll)
	require.NoError(t, mgr.AddAdapter(NewTWAP()))
	require.NoError(t, mgr.AddAdapter(NewPOV()))

	return &algoEngine{
		mgr:        mgr,
		book:       book,
		md:         md,
		securities: securities,
		accounts:   accounts,
		user:       accounts.GetUserByID(2),
	}
}

func (e *algoEngine) parse(t *testing.T, raw string) ParamMap {
	t.Helper()
	params, err := ParseParams(decodeObj(t, raw), e.securities, e.accounts)
	require.NoError(t, err)
	return params
}

// -----------------------------------------------------------------------------

func TestSpawnUnknownName(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	params := e.parse(t, `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 100}}`)
	algo, err := e.mgr.Spawn("VWAP", "t1", e.user, "{}", params)
	require.Error(t, err)
	assert.Equal(t, "Unknown algo name: VWAP", err.Error())
	assert.Nil(t, algo)

	// Test runs of an unknown strategy are a silent no-op.
	algo, err = e.mgr.Spawn("VWAP", "t2", e.user, "", nil)
	require.NoError(t, err)
	assert.Nil(t, algo)
	assert.Equal(t, 0, e.mgr.RunningCount())
}

// -----------------------------------------------------------------------------

func TestSpawnValidationFails(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	cases := []struct {
		raw  string
		want string
	}{
		{`{"Seconds": 60}`,
			"missing required parameter: Security"},
		{`{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 100}, "Seconds": 90000}`,
			"parameter Seconds out of range [1, 86400]: 90000"},
		{`{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 100}, "Seconds": "soon"}`,
			"parameter Seconds must be a number"},
	}
	for _, tc := range cases {
		_, err := e.mgr.Spawn("TWAP", "", e.user, tc.raw, e.parse(t, tc.raw))
		require.Error(t, err, tc.raw)
		assert.Equal(t, tc.want, err.Error(), tc.raw)
	}
	assert.Equal(t, 0, e.mgr.RunningCount())
	assert.Equal(t, int64(0), e.mgr.Seq())
}

// -----------------------------------------------------------------------------

func TestTWAPExecutesFullQuantity(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 100*time.Millisecond)

	sink := &eventSink{}
	e.mgr.RegisterListener(1, sink)
	fills := newFillSink()
	e.book.RegisterListener(1, fills)

	raw := `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 300},
		"Price": 189.5, "Seconds": 2}`
	algo, err := e.mgr.Spawn("TWAP", "tw-1", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)
	require.NotNil(t, algo)
	assert.Equal(t, models.AlgoRunning, algo.Status)

	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0 &&
			fills.total(algo.ID) == 300.0 &&
			len(sink.statuses()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.AlgoStopped, algo.Status)
	assert.Equal(t, []string{"running", "stopped"}, sink.statuses())

	// Quantity arrived sliced, not as one child.
	assert.GreaterOrEqual(t, e.book.OrderCount(), 2)
	assert.Empty(t, e.book.LiveOrders())
}

// -----------------------------------------------------------------------------

func TestPOVParticipatesInPrintedVolume(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 20*time.Millisecond)

	fills := newFillSink()
	e.book.RegisterListener(1, fills)

	// Tape before the spawn does not count toward participation.
	e.md.Apply(1, func(s *models.MSnapshot) { s.Volume += 1000 })

	raw := `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 600},
		"Price": 189.5, "MaxPov": 0.5, "Seconds": 60}`
	algo, err := e.mgr.Spawn("POV", "pov-1", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)
	require.NotNil(t, algo)

	time.Sleep(5 * strategyTick)

	e.md.Apply(1, func(s *models.MSnapshot) { s.Volume += 1000 })
	require.Eventually(t, func() bool {
		return fills.total(algo.ID) == 500.0
	}, 3*time.Second, 10*time.Millisecond)

	// Own fills printed back into the tape must not compound participation.
	time.Sleep(3 * strategyTick)
	assert.Equal(t, 500.0, fills.total(algo.ID))

	// More tape lifts the target, capped by the tuple quantity.
	e.md.Apply(1, func(s *models.MSnapshot) { s.Volume += 1000 })
	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0 && fills.total(algo.ID) == 600.0
	}, 3*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestScriptedTestRun(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	sink := &eventSink{}
	e.mgr.RegisterListener(1, sink)

	algo, err := e.mgr.Spawn("TWAP", "tok-9", e.user, "", nil)
	require.NoError(t, err)
	require.NotNil(t, algo)

	require.Eventually(t, func() bool {
		return len(sink.msgSnapshot()) == 6 && len(sink.statuses()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	msgs := sink.msgSnapshot()
	require.Len(t, msgs, 6)
	assert.Equal(t, "TWAP test run started", msgs[0].msg)
	assert.Equal(t, "TWAP test run finished", msgs[4].msg)
	for _, m := range msgs[:5] {
		assert.Equal(t, "tok-9", m.token)
		assert.False(t, m.stopped)
	}
	assert.True(t, msgs[5].stopped)
	assert.Empty(t, msgs[5].msg)

	assert.Equal(t, []string{"running", "stopped"}, sink.statuses())
	assert.Equal(t, int64(2), e.mgr.Seq())
	// No orders out of a test run.
	assert.Equal(t, 0, e.book.OrderCount())
}

// -----------------------------------------------------------------------------

func TestStopCancelsChildren(t *testing.T) {
	e := newAlgoEngine(t, 250*time.Millisecond, 5*time.Millisecond)

	raw := `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 10000},
		"Price": 189.5, "Seconds": 2}`
	algo, err := e.mgr.Spawn("TWAP", "tok-stop", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)
	require.NotNil(t, algo)

	require.Eventually(t, func() bool {
		return e.book.OrderCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	e.mgr.StopToken("tok-stop")

	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.AlgoStopped, algo.Status)

	require.Eventually(t, func() bool {
		return len(e.book.LiveOrders()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestStopRunningSweepsInstances(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	raw := `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 10000},
		"Price": 189.5, "Seconds": 60}`
	_, err := e.mgr.Spawn("TWAP", "sweep-1", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)
	_, err = e.mgr.Spawn("TWAP", "sweep-2", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)

	assert.Equal(t, 2, e.mgr.StopRunning())
	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// The sweep is not terminal: the manager keeps spawning.
	algo, err := e.mgr.Spawn("TWAP", "sweep-3", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)
	require.NotNil(t, algo)
	assert.Equal(t, 1, e.mgr.RunningCount())

	e.mgr.Stop(algo.ID)
	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestModifyPublishesNewParams(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	sink := &eventSink{}
	e.mgr.RegisterListener(1, sink)

	raw := `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 10000},
		"Price": 189.5, "Seconds": 60}`
	algo, err := e.mgr.Spawn("TWAP", "tok-mod", e.user, raw, e.parse(t, raw))
	require.NoError(t, err)
	require.NotNil(t, algo)

	raw2 := `{"Security": {"acc": 1, "sec": 1, "side": "buy", "qty": 10000},
		"Price": 200.5, "Seconds": 120}`
	e.mgr.ModifyToken("tok-mod", raw2, e.parse(t, raw2))

	events := sink.eventSnapshot()
	require.Len(t, events, 2)
	assert.Equal(t, models.AlgoRunning, events[1].ev.Status)
	assert.Equal(t, raw2, events[1].ev.Body)
	assert.Equal(t, algo.ID, events[1].ev.AlgoID)
	assert.Equal(t, raw2, algo.ParamsJSON)

	// Modifying an unknown token is a no-op.
	e.mgr.ModifyToken("nope", raw2, e.parse(t, raw2))
	assert.Len(t, sink.eventSnapshot(), 2)

	e.mgr.StopToken("tok-mod")
	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestFindTokenRemembersStoppedRuns(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	algo, err := e.mgr.Spawn("TWAP", "dup-1", e.user, "", nil)
	require.NoError(t, err)
	require.NotNil(t, algo)

	require.Eventually(t, func() bool {
		return e.mgr.RunningCount() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// Tokens stay claimed after the run ends, so a client cannot reuse one.
	found := e.mgr.FindToken("dup-1")
	require.NotNil(t, found)
	assert.Equal(t, algo.ID, found.ID)
	assert.Equal(t, models.AlgoStopped, found.Status)
	assert.Same(t, found, e.mgr.Get(algo.ID))

	assert.Nil(t, e.mgr.FindToken("never-used"))
}

// -----------------------------------------------------------------------------

func TestLoadStoreReplaysEvents(t *testing.T) {
	e := newAlgoEngine(t, time.Millisecond, 5*time.Millisecond)

	_, err := e.mgr.Spawn("POV", "replay-1", e.user, "", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return e.mgr.Seq() == 2
	}, 2*time.Second, 5*time.Millisecond)

	sink := &eventSink{}
	e.mgr.LoadStore(0, sink)
	events := sink.eventSnapshot()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"running", "stopped"}, sink.statuses())
	for _, r := range events {
		assert.True(t, r.offline)
		assert.Equal(t, "replay-1", r.ev.Token)
		assert.Equal(t, e.user.ID, r.ev.UserID)
	}

	// Replay resumes past the cursor.
	tail := &eventSink{}
	e.mgr.LoadStore(events[0].ev.Seq, tail)
	require.Len(t, tail.eventSnapshot(), 1)
	assert.Equal(t, []string{"stopped"}, tail.statuses())
}

// -----------------------------------------------------------------------------

func TestStrategyFiles(t *testing.T) {
	log := testLogger(t)
	cfg := &models.MConfig{Name: "test", AlgoDir: t.TempDir()}
	mgr := NewManager(cfg, nil, nil, 8, log)

	require.NoError(t, mgr.SaveFile("alpha.py", "print(1)\n"))
	require.NoError(t, mgr.SaveFile("_wip.py", "draft\n"))

	// Hidden and underscore-prefixed names never reach the catalog.
	assert.Equal(t, []string{"alpha.py"}, mgr.ListFiles())

	text, err := mgr.ReadFile("alpha.py")
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", text)

	// Names may not traverse outside the algo directory.
	assert.Error(t, mgr.SaveFile("../evil.py", "x"))
	assert.Error(t, mgr.SaveFile(".hidden", "x"))
	assert.Error(t, mgr.SaveFile("a/b.py", "x"))
	_, err = mgr.ReadFile("../evil.py")
	assert.Error(t, err)

	_, err = mgr.ReadFile("missing.py")
	assert.Error(t, err)

	require.NoError(t, mgr.DeleteFile("alpha.py"))
	assert.Empty(t, mgr.ListFiles())
	assert.Error(t, mgr.DeleteFile("alpha.py"))
}
