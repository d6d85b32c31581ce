package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func TestOrderValidationErrors(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["order",1,"GAMMA","buy","limit","Day",100,10,0]`))
	awaitFrame(t, tr, `["error","order","sub_account","Invalid sub_account: GAMMA"]`)

	s.OnMessageAsync([]byte(`["order",99,"ALPHA","buy","limit","Day",100,10,0]`))
	awaitFrame(t, tr, `["error","order","security id","Invalid security id: 99"]`)

	s.OnMessageAsync([]byte(`["order",1,"ALPHA","hold","limit","Day",100,10,0]`))
	awaitFrame(t, tr, `["error","order","side","Invalid side: hold"]`)

	s.OnMessageAsync([]byte(`["order",1,"ALPHA","buy","stop","Day",100,10,0]`))
	awaitFrame(t, tr, `["error","order","stop price","Miss stop price for stop order"]`)

	// Wrong element kind surfaces as a json error, not an order error.
	s.OnMessageAsync([]byte(`["order",1,"ALPHA","buy","limit","Day",100,"px",0]`))
	awaitFrame(t, tr, `["error","json"`, `expect number`)

	// A zero quantity passes parsing and dies at the risk gate.
	s.OnMessageAsync([]byte(`["order",1,"ALPHA","buy","limit","Day",0,10,0]`))
	frame := awaitFrame(t, tr, `"risk_rejected"`, `"invalid qty"`)
	arr := decode(t, frame)
	assert.Equal(t, "order", arr[0])
	// The rejection echoes the order attributes after the reason.
	assert.EqualValues(t, 1, arr[6]) // security id
	assert.Equal(t, "buy", arr[12])
}

// -----------------------------------------------------------------------------

func TestOrderLifecycleStreamsToOwner(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	admin, adminTr := g.open(t, false)
	g.login(t, admin, adminTr, "admin")

	// BETA is owned by trader alone.
	s.OnMessageAsync([]byte(`["order",2,"BETA","buy","limit","Day",100,400,0]`))

	unconfirmed := decode(t, awaitFrame(t, tr, `"unconfirmed"`))
	require.Len(t, unconfirmed, 15)
	assert.Equal(t, "order", unconfirmed[0])
	ordID := unconfirmed[1]
	assert.EqualValues(t, 2, unconfirmed[5])  // security
	assert.EqualValues(t, 0, unconfirmed[6])  // algo
	assert.EqualValues(t, 2, unconfirmed[7])  // user
	assert.EqualValues(t, 2, unconfirmed[8])  // sub-account
	assert.EqualValues(t, 2, unconfirmed[9])  // broker account
	assert.EqualValues(t, 100, unconfirmed[10])
	assert.EqualValues(t, 400, unconfirmed[11])
	assert.Equal(t, "buy", unconfirmed[12])
	assert.Equal(t, "limit", unconfirmed[13])
	assert.Equal(t, "Day", unconfirmed[14])

	awaitFrame(t, tr, `"pending"`)
	venueAck := decode(t, awaitFrame(t, tr, `"new"`, `"SIM-`))
	assert.Equal(t, ordID, venueAck[1])

	filled := decode(t, awaitFrame(t, tr, `"filled"`))
	require.Len(t, filled, 9)
	assert.EqualValues(t, 100, filled[5]) // last shares
	assert.EqualValues(t, 400, filled[6]) // last price
	assert.NotEmpty(t, filled[7])         // exec id
	assert.Equal(t, "new", filled[8])

	// The admin does not own BETA directly, so nothing leaked there.
	g.sync(t, admin, adminTr)
	assert.Empty(t, findFrame(adminTr.snapshot(), `"unconfirmed"`))
	assert.Empty(t, findFrame(adminTr.snapshot(), `"filled"`))
}

// -----------------------------------------------------------------------------

func TestCancelVerb(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["cancel",12345]`))
	awaitFrame(t, tr, `["error","cancel","order id","Invalid order id: 12345"]`)

	s.OnMessageAsync([]byte(`["order",1,"ALPHA","buy","limit","Day",100,190,0]`))
	filled := decode(t, awaitFrame(t, tr, `"filled"`))

	s.OnMessageAsync([]byte(fmt.Sprintf(`["cancel",%v]`, filled[1])))
	awaitFrame(t, tr, `"cancel_rejected"`, `"order is not live"`)
}

// -----------------------------------------------------------------------------

func TestCancelLiveOrder(t *testing.T) {
	g := newGatewayWithLatency(t, 300*time.Millisecond)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["order",1,"ALPHA","buy","limit","Day",100,190,0]`))
	pending := decode(t, awaitFrame(t, tr, `"pending"`))

	s.OnMessageAsync([]byte(fmt.Sprintf(`["cancel",%v]`, pending[1])))
	awaitFrame(t, tr, `"cancelled"`)
	assert.Empty(t, findFrame(tr.snapshot(), `"filled"`))
}

// -----------------------------------------------------------------------------

func TestPositionVerb(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["position",1,"ALPHA"]`))
	frame := awaitFrame(t, tr, `["position",{"`)
	pos := decode(t, frame)[1].(map[string]interface{})
	assert.EqualValues(t, 200, pos["qty"])
	assert.EqualValues(t, 150, pos["avg_px"])
	assert.EqualValues(t, 0, pos["realized_pnl"])

	// Broker-side book for the same pair.
	s.OnMessageAsync([]byte(`["position",3,"ALPHA",true]`))
	awaitFrame(t, tr, `"avg_px":140`)

	s.OnMessageAsync([]byte(`["position",42,"ALPHA"]`))
	awaitFrame(t, tr, `["error","position","security id","Invalid security id: 42"]`)

	s.OnMessageAsync([]byte(`["position",1,"GAMMA"]`))
	awaitFrame(t, tr, `["error","position","account name","Invalid account name: GAMMA"]`)

	// The broker flag must be a bool.
	s.OnMessageAsync([]byte(`["position",1,"ALPHA",1]`))
	awaitFrame(t, tr, `["error","json"`, `expect bool`)
}

// -----------------------------------------------------------------------------

func TestBodVerb(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["bod"]`))
	g.sync(t, s, tr)

	frames := tr.snapshot()
	require.Equal(t, 3, countPrefix(frames, `["bod",`))

	row := decode(t, findFrame(frames, `["bod",1,3,`))
	require.Len(t, row, 8)
	assert.EqualValues(t, -50, row[3])    // qty
	assert.EqualValues(t, 140, row[4])    // avg px
	assert.EqualValues(t, 125.5, row[5])  // realized
	assert.EqualValues(t, 1, row[6])      // broker account
}

// -----------------------------------------------------------------------------

func TestOfflineReplay(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["order",2,"BETA","buy","limit","Day",100,400,0]`))
	awaitFrame(t, tr, `"filled"`)
	s.OnMessageAsync([]byte(`["algo","test","TWAP","tok-off"]`))
	awaitFrame(t, tr, `["test_done","tok-off"]`)
	awaitFrame(t, tr, `"stopped"`)

	s.OnMessageAsync([]byte(`["offline",0,0]`))
	awaitFrame(t, tr, `["offline","complete"]`)

	frames := tr.snapshot()
	iAlgos := indexOf(frames, `["offline_algos","complete"]`)
	iOrders := indexOf(frames, `["offline_orders","complete"]`)
	iDone := indexOf(frames, `["offline","complete"]`)
	require.True(t, iAlgos >= 0 && iAlgos < iOrders && iOrders < iDone)

	// Stored events replay under the capitalized verbs.
	assert.Equal(t, 2, countPrefix(frames, `["Algo",`))
	assert.Equal(t, 4, countPrefix(frames, `["Order",`))
	replayed := decode(t, findFrame(frames, `["Order",`, `"filled"`))
	assert.Greater(t, replayed[3], 0.0) // store sequence

	// Replay to a session that owns none of it delivers only terminators.
	admin, adminTr := g.open(t, false)
	g.login(t, admin, adminTr, "admin")
	admin.OnMessageAsync([]byte(`["offline",0,0]`))
	awaitFrame(t, adminTr, `["offline","complete"]`)
	assert.Equal(t, 0, countPrefix(adminTr.snapshot(), `["Order",`))
	assert.Equal(t, 0, countPrefix(adminTr.snapshot(), `["Algo",`))
}

// -----------------------------------------------------------------------------

func TestAlgoVerbErrors(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["algo","bogus"]`))
	awaitFrame(t, tr, `["error","algo","invalid action","bogus"]`)

	// Tokens stay reserved even after the run finished.
	s.OnMessageAsync([]byte(`["algo","test","TWAP","dup1"]`))
	awaitFrame(t, tr, `["test_done","dup1"]`)
	s.OnMessageAsync([]byte(`["algo","new","TWAP","dup1",{}]`))
	awaitFrame(t, tr, `["error","algo","duplicate token","dup1"]`)

	s.OnMessageAsync([]byte(`["algo","new","VWAP","nn1",{"Security":{"acc":1,"sec":1,"side":"buy","qty":100}}]`))
	awaitFrame(t, tr, `["error","algo","invalid params","nn1","Unknown algo name: VWAP"]`)

	s.OnMessageAsync([]byte(`["algo","new","TWAP","nn2",{"Security":{"acc":1,"sec":1,"side":"buy","qty":100},"Seconds":90000}]`))
	awaitFrame(t, tr, `["error","algo","invalid params","nn2"`, `out of range`)

	// Parameter lookups that fail in modify ride the fallthrough reply.
	s.OnMessageAsync([]byte(`["algo","modify","zzz",{"Target":{"acc":99,"sec":1,"side":"buy","qty":1}}]`))
	awaitFrame(t, tr, `["error","Session.OnMessage"`, `Unknown account id: 99`)

	// Params must be an object.
	s.OnMessageAsync([]byte(`["algo","modify","zzz",42]`))
	awaitFrame(t, tr, `["error","json"`, `expect object`)
}

// -----------------------------------------------------------------------------

func TestAlgoTupleOwnership(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "admin")

	// Admins get no bypass on algo accounts: BETA is not theirs.
	s.OnMessageAsync([]byte(`["algo","new","TWAP","own1",{"Security":{"acc":2,"sec":1,"side":"buy","qty":100},"Seconds":60}]`))
	awaitFrame(t, tr, `["error","algo","invalid params","own1","No permission to trade with account: BETA"]`)
}

// -----------------------------------------------------------------------------

func TestAlgoTestRunRoutesToSession(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	other, otherTr := g.open(t, false)
	g.login(t, other, otherTr, "admin")

	s.OnMessageAsync([]byte(`["algo","test","TWAP","tok-s"]`))
	awaitFrame(t, tr, `["test_done","tok-s"]`)
	awaitFrame(t, tr, `"tok-s"`, `"stopped"`)

	frames := tr.snapshot()
	assert.Equal(t, 6, countPrefix(frames, `["test_msg",`))
	running := decode(t, findFrame(frames, `["algo",`, `"running"`))
	assert.Equal(t, "tok-s", running[4])
	assert.Equal(t, "TWAP", running[5])

	// Scripted output and events stay with the spawning session.
	g.sync(t, other, otherTr)
	assert.Equal(t, 0, countPrefix(otherTr.snapshot(), `["test_msg",`))
	assert.Empty(t, findFrame(otherTr.snapshot(), `"tok-s"`))
}

// -----------------------------------------------------------------------------

func TestAlgoCancelByToken(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["algo","new","TWAP","c1",{"Security":{"acc":1,"sec":1,"side":"buy","qty":10000},"Seconds":3600,"Price":190}]`))
	awaitFrame(t, tr, `"c1"`, `"running"`)

	s.OnMessageAsync([]byte(`["algo","cancel","c1"]`))
	awaitFrame(t, tr, `"c1"`, `"stopped"`)
	require.Eventually(t, func() bool {
		return g.deps.Algos.RunningCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestAlgoFileVerbs(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["saveAlgoFile","vwap.py","print(1)"]`))
	awaitFrame(t, tr, `["saveAlgoFile","vwap.py"]`)

	s.OnMessageAsync([]byte(`["algoFile","vwap.py"]`))
	awaitFrame(t, tr, `["algoFile","vwap.py","print(1)"]`)

	s.OnMessageAsync([]byte(`["algoFile","ghost.py"]`))
	awaitFrame(t, tr, `["algoFile","ghost.py",null,"Not found"]`)

	s.OnMessageAsync([]byte(`["saveAlgoFile","../evil.py","x"]`))
	awaitFrame(t, tr, `["saveAlgoFile","../evil.py","Can not write"]`)

	s.OnMessageAsync([]byte(`["deleteAlgoFile","vwap.py"]`))
	g.sync(t, s, tr)
	assert.NotEmpty(t, findFrame(tr.snapshot(), `["deleteAlgoFile","vwap.py"]`))

	s.OnMessageAsync([]byte(`["deleteAlgoFile","vwap.py"]`))
	g.sync(t, s, tr)
	frames := tr.snapshot()
	last := frames[indexOf(frames, `["deleteAlgoFile",`)+1:]
	require.NotEmpty(t, findFrame(last, `["deleteAlgoFile","vwap.py",`))
}

// -----------------------------------------------------------------------------

func TestReconnectVerb(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	s.OnMessageAsync([]byte(`["reconnect","paper"]`))
	s.OnMessageAsync([]byte(`["reconnect","ghost"]`))
	g.sync(t, s, tr)
	assert.Equal(t, 0, countPrefix(tr.snapshot(), `["error",`))
}

// -----------------------------------------------------------------------------

func TestShutdownVerb(t *testing.T) {
	g := newGateway(t)
	stopped := make(chan struct{})
	killed := make(chan struct{})
	g.deps.StopServer = func() { close(stopped) }
	g.deps.Kill = func() { close(killed) }

	trader, traderTr := g.open(t, false)
	g.login(t, trader, traderTr, "trader")
	trader.OnMessageAsync([]byte(`["shutdown"]`))
	g.sync(t, trader, traderTr)
	select {
	case <-stopped:
		t.Fatal("non-admin shutdown must be ignored")
	default:
	}

	s, tr := g.open(t, false)
	g.login(t, s, tr, "admin")
	s.OnMessageAsync([]byte(`["order",1,"ALPHA","buy","limit","Day",100,190,0]`))
	awaitFrame(t, tr, `"filled"`)

	s.OnMessageAsync([]byte(`["shutdown"]`))
	select {
	case <-killed:
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown never reached the kill hook")
	}
	<-stopped
	assert.Empty(t, g.deps.Book.LiveOrders())
}
