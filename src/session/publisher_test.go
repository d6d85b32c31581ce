package session

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------

func TestConnectivityPublish(t *testing.T) {
	g := newGateway(t)
	require.NoError(t, g.deps.MarketData.AddAdapter(marketdata.NewSimFeed("quotes", 100, nil)))

	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	awaitFrame(t, tr, `["market","exchange","paper",true]`)
	awaitFrame(t, tr, `["market","data","quotes",false]`)

	// Steady state repeats nothing.
	time.Sleep(120 * time.Millisecond)
	frames := tr.snapshot()
	require.Equal(t, 1, countPrefix(frames, `["market","exchange","paper",`))
	require.Equal(t, 1, countPrefix(frames, `["market","data","quotes",`))

	require.NoError(t, g.paper.Stop())
	awaitFrame(t, tr, `["market","exchange","paper",false]`)
	require.Equal(t, 2, countPrefix(tr.snapshot(), `["market","exchange","paper",`))
}

// -----------------------------------------------------------------------------

func TestMarketDataDiffPublish(t *testing.T) {
	g := newGateway(t)
	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")

	// 99 is unknown and skipped, id 1 picks up two references.
	s.OnMessageAsync([]byte(`["sub",1,99,1]`))
	g.sync(t, s, tr)
	require.Equal(t, 0, countPrefix(tr.snapshot(), `["md",`))

	g.deps.MarketData.Apply(1, func(snap *models.MSnapshot) {
		snap.Open = 189
		snap.Close = 190
	})
	frame := awaitFrame(t, tr, `["md",[1,{`)
	obj := mdFields(t, frame)
	require.Equal(t, 190.0, obj["c"])
	require.Equal(t, 189.0, obj["o"])
	require.Contains(t, obj, "t")
	require.NotContains(t, obj, "h")

	// One reference down, the stream stays live.
	s.OnMessageAsync([]byte(`["unsub",1]`))
	g.sync(t, s, tr)

	// Snapshot stamps carry second resolution, so wait out the tick.
	time.Sleep(1100 * time.Millisecond)
	g.deps.MarketData.Apply(1, func(snap *models.MSnapshot) { snap.Close = 191 })
	frame = awaitFrame(t, tr, `"c":191`)
	obj = mdFields(t, frame)
	require.NotContains(t, obj, "o")

	// Last reference gone, nothing publishes. Unknown ids unsubscribe quietly.
	s.OnMessageAsync([]byte(`["unsub",1,42]`))
	g.sync(t, s, tr)
	time.Sleep(1100 * time.Millisecond)
	g.deps.MarketData.Apply(1, func(snap *models.MSnapshot) { snap.Close = 192 })
	time.Sleep(120 * time.Millisecond)
	require.Equal(t, -1, indexOf(tr.snapshot(), `"c":192`))

	// A fresh session diffs against the empty snapshot and gets the full tape
	// in the subscribe reply itself.
	s2, tr2 := g.open(t, false)
	g.login(t, s2, tr2, "trader")
	s2.OnMessageAsync([]byte(`["sub",1]`))
	frame = awaitFrame(t, tr2, `["md",[1,{`)
	obj = mdFields(t, frame)
	require.Equal(t, 192.0, obj["c"])
	require.Equal(t, 189.0, obj["o"])
}

// mdFields unpacks the single-security payload of an md frame.
func mdFields(t *testing.T, frame string) map[string]interface{} {
	t.Helper()
	arr := decode(t, frame)
	require.Len(t, arr, 2)
	pair, ok := arr[1].([]interface{})
	require.True(t, ok, "frame %s", frame)
	require.Equal(t, 1.0, pair[0])
	obj, ok := pair[1].(map[string]interface{})
	require.True(t, ok, "frame %s", frame)
	return obj
}

// -----------------------------------------------------------------------------

func TestPnlStream(t *testing.T) {
	g := newGateway(t)

	// Two history lines: one older than the 24h replay window, one fresh.
	now := time.Now().Unix()
	hist := fmt.Sprintf("%d 1.00 2.00\n%d 3.50 -1.25\n", now-48*3600, now-600)
	require.NoError(t, os.WriteFile(filepath.Join(g.deps.Config.StoreDir, "pnl-1"), []byte(hist), 0o644))

	s, tr := g.open(t, false)
	g.login(t, s, tr, "trader")
	s.OnMessageAsync([]byte(`["pnl"]`))

	replay := awaitFrame(t, tr, `["Pnl",1,[[`)
	arr := decode(t, replay)
	rows, ok := arr[2].([]interface{})
	require.True(t, ok, "frame %s", replay)
	require.Len(t, rows, 1)
	row := rows[0].([]interface{})
	require.Equal(t, 3.5, row[1])
	require.Equal(t, -1.25, row[2])

	// The short IBM book carries begin-of-day realized PnL, everything else
	// sits at zero and stays silent.
	awaitFrame(t, tr, `["pnl",1,3,0,125.5]`)
	awaitFrame(t, tr, `["Pnl",1,`, `,125.5,0]`)
	time.Sleep(120 * time.Millisecond)
	frames := tr.snapshot()
	require.Equal(t, 2, countPrefix(frames, `["Pnl",1,`))
	require.Equal(t, 0, countPrefix(frames, `["Pnl",2,`))
	require.Equal(t, 1, countPrefix(frames, `["pnl",1,3,`))
	require.Equal(t, 0, countPrefix(frames, `["pnl",2,`))

	// Selling 50 of the 80-lot MSFT book at 400 against a 390 average
	// realizes 500 and wakes the BETA stream.
	s.OnMessageAsync([]byte(`["order",2,"BETA","sell","limit","Day",50,400,0]`))
	awaitFrame(t, tr, `["order",`, `"filled"`)
	awaitFrame(t, tr, `["pnl",2,2,0,500]`)
	awaitFrame(t, tr, `["Pnl",2,`, `,500,0]`)

	time.Sleep(120 * time.Millisecond)
	frames = tr.snapshot()
	require.Equal(t, 1, countPrefix(frames, `["pnl",2,2,`))
	require.Equal(t, 1, countPrefix(frames, `["Pnl",2,`))
}
