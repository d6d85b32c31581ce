package control

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"trade-gateway/src/algo"
	"trade-gateway/src/exchange"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/session"
)

// -----------------------------------------------------------------------------

type noopTracker struct{}

func (noopTracker) OnConfirmation(cm *models.MConfirmation) {}

// fakeTransport records the close so tests can observe a kicked session.
type fakeTransport struct {
	closed atomic.Bool
}

func (f *fakeTransport) Send(msg []byte)    {}
func (f *fakeTransport) Stateless() bool    { return false }
func (f *fakeTransport) RemoteAddr() string { return "test:1" }
func (f *fakeTransport) Close()             { f.closed.Store(true) }

// oneSessionTable serves a single session by id.
type oneSessionTable struct {
	sess *session.Session
}

func (tb *oneSessionTable) Get(id uint64) *session.Session {
	if tb.sess != nil && tb.sess.ID == id {
		return tb.sess
	}
	return nil
}

// -----------------------------------------------------------------------------

type controlHarness struct {
	client *ControlClient
	book   *exchange.GlobalOrderBook
	algos  *algo.Manager
	md     *marketdata.Manager
	router *exchange.Manager
	tpt    *fakeTransport
}

// newControlHarness wires the engines behind a control service and connects
// a real client to it over an in-memory listener.
func newControlHarness(t *testing.T) *controlHarness {
	t.Helper()

	log := logger.NewLogger(nil, "test")
	cfg := &models.MConfig{Name: "test", AlgoDir: t.TempDir(), StoreDir: t.TempDir()}

	md := marketdata.NewManager(cfg, nil, log)
	require.NoError(t, md.AddAdapter(marketdata.NewSimFeed("quotes", 100, nil)))

	router := exchange.NewManager(cfg, log)
	book := exchange.NewGlobalOrderBook(router, noopTracker{}, 128, log)
	paper := exchange.NewPaperAdapter(models.MExchangeAdapterConfig{
		Name:      "paper",
		Type:      "paper",
		LatencyMs: 100,
	}, book, md, log)
	t.Cleanup(func() { _ = paper.Stop() })
	require.NoError(t, router.AddAdapter(paper))

	algos := algo.NewManager(cfg, book, md, 64, log)
	t.Cleanup(algos.StopAll)

	tpt := &fakeTransport{}
	sess := session.NewSession(7, tpt, session.Deps{
		Config: cfg,
		Logger: log,
		Book:   book,
		Algos:  algos,
	})

	svc := NewService(book, algos, router, md, &oneSessionTable{sess: sess},
		func() models.MGatewayStatus {
			return models.MGatewayStatus{
				Name:       cfg.Name,
				Sessions:   1,
				LiveOrders: len(book.LiveOrders()),
				Securities: 5,
			}
		}, log)

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterControlServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
	conn, err := Dial("passthrough:///control", grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &controlHarness{
		client: NewControlClient(conn),
		book:   book,
		algos:  algos,
		md:     md,
		router: router,
		tpt:    tpt,
	}
}

func testOrder() *models.MOrder {
	sec := &models.MSecurity{ID: 1, Symbol: "AAPL", ClosePx: 189.50}
	broker := &models.MBrokerAccount{ID: 10, Name: "SIM-NYSE", Adapter: "paper"}
	sub := &models.MSubAccount{ID: 5, Name: "ALPHA"}
	user := &models.MUser{
		ID:          2,
		Name:        "trader",
		SubAccounts: map[int64]*models.MSubAccount{sub.ID: sub},
	}
	return &models.MOrder{
		Security:      sec,
		User:          user,
		SubAccount:    sub,
		BrokerAccount: broker,
		Qty:           100,
		Price:         190.25,
		Side:          models.SideBuy,
		Type:          models.TypeLimit,
		Tif:           models.TifDay,
	}
}

func rpcCode(t *testing.T, err error) codes.Code {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	return st.Code()
}

// -----------------------------------------------------------------------------

func TestGetStatusOverWire(t *testing.T) {
	h := newControlHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st, err := h.client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Name)
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 5, st.Securities)
	assert.Equal(t, 0, st.LiveOrders)
}

// -----------------------------------------------------------------------------

func TestCancelAllPullsLiveOrders(t *testing.T) {
	h := newControlHarness(t)

	ord := testOrder()
	h.book.Place(ord)
	require.True(t, ord.IsLive())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := h.client.CancelAll(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "cancel requested for 1 live orders", resp.Message)

	require.Eventually(t, func() bool {
		return len(h.book.LiveOrders()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// -----------------------------------------------------------------------------

func TestStopAlgosSweep(t *testing.T) {
	h := newControlHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := h.client.StopAlgos(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "stopped 0 algo instances", resp.Message)
}

// -----------------------------------------------------------------------------

func TestReconnectVerbs(t *testing.T) {
	h := newControlHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := h.client.Reconnect(ctx, "data", "quotes")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = h.client.Reconnect(ctx, "exchange", "paper")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	_, err = h.client.Reconnect(ctx, "exchange", "ghost")
	assert.Equal(t, codes.NotFound, rpcCode(t, err))

	_, err = h.client.Reconnect(ctx, "telex", "quotes")
	assert.Equal(t, codes.InvalidArgument, rpcCode(t, err))

	_, err = h.client.Reconnect(ctx, "data", "")
	assert.Equal(t, codes.InvalidArgument, rpcCode(t, err))
}

// -----------------------------------------------------------------------------

func TestDisconnectKicksSession(t *testing.T) {
	h := newControlHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := h.client.Disconnect(ctx, 0)
	assert.Equal(t, codes.InvalidArgument, rpcCode(t, err))

	_, err = h.client.Disconnect(ctx, 99)
	assert.Equal(t, codes.NotFound, rpcCode(t, err))

	resp, err := h.client.Disconnect(ctx, 7)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "session 7 closed", resp.Message)
	assert.True(t, h.tpt.closed.Load())
}
