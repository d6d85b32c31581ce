package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"trade-gateway/src/session"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // strategy file saves ride the same socket
)

// -----------------------------------------------------------------------------
// WsTransport
// -----------------------------------------------------------------------------

// WsTransport is the stateful transport behind /ws. Send never blocks the
// caller: frames queue into a buffered channel drained by the write pump.
type WsTransport struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	remote string
}

func newWsTransport(conn *websocket.Conn) *WsTransport {
	return &WsTransport{
		conn: conn,
		// Buffered so the session strand never stalls on one socket
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		remote: conn.RemoteAddr().String(),
	}
}

// -----------------------------------------------------------------------------

// Send queues one outbound frame.
func (t *WsTransport) Send(msg []byte) {
	if t.closed.Load() {
		return
	}
	select {
	case t.send <- msg:
	default:
		// Client too slow, disconnect instead of stalling its session
		t.Close()
	}
}

// -----------------------------------------------------------------------------

func (t *WsTransport) Stateless() bool { return false }

func (t *WsTransport) RemoteAddr() string { return t.remote }

// Close is idempotent and safe from any goroutine.
func (t *WsTransport) Close() {
	t.once.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
}

// -----------------------------------------------------------------------------
// WebSocket Handler
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	tpt := newWsTransport(conn)
	sess := session.NewSession(s.nextID.Add(1), tpt, s.deps)
	s.addSession(sess)

	client := &wsClient{server: s, sess: sess, tpt: tpt}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Pumps
// -----------------------------------------------------------------------------

type wsClient struct {
	server *Server
	sess   *session.Session
	tpt    *WsTransport
}

// -----------------------------------------------------------------------------
// readPump - relays inbound messages onto the session strand
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *wsClient) readPump() {
	conn := c.tpt.conn
	defer func() {
		c.server.dropSession(c.sess)
		conn.Close()
		c.server.Logger.Info("%s: client disconnected", c.tpt.remote)
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.Logger.Info("%s: websocket error: %v", c.tpt.remote, err)
			}
			break
		}
		c.sess.OnMessageAsync(message)
	}
}

// -----------------------------------------------------------------------------
// writePump - owns every write on the connection, pings included
// -----------------------------------------------------------------------------

func (c *wsClient) writePump() {
	conn := c.tpt.conn
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-c.tpt.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.server.Logger.Info("%s: write error: %v", c.tpt.remote, err)
				return
			}

		case <-c.tpt.done:
			// Session closed the transport
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
