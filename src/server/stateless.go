package server

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/gin-gonic/gin"

	"trade-gateway/src/session"
)

// -----------------------------------------------------------------------------
// Stateless Transport
// -----------------------------------------------------------------------------

// statelessTransport buffers every frame emitted while one request is
// dispatched; the handler returns them as the response body.
type statelessTransport struct {
	remote string

	mu     sync.Mutex
	frames []json.RawMessage
}

// -----------------------------------------------------------------------------

func (t *statelessTransport) Send(msg []byte) {
	if !json.Valid(msg) {
		// The bare heartbeat echo is the only non-JSON frame
		msg, _ = json.Marshal(string(msg))
	}
	t.mu.Lock()
	t.frames = append(t.frames, json.RawMessage(msg))
	t.mu.Unlock()
}

func (t *statelessTransport) Stateless() bool { return true }

func (t *statelessTransport) RemoteAddr() string { return t.remote }

func (t *statelessTransport) Close() {}

// -----------------------------------------------------------------------------

func (t *statelessTransport) snapshot() []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]json.RawMessage, len(t.frames))
	copy(out, t.frames)
	return out
}

// -----------------------------------------------------------------------------
// Command Handler
// -----------------------------------------------------------------------------

// handleCommand runs one message through a request-scoped session. The
// session token rides in the X-Session-Token header, or the token query
// parameter for clients that cannot set headers.
func (s *Server) handleCommand(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMessageSize))
	if err != nil || len(raw) == 0 {
		c.JSON(400, gin.H{"error": "empty body"})
		return
	}

	token := c.GetHeader("X-Session-Token")
	if token == "" {
		token = c.Query("token")
	}

	tpt := &statelessTransport{remote: c.ClientIP()}
	sess := session.NewSession(s.nextID.Add(1), tpt, s.deps)
	sess.OnMessageSync(raw, token)
	sess.Close()

	out := tpt.snapshot()
	if out == nil {
		out = []json.RawMessage{}
	}
	c.JSON(200, out)
}
