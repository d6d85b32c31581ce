package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Check accounting
// -----------------------------------------------------------------------------

type checker struct {
	passed int
	failed int
}

func (c *checker) pass(name string) {
	c.passed++
	fmt.Printf("PASS %s\n", name)
}

func (c *checker) fail(name string, format string, args ...interface{}) {
	c.failed++
	fmt.Printf("FAIL %s: %s\n", name, fmt.Sprintf(format, args...))
}

func (c *checker) check(name string, ok bool, format string, args ...interface{}) {
	if ok {
		c.pass(name)
	} else {
		c.fail(name, format, args...)
	}
}

// -----------------------------------------------------------------------------
// Websocket client
// -----------------------------------------------------------------------------

// wsProbe is the stateful client: one socket, synchronous reads with a
// deadline. Frames that a matcher skips are consumed, which is what a real
// client does with the unsolicited md/pnl/connectivity stream.
type wsProbe struct {
	conn *websocket.Conn
}

func dialGateway(port int) (*wsProbe, error) {
	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsProbe{conn: conn}, nil
}

func (p *wsProbe) close() {
	p.conn.Close()
}

// -----------------------------------------------------------------------------

// send writes one JSON-array frame.
func (p *wsProbe) send(elems ...interface{}) error {
	raw, err := json.Marshal(elems)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, raw)
}

// sendRaw writes bytes as-is, for heartbeats and malformed input.
func (p *wsProbe) sendRaw(raw string) error {
	return p.conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

// -----------------------------------------------------------------------------

// next reads one frame. The bare heartbeat is not valid JSON and comes back
// as a one-element frame so matchers can treat it like any other verb.
func (p *wsProbe) next(timeout time.Duration) ([]interface{}, error) {
	p.conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := p.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frame []interface{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return []interface{}{string(raw)}, nil
	}
	return frame, nil
}

// -----------------------------------------------------------------------------

// await reads frames until one matches or the deadline passes. Skipped
// frames are gone; order scenarios around that.
func (p *wsProbe) await(timeout time.Duration, match func([]interface{}) bool) ([]interface{}, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, fmt.Errorf("no matching frame within %v", timeout)
		}
		frame, err := p.next(left)
		if err != nil {
			return nil, err
		}
		if match(frame) {
			return frame, nil
		}
	}
}

// awaitVerb waits for the next frame led by the given verb.
func (p *wsProbe) awaitVerb(timeout time.Duration, v string) ([]interface{}, error) {
	return p.await(timeout, func(f []interface{}) bool { return verb(f) == v })
}

// -----------------------------------------------------------------------------

// collectUntil returns every frame up to and including the first one the
// stop matcher accepts.
func (p *wsProbe) collectUntil(timeout time.Duration, stop func([]interface{}) bool) ([][]interface{}, error) {
	deadline := time.Now().Add(timeout)
	var out [][]interface{}
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return out, fmt.Errorf("no stop frame within %v", timeout)
		}
		frame, err := p.next(left)
		if err != nil {
			return out, err
		}
		out = append(out, frame)
		if stop(frame) {
			return out, nil
		}
	}
}

// -----------------------------------------------------------------------------
// Frame element converters. Decoded JSON gives float64 numbers and untyped
// maps; the zero value stands in for a kind mismatch since every check
// compares against non-zero expectations.
// -----------------------------------------------------------------------------

func verb(frame []interface{}) string {
	if len(frame) == 0 {
		return ""
	}
	return str(frame[0])
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func integer(v interface{}) int64 {
	return int64(num(v))
}

func obj(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func arr(v interface{}) []interface{} {
	a, _ := v.([]interface{})
	return a
}

// -----------------------------------------------------------------------------
// HTTP helpers
// -----------------------------------------------------------------------------

func getJSON(port int, path string) (map[string]interface{}, error) {
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, path))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	var doc map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// -----------------------------------------------------------------------------

// postRaw runs one message through the one-shot endpoint and decodes the
// buffered reply frames. Non-array frames (the heartbeat echo) come back as
// one-element frames, mirroring wsProbe.next.
func postRaw(port int, token, body string) ([][]interface{}, error) {
	req, err := http.NewRequest("POST",
		fmt.Sprintf("http://127.0.0.1:%d/api/cmd", port),
		bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("X-Session-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("/api/cmd: status %d: %s", resp.StatusCode, data)
	}

	var raws []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, err
	}
	frames := make([][]interface{}, 0, len(raws))
	for _, r := range raws {
		var frame []interface{}
		if err := json.Unmarshal(r, &frame); err != nil {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return nil, fmt.Errorf("unexpected reply frame %s", r)
			}
			frame = []interface{}{s}
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// postFrame marshals one JSON-array command and posts it.
func postFrame(port int, token string, elems ...interface{}) ([][]interface{}, error) {
	raw, err := json.Marshal(elems)
	if err != nil {
		return nil, err
	}
	return postRaw(port, token, string(raw))
}

// -----------------------------------------------------------------------------

// waitUntil polls a condition, for warm-up waits around the boot sequence.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}
