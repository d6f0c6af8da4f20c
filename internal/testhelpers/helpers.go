// Package testhelpers provides common utilities shared by the HTTP,
// WebSocket and bot tests.
//
// Peer wraps a gorilla client connection and understands the chat wire
// format: one text frame may carry several newline-separated events.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const readTimeout = 3 * time.Second

// Frame is one decoded server event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// CreateTestServer creates a test HTTP server with the given handler.
// It is closed when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// WebSocketURL turns an httptest URL into the /ws endpoint URL.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// MakeRequest creates and executes an HTTP request with a 5 second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ConnectWebSocket dials url. An empty origin sends no Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Peer is a test participant on the chat WebSocket.
type Peer struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []Frame
}

// Dial connects a Peer and closes it when the test ends.
func Dial(t *testing.T, url string) *Peer {
	t.Helper()
	conn, _, err := ConnectWebSocket(url, "")
	require.NoError(t, err)

	p := &Peer{t: t, conn: conn}
	t.Cleanup(func() { _ = p.conn.Close() })
	return p
}

// Send writes one {"event","data"} envelope.
func (p *Peer) Send(event string, data any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// SendRaw writes a text frame as is.
func (p *Peer) SendRaw(raw string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// Join sends a join event with nickname.
func (p *Peer) Join(nickname string) {
	p.t.Helper()
	p.Send("join", map[string]string{"nickname": nickname})
}

// Next returns the next event, reading a new frame when none is buffered.
func (p *Peer) Next() Frame {
	p.t.Helper()
	for len(p.pending) == 0 {
		require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(readTimeout)))
		_, raw, err := p.conn.ReadMessage()
		require.NoError(p.t, err)

		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var f Frame
			require.NoError(p.t, json.Unmarshal(line, &f))
			p.pending = append(p.pending, f)
		}
	}

	f := p.pending[0]
	p.pending = p.pending[1:]
	return f
}

// NextEvent skips events until one named event arrives.
func (p *Peer) NextEvent(event string) Frame {
	p.t.Helper()
	for {
		if f := p.Next(); f.Event == event {
			return f
		}
	}
}

// NextChat returns the text and author of the next chat event.
func (p *Peer) NextChat() (nickname, text string) {
	p.t.Helper()
	var msg struct {
		Nickname string `json:"nickname"`
		Text     string `json:"text"`
	}
	require.NoError(p.t, json.Unmarshal(p.NextEvent("chat").Data, &msg))
	return msg.Nickname, msg.Text
}

// ExpectSilence fails when any event arrives within d. The connection is
// unusable for reads afterwards.
func (p *Peer) ExpectSilence(d time.Duration) {
	p.t.Helper()
	require.Empty(p.t, p.pending)
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(d)))
	_, raw, err := p.conn.ReadMessage()
	require.Error(p.t, err, "unexpected frame %s", raw)
}

// Close sends a normal close frame and closes the connection.
func (p *Peer) Close() {
	_ = p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.conn.Close()
}
