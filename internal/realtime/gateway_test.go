package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"souk/internal/auth"
	"souk/internal/message"

	"github.com/coder/websocket"
)

func newTestGateway(t *testing.T) (*Gateway, *Registry, *auth.Verifier) {
	t.Helper()

	t.Setenv("SOUK_WS_DEV_INSECURE", "false")
	t.Setenv("SOUK_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("SOUK_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1")
	t.Setenv("SOUK_WS_HEARTBEAT_INTERVAL", "250ms")
	t.Setenv("SOUK_WS_HEARTBEAT_TIMEOUT", "1s")

	verifier, err := auth.NewVerifier("ws-test-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	reg := NewRegistry(discardLogger())
	gw := NewGateway(discardLogger(), reg, verifier)
	return gw, reg, verifier
}

func startWSTestServer(t *testing.T, gw *Gateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	return httptest.NewServer(mux)
}

func dialWS(t *testing.T, baseHTTPURL, origin, bearerToken, queryToken string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	if queryToken != "" {
		q := u.Query()
		q.Set("token", queryToken)
		u.RawQuery = q.Encode()
	}

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	if strings.TrimSpace(bearerToken) != "" {
		h.Set("Authorization", "Bearer "+bearerToken)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: h})
}

func waitForConnections(t *testing.T, reg *Registry, userID string, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Connections(userID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connections for %q never reached %d (have %d)", userID, want, reg.Connections(userID))
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) Envelope {
	t.Helper()

	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return Envelope{}
}

func TestGateway_MissingTokenRejected(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "", "", "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_InvalidTokenRejected(t *testing.T) {
	gw, reg, _ := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "http://localhost", "not-a-valid-token", "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}

	// No room membership may exist after a rejected handshake.
	if got := reg.Connections("user-ws-1"); got != 0 {
		t.Fatalf("rejected handshake joined a room: %d", got)
	}
}

func TestGateway_DisallowedOriginRejected(t *testing.T) {
	gw, _, verifier := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token, err := verifier.Issue("user-ws-2", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	_, resp, err := dialWS(t, ts.URL, "http://evil.example.com", token, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected forbidden handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 403, got status=%d err=%v", status, err)
	}
}

func TestGateway_AuthorizedConnect_ReceivesPushes(t *testing.T) {
	gw, reg, verifier := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token, err := verifier.Issue("user-ws-3", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	conn, resp, err := dialWS(t, ts.URL, "http://localhost", token, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForConnections(t, reg, "user-ws-3", 1)

	view := message.MessageView{
		ID:          "m1",
		Sender:      "bob",
		SenderID:    "user-ws-4",
		RecipientID: "user-ws-3",
		Text:        "hello",
	}
	reg.PushMessage("user-ws-3", view)
	reg.PushUnreadCount("user-ws-3", 1)

	env := readUntilType(t, conn, EventReceiveMessage, 3)
	var gotView message.MessageView
	if err := json.Unmarshal(env.Payload, &gotView); err != nil {
		t.Fatalf("unmarshal message payload: %v", err)
	}
	if gotView.ID != "m1" || gotView.Sender != "bob" || gotView.Text != "hello" {
		t.Fatalf("pushed view: %+v", gotView)
	}

	env = readUntilType(t, conn, EventUnreadCountUpdate, 3)
	var gotUnread UnreadCountPayload
	if err := json.Unmarshal(env.Payload, &gotUnread); err != nil {
		t.Fatalf("unmarshal unread payload: %v", err)
	}
	if gotUnread.UnreadCount != 1 {
		t.Fatalf("unread payload: %+v", gotUnread)
	}
}

func TestGateway_TokenViaQueryParam(t *testing.T) {
	gw, reg, verifier := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token, err := verifier.Issue("user-ws-5", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	// Browser WebSocket clients cannot set headers; the query credential
	// must work on its own.
	conn, resp, err := dialWS(t, ts.URL, "http://localhost", "", token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForConnections(t, reg, "user-ws-5", 1)
}

func TestGateway_DisconnectLeavesRoom(t *testing.T) {
	gw, reg, verifier := newTestGateway(t)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	token, err := verifier.Issue("user-ws-6", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	conn, resp, err := dialWS(t, ts.URL, "http://localhost", token, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitForConnections(t, reg, "user-ws-6", 1)

	_ = conn.Close(websocket.StatusNormalClosure, "done")

	waitForConnections(t, reg, "user-ws-6", 0)

	// Pushing after the leave is a silent no-op.
	reg.PushMessage("user-ws-6", message.MessageView{ID: "m1"})
}
