// Package main provides a CI-friendly smoke test for souk realtime delivery.
//
// It validates, against a running server:
//   - JWT handshake on /ws (query credential, browser-style)
//   - REST send persists and returns the sender variant
//   - receiveMessage fanout to the recipient's room
//   - unreadCountUpdate fanout after send and after mark-read
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"souk/internal/auth"
	"souk/internal/message"
	"souk/internal/realtime"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan realtime.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL   = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin    = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		secret    = flag.String("secret", "", "JWT secret shared with the server (SOUK_JWT_SECRET)")
		sender    = flag.String("sender", "smoke-sender", "Sender user id")
		recipient = flag.String("recipient", "smoke-recipient", "Recipient user id")
		text      = flag.String("text", "hello souk", "Message text to send")
		timeout   = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatalf("missing -secret (must match the server's SOUK_JWT_SECRET)")
	}
	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -base: %v", err)
	}

	verifier, err := auth.NewVerifier(*secret)
	if err != nil {
		fatalf("verifier: %v", err)
	}

	senderToken := mustToken(verifier, *sender)
	recipientToken := mustToken(verifier, *recipient)

	root := context.Background()

	// The recipient listens on its room before the sender posts.
	rc := mustConnect(root, "recipient", *baseURL, *origin, recipientToken, *timeout)
	defer closeWS(rc.conn)

	if *verbose {
		fmt.Printf("connected: recipient room joined via %s/ws\n", *baseURL)
	}

	sent := mustRESTSend(root, *baseURL, senderToken, *recipient, *text, *timeout)
	if sent.Sender != message.SelfMarker || !sent.Read {
		fatalf("send response is not the sender variant: sender=%q read=%v", sent.Sender, sent.Read)
	}
	if *verbose {
		fmt.Printf("sent: id=%s\n", sent.ID)
	}

	pushed := rc.mustReadUntilType(root, realtime.EventReceiveMessage, *timeout)

	var view message.MessageView
	if err := json.Unmarshal(pushed.Payload, &view); err != nil {
		fatalf("unmarshal receiveMessage payload: %v", err)
	}
	if view.ID != sent.ID {
		fatalf("fanout id mismatch: got=%q want=%q", view.ID, sent.ID)
	}
	if view.Sender == message.SelfMarker {
		fatalf("recipient fanout must carry the sender's name, not %q", message.SelfMarker)
	}
	if view.Read {
		fatalf("recipient fanout must carry read=false")
	}
	if view.Text != *text {
		fatalf("fanout text mismatch: got=%q want=%q", view.Text, *text)
	}

	unread := rc.mustReadUnread(root, *timeout)
	if unread < 1 {
		fatalf("unread after send: got=%d want>=1", unread)
	}

	mustRESTMarkRead(root, *baseURL, recipientToken, sent.ID, *timeout)

	unread = rc.mustReadUnread(root, *timeout)

	fmt.Printf("OK: id=%s unread_after_read=%d\n", sent.ID, unread)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustToken(v *auth.Verifier, userID string) string {
	token, err := v.Issue(userID, userID, time.Hour)
	if err != nil {
		fatalf("issue token for %s: %v", userID, err)
	}
	return token
}

func wsURL(baseURL, token string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		fatalf("parse base url: %v", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func mustConnect(parent context.Context, name, baseURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL(baseURL, token), &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan realtime.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) realtime.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			// Other event types (e.g. interleaved unread updates) are skipped.
		}
	}
}

func (c *smokeClient) mustReadUnread(parent context.Context, stepTimeout time.Duration) int64 {
	env := c.mustReadUntilType(parent, realtime.EventUnreadCountUpdate, stepTimeout)

	var p realtime.UnreadCountPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal unreadCountUpdate payload: %v", err)
	}
	return p.UnreadCount
}

func mustRESTSend(parent context.Context, baseURL, token, recipientID, text string, stepTimeout time.Duration) message.MessageView {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		fatalf("marshal send body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/messages/"+url.PathEscape(recipientID), bytes.NewReader(body))
	if err != nil {
		fatalf("build send request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		fatalf("send status: got=%d want=%d", resp.StatusCode, http.StatusCreated)
	}

	var out struct {
		Message message.MessageView `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fatalf("decode send response: %v", err)
	}
	return out.Message
}

func mustRESTMarkRead(parent context.Context, baseURL, token, messageID string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, baseURL+"/messages/"+url.PathEscape(messageID)+"/read", nil)
	if err != nil {
		fatalf("build mark-read request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("mark-read request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fatalf("mark-read status: got=%d want=%d", resp.StatusCode, http.StatusOK)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
