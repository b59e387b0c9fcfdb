package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"souk/internal/auth"
	"souk/internal/message"

	"github.com/neilotoole/slogt"
)

// ---- fixture ----

type staticDirectory map[string]string

func (d staticDirectory) Username(_ context.Context, userID string) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", message.NotFoundError{Op: "test.Username", Resource: "user"}
	}
	return name, nil
}

type staticPosts map[string]bool

func (p staticPosts) PostExists(_ context.Context, postID string) (bool, error) {
	return p[postID], nil
}

type fixture struct {
	mux      *http.ServeMux
	verifier *auth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slogt.New(t)

	verifier, err := auth.NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	dir := staticDirectory{"user-a": "alice", "user-b": "bob", "user-c": "carol"}
	posts := staticPosts{"post-1": true}

	svc := message.NewService(log, message.NewInMemoryStore(), dir, posts)

	mux := http.NewServeMux()
	NewHandler(log, svc, verifier).Register(mux)

	return &fixture{mux: mux, verifier: verifier}
}

func (f *fixture) request(t *testing.T, userID, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}

	if userID != "" {
		token, err := f.verifier.Issue(userID, "", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		r.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, r)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, rr.Body.String())
	}
	return v
}

type messageEnvelope struct {
	Message message.MessageView `json:"message"`
}

// ---- auth gate ----

func TestMessages_RequireAuth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	routes := []struct{ method, target string }{
		{http.MethodGet, "/messages/inbox"},
		{http.MethodGet, "/messages/unread-count"},
		{http.MethodGet, "/messages/user-b"},
		{http.MethodPost, "/messages/user-b"},
		{http.MethodPut, "/messages/some-id/read"},
		{http.MethodPut, "/messages/user-b/mark-all-read"},
		{http.MethodPut, "/messages/mark-all-inbox-read"},
	}

	for _, rt := range routes {
		rr := f.request(t, "", rt.method, rt.target, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", rt.method, rt.target, rr.Code)
		}
	}
}

// ---- send ----

func TestSend_CreatedWithSenderVariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"hello bob"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body=%q)", rr.Code, rr.Body.String())
	}

	got := decode[messageEnvelope](t, rr).Message
	if got.ID == "" {
		t.Fatalf("expected message id")
	}
	if got.Sender != message.SelfMarker {
		t.Fatalf("response sender: got=%q want=%q", got.Sender, message.SelfMarker)
	}
	if !got.Read {
		t.Fatalf("sender's own copy must render read=true")
	}
	if got.RecipientUsername != "bob" {
		t.Fatalf("recipient username: %q", got.RecipientUsername)
	}
}

func TestSend_MissingTextRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	body := decode[struct {
		Errors []ValidationError `json:"errors"`
	}](t, rr)
	if len(body.Errors) == 0 || body.Errors[0].Field != "Text" {
		t.Fatalf("validation errors: %+v", body.Errors)
	}
}

func TestSend_MalformedBodyRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSend_UnknownPostRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"hi","postId":"no-such-post"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	body := decode[struct {
		Error string `json:"error"`
	}](t, rr)
	if body.Error != "post not found" {
		t.Fatalf("error message: %q", body.Error)
	}
}

// ---- conversation ----

func TestConversation_BothSidesSeeTheirOwnView(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"hi bob"}`); rr.Code != http.StatusCreated {
		t.Fatalf("send: %d", rr.Code)
	}
	if rr := f.request(t, "user-b", http.MethodPost, "/messages/user-a", `{"text":"hi alice"}`); rr.Code != http.StatusCreated {
		t.Fatalf("reply: %d", rr.Code)
	}

	rr := f.request(t, "user-a", http.MethodGet, "/messages/user-b", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("conversation: %d", rr.Code)
	}

	body := decode[struct {
		Messages []message.MessageView `json:"messages"`
	}](t, rr)
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
	// Oldest first; alice sees her own message as "me" and bob's unread.
	if body.Messages[0].Sender != message.SelfMarker {
		t.Fatalf("first message sender: %q", body.Messages[0].Sender)
	}
	if body.Messages[1].Sender != "bob" || body.Messages[1].Read {
		t.Fatalf("second message: sender=%q read=%v", body.Messages[1].Sender, body.Messages[1].Read)
	}
}

func TestConversation_EmptyIsOKWithEmptyArray(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodGet, "/messages/user-c", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"messages":[]`) {
		t.Fatalf("expected empty array body, got %q", rr.Body.String())
	}
}

// ---- inbox / unread ----

func TestInboxAndUnreadCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for _, text := range []string{"one", "two"} {
		if rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"`+text+`"}`); rr.Code != http.StatusCreated {
			t.Fatalf("send: %d", rr.Code)
		}
	}
	if rr := f.request(t, "user-c", http.MethodPost, "/messages/user-b", `{"text":"three"}`); rr.Code != http.StatusCreated {
		t.Fatalf("send: %d", rr.Code)
	}

	rr := f.request(t, "user-b", http.MethodGet, "/messages/inbox", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("inbox: %d", rr.Code)
	}

	inbox := decode[struct {
		Conversations []message.ConversationSummary `json:"conversations"`
	}](t, rr)
	if len(inbox.Conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(inbox.Conversations))
	}
	// Most recent conversation first.
	if inbox.Conversations[0].CounterpartUsername != "carol" {
		t.Fatalf("first conversation: %+v", inbox.Conversations[0])
	}
	if inbox.Conversations[1].CounterpartUsername != "alice" || inbox.Conversations[1].UnreadCount != 2 {
		t.Fatalf("second conversation: %+v", inbox.Conversations[1])
	}

	rr = f.request(t, "user-b", http.MethodGet, "/messages/unread-count", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unread-count: %d", rr.Code)
	}
	count := decode[struct {
		UnreadCount int64 `json:"unreadCount"`
	}](t, rr)
	if count.UnreadCount != 3 {
		t.Fatalf("unread count: got=%d want=3", count.UnreadCount)
	}
}

func TestInbox_EmptyIsOKWithEmptyArray(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodGet, "/messages/inbox", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"conversations":[]`) {
		t.Fatalf("expected empty array body, got %q", rr.Body.String())
	}
}

// ---- read state ----

func TestMarkRead_RecipientOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	sent := decode[messageEnvelope](t, f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"hello"}`)).Message

	// The sender gets a 403.
	if rr := f.request(t, "user-a", http.MethodPut, "/messages/"+sent.ID+"/read", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("sender mark-read: expected 403, got %d", rr.Code)
	}

	rr := f.request(t, "user-b", http.MethodPut, "/messages/"+sent.ID+"/read", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("recipient mark-read: %d (body=%q)", rr.Code, rr.Body.String())
	}
	got := decode[messageEnvelope](t, rr).Message
	if !got.Read {
		t.Fatalf("expected read=true")
	}

	// Unknown message id is a 404.
	if rr := f.request(t, "user-b", http.MethodPut, "/messages/no-such-id/read", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", rr.Code)
	}
}

func TestMarkAllFromSenderRead(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for _, text := range []string{"one", "two"} {
		if rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"`+text+`"}`); rr.Code != http.StatusCreated {
			t.Fatalf("send: %d", rr.Code)
		}
	}

	// user-b clears everything alice sent.
	rr := f.request(t, "user-b", http.MethodPut, "/messages/user-a/mark-all-read", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("mark-all-read: %d", rr.Code)
	}
	body := decode[struct {
		ModifiedCount int64 `json:"modifiedCount"`
	}](t, rr)
	if body.ModifiedCount != 2 {
		t.Fatalf("modified count: got=%d want=2", body.ModifiedCount)
	}

	rr = f.request(t, "user-b", http.MethodGet, "/messages/unread-count", "")
	count := decode[struct {
		UnreadCount int64 `json:"unreadCount"`
	}](t, rr)
	if count.UnreadCount != 0 {
		t.Fatalf("unread after clear: got=%d want=0", count.UnreadCount)
	}
}

func TestMarkAllInboxRead(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if rr := f.request(t, "user-a", http.MethodPost, "/messages/user-b", `{"text":"one"}`); rr.Code != http.StatusCreated {
		t.Fatalf("send: %d", rr.Code)
	}
	if rr := f.request(t, "user-c", http.MethodPost, "/messages/user-b", `{"text":"two"}`); rr.Code != http.StatusCreated {
		t.Fatalf("send: %d", rr.Code)
	}

	rr := f.request(t, "user-b", http.MethodPut, "/messages/mark-all-inbox-read", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("mark-all-inbox-read: %d", rr.Code)
	}
	body := decode[struct {
		ModifiedCount int64 `json:"modifiedCount"`
	}](t, rr)
	if body.ModifiedCount != 2 {
		t.Fatalf("modified count: got=%d want=2", body.ModifiedCount)
	}
}

// The fixed "inbox" segment must never be routed as a recipient id.
func TestRoutePrecedence_InboxBeatsWildcard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rr := f.request(t, "user-a", http.MethodGet, "/messages/inbox", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("inbox route: %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), `"messages"`) {
		t.Fatalf("inbox request hit the conversation handler: %q", rr.Body.String())
	}
}
