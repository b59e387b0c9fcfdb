// Package httpapi provides the REST surface of the messaging core.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"souk/internal/auth"
	"souk/internal/message"
)

// maxBodyBytes bounds request bodies; message text is capped far below this.
const maxBodyBytes = 64 << 10

// Handler wires the /messages endpoints to the delivery gateway.
type Handler struct {
	log      *slog.Logger
	svc      *message.Service
	val      *Validator
	verifier *auth.Verifier
}

// NewHandler constructs the messages REST handler.
func NewHandler(log *slog.Logger, svc *message.Service, verifier *auth.Verifier) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		svc:      svc,
		val:      NewValidator(),
		verifier: verifier,
	}
}

// Register wires the message routes onto the provided mux. Fixed segments
// are registered alongside wildcard routes; ServeMux prefers the more
// specific pattern, so /messages/inbox never collides with
// /messages/{recipientId}.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	authed := func(fn http.HandlerFunc) http.Handler {
		return h.verifier.RequireAuth(fn)
	}

	mux.Handle("GET /messages/inbox", authed(h.handleInbox))
	mux.Handle("GET /messages/unread-count", authed(h.handleUnreadCount))
	mux.Handle("PUT /messages/mark-all-inbox-read", authed(h.handleMarkAllInboxRead))
	mux.Handle("PUT /messages/{messageId}/read", authed(h.handleMarkRead))
	mux.Handle("PUT /messages/{recipientId}/mark-all-read", authed(h.handleMarkAllFromSenderRead))
	mux.Handle("POST /messages/{recipientId}", authed(h.handleSend))
	mux.Handle("GET /messages/{recipientId}", authed(h.handleConversation))
}

// ---- handlers ----

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text   string `json:"text" validate:"required"`
		PostID string `json:"postId"`
	}
	type response struct {
		Message message.MessageView `json:"message"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	var body request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if !h.validateBody(w, &body) {
		return
	}

	view, err := h.svc.Send(r.Context(), claims.UserID, r.PathValue("recipientId"), body.Text, body.PostID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respond(w, http.StatusCreated, response{Message: view})
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Messages []message.MessageView `json:"messages"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	views, err := h.svc.Conversation(r.Context(), claims.UserID, r.PathValue("recipientId"), r.URL.Query().Get("postId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if views == nil {
		views = []message.MessageView{}
	}

	h.respond(w, http.StatusOK, response{Messages: views})
}

func (h *Handler) handleInbox(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Conversations []message.ConversationSummary `json:"conversations"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	summaries, err := h.svc.Inbox(r.Context(), claims.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []message.ConversationSummary{}
	}

	h.respond(w, http.StatusOK, response{Conversations: summaries})
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	type response struct {
		UnreadCount int64 `json:"unreadCount"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	n, err := h.svc.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, response{UnreadCount: n})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message message.MessageView `json:"message"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	view, err := h.svc.MarkRead(r.Context(), claims.UserID, r.PathValue("messageId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, response{Message: view})
}

func (h *Handler) handleMarkAllFromSenderRead(w http.ResponseWriter, r *http.Request) {
	type response struct {
		ModifiedCount int64 `json:"modifiedCount"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	// The path segment names the conversation counterpart, i.e. the sender
	// whose messages the acting recipient is clearing.
	n, err := h.svc.MarkAllFromSender(r.Context(), claims.UserID, r.PathValue("recipientId"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, response{ModifiedCount: n})
}

func (h *Handler) handleMarkAllInboxRead(w http.ResponseWriter, r *http.Request) {
	type response struct {
		ModifiedCount int64 `json:"modifiedCount"`
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, nil, "Not authenticated")
		return
	}

	n, err := h.svc.MarkAllInbox(r.Context(), claims.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respond(w, http.StatusOK, response{ModifiedCount: n})
}

// ---- responses ----

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("http.encode.fail", "err", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	if err != nil {
		h.log.Error("http.error", "status", status, "err", err)
	}
	h.respond(w, status, response{Error: msg})
}

// respondServiceError maps the core error taxonomy onto HTTP statuses.
// Storage failures stay generic: internal detail goes to logs only.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case message.IsValidation(err):
		h.respondError(w, http.StatusBadRequest, err, userMessage(err, "Invalid request"))
	case message.IsUnauthenticated(err):
		h.respondError(w, http.StatusUnauthorized, err, "Not authenticated")
	case message.IsUnauthorized(err):
		h.respondError(w, http.StatusForbidden, err, userMessage(err, "Forbidden"))
	case message.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, err, "Not found")
	default:
		h.respondError(w, http.StatusInternalServerError, err, "Server error")
	}
}

// userMessage surfaces the human-readable message from a typed core error.
func userMessage(err error, fallback string) string {
	var oe message.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return fallback
}

func (h *Handler) validateBody(w http.ResponseWriter, s interface{}) bool {
	type response struct {
		Errors []ValidationError `json:"errors"`
	}

	errs := h.val.ValidateStruct(s)
	if len(errs) > 0 {
		h.respond(w, http.StatusBadRequest, &response{Errors: errs})
		return false
	}
	return true
}
