// ABOUTME: HTTP JSON API handlers for chat turns, conversations and assessments
// ABOUTME: Maps service errors onto 400/404/500 responses with field-level details

package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/mentor-gateway/internal/auth"
	"github.com/2389/mentor-gateway/internal/conversation"
	"github.com/2389/mentor-gateway/internal/dedupe"
	"github.com/2389/mentor-gateway/internal/store"
)

const (
	maxBodyBytes         = 1 << 20
	maxIdempotencyKeyLen = 200

	// IdempotencyKeyHeader names the optional request header for POST /chat.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the idempotency cache.
	ReplayedHeader = "Idempotent-Replayed"
)

// ChatRequest is the JSON request body for POST /chat.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversationId"`
	AgentID        *string `json:"agentId"`
}

// ChatResponse is the JSON response for POST /chat.
type ChatResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	AgentName      string `json:"agentName"`
	AgentType      string `json:"agentType"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// ConversationResponse is conversation metadata.
type ConversationResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	CreatedAt      string `json:"createdAt"`
	LastActivityAt string `json:"lastActivityAt"`
}

// MessageResponse is one stored message.
type MessageResponse struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	HTML      string  `json:"html,omitempty"`
	Role      string  `json:"role"`
	AgentType *string `json:"agentType"`
	Timestamp string  `json:"timestamp"`
}

// PaginationResponse describes the returned page of messages.
type PaginationResponse struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	HasMore    bool `json:"hasMore"`
	NextOffset *int `json:"nextOffset"`
}

// StatsResponse aggregates message statistics.
type StatsResponse struct {
	MessageCount    int     `json:"messageCount"`
	TotalCharacters int     `json:"totalCharacters"`
	AverageLength   float64 `json:"averageLength"`
	UserMessages    int     `json:"userMessages"`
	AgentMessages   int     `json:"agentMessages"`
	FirstMessageAt  *string `json:"firstMessageAt"`
	LastMessageAt   *string `json:"lastMessageAt"`
}

// ConversationDetailResponse is the JSON response for GET /conversations/{id}.
type ConversationDetailResponse struct {
	Success      bool                 `json:"success"`
	Conversation ConversationResponse `json:"conversation"`
	Messages     []MessageResponse    `json:"messages"`
	Pagination   PaginationResponse   `json:"pagination"`
	Stats        StatsResponse        `json:"stats"`
}

// ListConversationsResponse is the JSON response for GET /conversations.
type ListConversationsResponse struct {
	Success       bool                   `json:"success"`
	Conversations []ConversationResponse `json:"conversations"`
}

// UpdateConversationRequest is the JSON request body for PATCH /conversations/{id}.
type UpdateConversationRequest struct {
	Title *string `json:"title"`
}

// BulkDeleteRequest is the JSON request body for DELETE /conversations.
type BulkDeleteRequest struct {
	ChatIDs []string `json:"chatIds"`
	Confirm bool     `json:"confirm"`
}

// AssessmentRequest is the JSON request body for PUT /assessments/{domain}.
type AssessmentRequest struct {
	Summary string   `json:"summary"`
	Score   *float64 `json:"score"`
}

// AssessmentResponse is a stored assessment.
type AssessmentResponse struct {
	Domain    string   `json:"domain"`
	Summary   string   `json:"summary"`
	Score     *float64 `json:"score"`
	CreatedAt string   `json:"createdAt"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success  bool                      `json:"success"`
	Error    string                    `json:"error"`
	Details  []conversation.FieldError `json:"details,omitempty"`
	NotFound []string                  `json:"notFound,omitempty"`
	Debug    string                    `json:"debug,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toConversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             c.ID,
		Title:          c.Title,
		CreatedAt:      formatTime(c.CreatedAt),
		LastActivityAt: formatTime(c.LastActivityAt),
	}
}

func toAssessmentResponse(a *store.Assessment) AssessmentResponse {
	return AssessmentResponse{
		Domain:    a.Domain,
		Summary:   a.Summary,
		Score:     a.Score,
		CreatedAt: formatTime(a.CreatedAt),
	}
}

// ownerID returns the authenticated caller. The auth middleware guarantees one.
func ownerID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.Subject
	}
	return ""
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, ErrorResponse{Error: message})
}

func (g *Gateway) sendValidationError(w http.ResponseWriter, field, message string) {
	g.writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation failed",
		Details: []conversation.FieldError{{Field: field, Message: message}},
	})
}

// writeServiceError maps a service error onto an HTTP response.
func (g *Gateway) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *conversation.ValidationError
	var notOwned *store.NotOwnedError

	switch {
	case errors.As(err, &verr):
		g.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Details: verr.Fields,
		})
	case errors.As(err, &notOwned):
		g.writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:    "one or more conversations not found",
			NotFound: notOwned.IDs,
		})
	case errors.Is(err, conversation.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "not found")
	default:
		g.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"owner_id", ownerID(r),
			"error", err)
		resp := ErrorResponse{Error: "internal server error"}
		if g.config.Server.DevMode {
			resp.Debug = err.Error()
		}
		g.writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// handleChat handles POST /chat.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := ownerID(r)
	turn := &conversation.TurnRequest{
		OwnerID:        owner,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLen {
		g.sendValidationError(w, IdempotencyKeyHeader, "must be at most "+strconv.Itoa(maxIdempotencyKeyLen)+" characters")
		return
	}

	run := func() (*ChatResponse, error) {
		// A shared flight must finish even if the first caller disconnects.
		res, err := g.conversation.SendTurn(context.WithoutCancel(r.Context()), turn)
		if err != nil {
			return nil, err
		}
		return &ChatResponse{
			Success:        true,
			Response:       res.Response,
			AgentName:      res.AgentName,
			AgentType:      string(res.AgentID),
			ConversationID: res.ConversationID,
			MessageID:      res.MessageID,
		}, nil
	}

	var (
		resp     *ChatResponse
		replayed bool
		err      error
	)
	if key == "" {
		resp, err = run()
	} else {
		resp, replayed, err = g.replays.Do(owner+"\x00"+key, chatFingerprint(&req), run)
	}
	if errors.Is(err, dedupe.ErrFingerprintMismatch) {
		g.sendValidationError(w, IdempotencyKeyHeader, "was already used for a different request")
		return
	}
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	if replayed {
		g.logger.Debug("replayed chat response", "owner_id", owner, "conversation_id", resp.ConversationID)
		w.Header().Set(ReplayedHeader, "true")
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// chatFingerprint identifies the content of a chat request so that a reused
// Idempotency-Key can only replay the request it was first used with.
func chatFingerprint(req *ChatRequest) string {
	h := sha256.New()
	write := func(v *string) {
		if v == nil {
			_, _ = io.WriteString(h, "-;")
			return
		}
		_, _ = fmt.Fprintf(h, "%d:%s;", len(*v), *v)
	}
	write(&req.Message)
	write(req.ConversationID)
	write(req.AgentID)
	return hex.EncodeToString(h.Sum(nil))
}

// parsePage reads limit, offset and order from the query string.
func parsePage(r *http.Request) (conversation.PageRequest, *conversation.FieldError) {
	q := r.URL.Query()
	var page conversation.PageRequest

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, &conversation.FieldError{Field: "limit", Message: "must be an integer"}
		}
		page.Limit = &n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, &conversation.FieldError{Field: "offset", Message: "must be an integer"}
		}
		page.Offset = n
	}
	page.Order = q.Get("order")
	return page, nil
}

// renderHTML converts markdown content to HTML; failures fall back to no HTML.
func (g *Gateway) renderHTML(content string) string {
	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(content), &buf); err != nil {
		g.logger.Warn("markdown render failed", "error", err)
		return ""
	}
	return buf.String()
}

// handleGetConversation handles GET /conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	page, ferr := parsePage(r)
	if ferr != nil {
		g.sendValidationError(w, ferr.Field, ferr.Message)
		return
	}

	view, err := g.conversation.GetConversation(r.Context(), ownerID(r), r.PathValue("id"), page)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	render := r.URL.Query().Get("render") == "html"
	msgs := make([]MessageResponse, 0, len(view.Messages))
	for _, m := range view.Messages {
		mr := MessageResponse{
			ID:        m.ID,
			Content:   m.Content,
			Role:      string(m.Role),
			Timestamp: formatTime(m.CreatedAt),
		}
		if m.AgentType != "" {
			agentType := m.AgentType
			mr.AgentType = &agentType
		}
		if render {
			mr.HTML = g.renderHTML(m.Content)
		}
		msgs = append(msgs, mr)
	}

	stats := StatsResponse{
		MessageCount:    view.Stats.MessageCount,
		TotalCharacters: view.Stats.TotalChars,
		AverageLength:   view.Stats.AverageLength,
		UserMessages:    view.Stats.UserMessages,
		AgentMessages:   view.Stats.AgentMessages,
	}
	if t := view.Stats.FirstMessageAt; t != nil {
		s := formatTime(*t)
		stats.FirstMessageAt = &s
	}
	if t := view.Stats.LastMessageAt; t != nil {
		s := formatTime(*t)
		stats.LastMessageAt = &s
	}

	g.writeJSON(w, http.StatusOK, ConversationDetailResponse{
		Success:      true,
		Conversation: toConversationResponse(view.Conversation),
		Messages:     msgs,
		Pagination: PaginationResponse{
			Limit:      view.Pagination.Limit,
			Offset:     view.Pagination.Offset,
			Total:      view.Pagination.Total,
			HasMore:    view.Pagination.HasMore,
			NextOffset: view.Pagination.NextOffset,
		},
		Stats: stats,
	})
}

// handleListConversations handles GET /conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			g.sendValidationError(w, "limit", "must be a positive integer")
			return
		}
		limit = n
	}

	convs, err := g.conversation.ListConversations(r.Context(), ownerID(r), limit)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	out := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationResponse(c))
	}
	g.writeJSON(w, http.StatusOK, ListConversationsResponse{Success: true, Conversations: out})
}

// handleUpdateConversation handles PATCH /conversations/{id}.
func (g *Gateway) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req UpdateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := g.conversation.UpdateConversation(r.Context(), ownerID(r), r.PathValue("id"), req.Title)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"conversation": toConversationResponse(conv),
	})
}

// handleDeleteConversation handles DELETE /conversations/{id}.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	n, err := g.conversation.DeleteConversation(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"deletedMessages": n,
	})
}

// handleBulkDelete handles DELETE /conversations.
func (g *Gateway) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := g.conversation.BulkDeleteConversations(r.Context(), ownerID(r), req.ChatIDs, req.Confirm)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"deletedConversations": res.Conversations,
		"deletedMessages":      res.Messages,
	})
}

// handleSaveAssessment handles PUT /assessments/{domain}.
func (g *Gateway) handleSaveAssessment(w http.ResponseWriter, r *http.Request) {
	var req AssessmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := g.conversation.SaveAssessment(r.Context(), ownerID(r), r.PathValue("domain"), req.Summary, req.Score)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"assessment": toAssessmentResponse(a),
	})
}

// handleGetAssessment handles GET /assessments/{domain}.
func (g *Gateway) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := g.conversation.LatestAssessment(r.Context(), ownerID(r), r.PathValue("domain"))
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"assessment": toAssessmentResponse(a),
	})
}
