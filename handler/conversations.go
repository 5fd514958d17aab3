package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/db"
	gwmw "github.com/mtgscribe/gateway/middleware"
)

// ConversationHandler implements the thread CRUD surface of spec §6.
type ConversationHandler struct {
	rows   *db.Store
	logger zerolog.Logger
}

func NewConversationHandler(rows *db.Store, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{rows: rows, logger: logger.With().Str("component", "conversation-handler").Logger()}
}

type conversationSummaryView struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	TotalTokens     int64  `json:"totalTokens"`
	MessageCount    int    `json:"messageCount"`
	LastMessagePrev string `json:"lastMessagePreview,omitempty"`
	LastMessageAt   string `json:"lastMessageAt"`
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := gwmw.PrincipalFromContext(r.Context())
	if principal == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}

	summaries, err := h.rows.ListActive(r.Context(), principal.UserID)
	if err != nil {
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}

	out := make([]conversationSummaryView, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, conversationSummaryView{
			ID:              s.Conversation.ID,
			Title:           s.Conversation.Title,
			TotalTokens:     s.Conversation.TotalTokens,
			MessageCount:    s.MessageCount,
			LastMessagePrev: s.LastMessagePrev,
			LastMessageAt:   s.Conversation.LastMessageAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{"conversations": out})
}

type turnView struct {
	UserMessage       string `json:"userMessage"`
	AssistantResponse string `json:"assistantResponse,omitempty"`
	Success           bool   `json:"success"`
	TokensUsed        int    `json:"tokensUsed"`
	CreatedAt         string `json:"createdAt"`
}

// Get handles GET /api/conversations/:id — returns the thread with its
// full turn content, unlike /api/chat/history's metadata-only view.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := gwmw.PrincipalFromContext(r.Context())
	if principal == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}

	id := chi.URLParam(r, "id")
	conv, err := h.rows.GetConversation(r.Context(), id, principal.UserID)
	if err != nil {
		if err == db.ErrNotFound {
			gwmw.WriteError(w, apierr.New(apierr.KindNotFound, "conversation not found"))
			return
		}
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}

	turns, err := h.rows.LoadTurns(r.Context(), id)
	if err != nil {
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}

	views := make([]turnView, 0, len(turns))
	for _, t := range turns {
		views = append(views, turnView{
			UserMessage:       t.UserMessage,
			AssistantResponse: t.AssistantResponse,
			Success:           t.Success,
			TokensUsed:        t.TokensUsed,
			CreatedAt:         t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":          conv.ID,
		"title":       conv.Title,
		"totalTokens": conv.TotalTokens,
		"turns":       views,
	})
}

type updateConversationBody struct {
	Title string `json:"title"`
}

// Update handles PATCH /api/conversations/:id — title update only, per
// spec §6.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := gwmw.PrincipalFromContext(r.Context())
	if principal == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}

	var body updateConversationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gwmw.WriteError(w, apierr.New(apierr.KindValidation, "malformed request body"))
		return
	}
	if body.Title == "" {
		gwmw.WriteError(w, apierr.Validation([]apierr.FieldError{{Field: "title", Message: "title is required"}}))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.rows.SetTitle(r.Context(), id, principal.UserID, body.Title); err != nil {
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Delete handles DELETE /api/conversations/:id — soft delete.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := gwmw.PrincipalFromContext(r.Context())
	if principal == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}

	id := chi.URLParam(r, "id")
	deleted, err := h.rows.SoftDeleteConversation(r.Context(), id, principal.UserID)
	if err != nil {
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}
	if !deleted {
		gwmw.WriteError(w, apierr.New(apierr.KindNotFound, "conversation not found"))
		return
	}
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
