package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mtgscribe/gateway/apierr"
	"github.com/mtgscribe/gateway/db"
	gwmw "github.com/mtgscribe/gateway/middleware"
	"github.com/mtgscribe/gateway/orchestrator"
	"github.com/mtgscribe/gateway/sanitize"
)

// ChatHandler wires the admission-chain-filtered request into the turn
// pipeline and the thin read endpoints alongside it.
type ChatHandler struct {
	turn   *orchestrator.Turn
	rows   *db.Store
	logger zerolog.Logger
}

func NewChatHandler(turn *orchestrator.Turn, rows *db.Store, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{turn: turn, rows: rows, logger: logger.With().Str("component", "chat-handler").Logger()}
}

type chatRequestBody struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponseBody struct {
	Response       string      `json:"response"`
	ConversationID string      `json:"conversationId,omitempty"`
	Metadata       chatMetadata `json:"metadata"`
}

type chatMetadata struct {
	TokensUsed int64   `json:"tokensUsed"`
	Model      string  `json:"model"`
	CostCents  float64 `json:"costCents"`
}

// Chat handles POST /api/chat. By the time this handler runs, the
// admission chain has already screened rate/budget and validated the
// message shape — the body it reads here has already been trimmed by
// ValidateChatBody.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		gwmw.WriteError(w, apierr.New(apierr.KindValidation, "malformed request body"))
		return
	}

	principal := gwmw.PrincipalFromContext(r.Context())
	tier := gwmw.EffectiveTier(r.Context())

	body.Message = sanitize.Input(body.Message)
	result, err := h.turn.Run(r.Context(), principal, tier, body.Message, body.ConversationID)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	gwmw.WriteJSON(w, http.StatusOK, chatResponseBody{
		Response:       result.ResponseText,
		ConversationID: result.ConversationID,
		Metadata: chatMetadata{
			TokensUsed: result.TokensUsed,
			Model:      result.Model,
			// Millicents are 1/100000 of a dollar; a cent is 1000 millicents.
			CostCents: float64(result.CostMillicents) / 1000.0,
		},
	})
}

type turnHistoryEntry struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageLength  int    `json:"messageLength"`
	ResponseLength int    `json:"responseLength"`
	TokensUsed     int    `json:"tokensUsed"`
	Success        bool   `json:"success"`
	DurationMS     int64  `json:"durationMs"`
	CreatedAt      string `json:"createdAt"`
}

// History handles GET /api/chat/history?limit=N. Only metadata is
// returned — never user_message/assistant_response content.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	principal := gwmw.PrincipalFromContext(r.Context())
	if principal == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	turns, err := h.rows.ListUserTurns(r.Context(), principal.UserID, limit)
	if err != nil {
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}

	out := make([]turnHistoryEntry, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnHistoryEntry{
			ID:             t.ID,
			ConversationID: t.ConversationID,
			MessageLength:  t.MessageLength,
			ResponseLength: t.ResponseLength,
			TokensUsed:     t.TokensUsed,
			Success:        t.Success,
			DurationMS:     t.DurationMS,
			CreatedAt:      t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{"turns": out})
}

// Stats handles GET /api/chat/stats.
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal := gwmw.PrincipalFromContext(r.Context())
	if principal == nil {
		gwmw.WriteError(w, apierr.New(apierr.KindAuthRequired, "authentication required"))
		return
	}

	stats, err := h.rows.UserTurnStatsToday(r.Context(), principal.UserID)
	if err != nil {
		gwmw.WriteError(w, apierr.Internal(err))
		return
	}

	gwmw.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"todayRequests": stats.TotalRequests,
		"successRate":   stats.SuccessRate(),
		"tier":          principal.Tier,
	})
}
