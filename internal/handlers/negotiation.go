package handlers

import (
	"io"
	"net/http"
	"strconv"

	"streetwear-store/internal/auth"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"
	"streetwear-store/internal/services"
)

// BargainHandler обслуживает чат торга: ход state machine, заголовки купона и стрим реплики.
type BargainHandler struct {
	negotiation NegotiationService
	dialogue    DialogueStreamer
	log         *logger.Logger
}

// NewBargainHandler создает обработчик чата. dialogue может быть nil: тогда всегда отдаётся резервный ответ.
func NewBargainHandler(negotiation NegotiationService, dialogue DialogueStreamer, log *logger.Logger) *BargainHandler {
	return &BargainHandler{
		negotiation: negotiation,
		dialogue:    dialogue,
		log:         log,
	}
}

// Chat обрабатывает POST /api/bargain/chat
func (h *BargainHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.NegotiationRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(r.Context())
	turn, err := h.negotiation.Negotiate(r.Context(), &req, userID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to process negotiation turn")
		return
	}

	// Заголовки уходят до первого байта тела; купон к этому моменту уже сохранён.
	setNegotiationHeaders(w, turn)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	prompt := services.BuildDialoguePrompt(turn, req.Messages)
	h.streamReply(w, r, prompt)
}

func (h *BargainHandler) streamReply(w http.ResponseWriter, r *http.Request, prompt *models.DialoguePrompt) {
	flusher, _ := w.(http.Flusher)
	emit := func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if h.dialogue == nil {
		_ = emit(prompt.Fallback)
		return
	}

	emitted, err := h.dialogue.StreamReply(r.Context(), prompt, emit)
	if err == nil && emitted > 0 {
		return
	}

	if err != nil {
		h.log.WithError(err).WithField("chunks", emitted).Warn("Dialogue generator failed")
	}
	if emitted == 0 {
		_ = emit(prompt.Fallback)
	}
}

func setNegotiationHeaders(w http.ResponseWriter, turn *models.NegotiationTurn) {
	nextRound := turn.Round + 1
	if turn.Terminated() {
		nextRound = turn.Round
	}
	w.Header().Set("X-Negotiation-Round", strconv.Itoa(nextRound))
	w.Header().Set("X-Negotiation-State", string(turn.State))

	if turn.Coupon == nil {
		return
	}
	w.Header().Set("X-Coupon-Code", turn.Coupon.Code)
	w.Header().Set("X-Coupon-Discount", turn.Coupon.Discount.StringFixed(0))
	w.Header().Set("X-Coupon-Expires", strconv.FormatInt(turn.Coupon.ExpiresAt.UnixMilli(), 10))
}

