package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dianabot-core/internal/http/middleware"
	"github.com/tbourn/dianabot-core/internal/services"
)

// InteractionRequest is one user signal forwarded by the chat adapter.
type InteractionRequest struct {
	// Kind selects the reward: message, reaction or checkin.
	Kind string `json:"kind" example:"message"`
	// Text is the user's reply; empty for reactions.
	Text string `json:"text" example:"I keep coming back to the lighthouse story"`
	// LatencyMS is how long the user took to answer the previous prompt.
	LatencyMS int64 `json:"latency_ms" example:"45000"`
}

// PostInteraction godoc
// @ID          postInteraction
// @Summary     Submit an interaction
// @Description Credits the interaction reward, scores the reply against the user's current stage and advances the user when the stage requirement is met. Retries with the same Idempotency-Key (or the same body within the key bucket) return the stored result with replayed=true.
// @Tags        Interactions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true   "Platform user id"                 example(tg:12345)
// @Param       Idempotency-Key  header  string  false  "Client-supplied interaction key"   example(msg-8812)
// @Param       body             body    handlers.InteractionRequest  true  "Interaction"
//
// @Success     200  {object}  services.Result
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "Core component unavailable"
// @Router      /interactions [post]
func (h *Handlers) PostInteraction(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	arrived := h.now().UTC()

	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		return
	}
	var req InteractionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.LatencyMS < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "latency_ms must not be negative")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	res, err := h.core.Handle(c.Request.Context(), services.Interaction{
		UserID:         uid,
		Kind:           strings.ToLower(strings.TrimSpace(req.Kind)),
		Text:           req.Text,
		Latency:        time.Duration(req.LatencyMS) * time.Millisecond,
		Timestamp:      arrived,
		Payload:        raw,
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
