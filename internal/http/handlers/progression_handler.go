package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/utils"
)

// ProgressionResponse is the caller's stage plus recent score history,
// newest first.
type ProgressionResponse struct {
	State   *domain.UserProgression `json:"state"`
	History []domain.ScoreRecord    `json:"history"`
}

// GetProgression godoc
// @ID          getProgression
// @Summary     Current stage and score history
// @Description Users never seen before report the first stage without being persisted.
// @Tags        Progression
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "Platform user id"  example(tg:12345)
// @Param       limit      query   int     false  "History entries"   minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ProgressionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /progression [get]
func (h *Handlers) GetProgression(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	ctx := c.Request.Context()
	limit := utils.NewPage(1, utils.AtoiDefault(c.Query("limit"), utils.DefaultPageSize)).Size

	st, err := h.prog.State(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	hist, err := h.prog.History(ctx, uid, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	if hist == nil {
		hist = []domain.ScoreRecord{}
	}
	ok(c, http.StatusOK, ProgressionResponse{State: st, History: hist})
}
