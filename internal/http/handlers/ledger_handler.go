package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// BalanceResponse is the caller's current balance.
type BalanceResponse struct {
	UserID  string `json:"user_id" example:"tg:12345"`
	Balance int64  `json:"balance" example:"40"`
}

// ListEntriesResponse is a page of ledger entries, newest first.
type ListEntriesResponse struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	Pagination Pagination           `json:"pagination"`
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Current balance
// @Tags        Ledger
// @Produce     json
// @Param       X-User-ID  header  string  true  "Platform user id"  example(tg:12345)
// @Success     200  {object}  handlers.BalanceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /ledger/balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	bal, err := h.ledger.Balance(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{UserID: uid, Balance: bal})
}

// ListEntries godoc
// @ID          listLedgerEntries
// @Summary     Ledger entries (paginated)
// @Tags        Ledger
// @Produce     json
//
// @Param       X-User-ID  header  string  true   "Platform user id"  example(tg:12345)
// @Param       page       query   int     false  "Page number"       minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListEntriesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /ledger/entries [get]
func (h *Handlers) ListEntries(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	p := pageFromQuery(c)
	items, total, err := h.ledger.Entries(c.Request.Context(), uid, p.Number, p.Size)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.LedgerEntry{}
	}
	ok(c, http.StatusOK, ListEntriesResponse{Entries: items, Pagination: paginate(p, total)})
}
