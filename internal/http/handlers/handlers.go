// Package handlers exposes the engagement core over HTTP. Handlers are thin:
// they resolve the caller, validate input, call the coordinator or a read
// service, and translate results and errors into JSON.
//
// Endpoints:
//   - POST /interactions             (score, reward, maybe advance)
//   - GET  /progression              (current stage and score history)
//   - GET  /ledger/balance           (cached running total)
//   - GET  /ledger/entries           (paginated audit trail)
//   - GET  /tokens                   (caller's access tokens)
//   - POST /tokens                   (issue, idempotent per tier)
//   - POST /tokens/{id}/redeem       (redeem by id)
//   - POST /tokens/redeem            (redeem by signed credential)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/http/middleware"
	"github.com/tbourn/dianabot-core/internal/services"
	"github.com/tbourn/dianabot-core/internal/utils"
)

// Core is the write side: the coordinator.
type Core interface {
	Handle(ctx context.Context, in services.Interaction) (*services.Result, error)
	IssueToken(ctx context.Context, userID, tier string) (*services.TokenGrant, error)
	RedeemToken(ctx context.Context, tokenID string) (*services.Redemption, error)
	RedeemCredential(ctx context.Context, credential string) (*services.Redemption, error)
}

// ProgressionReader serves progression reads.
type ProgressionReader interface {
	State(ctx context.Context, userID string) (*domain.UserProgression, error)
	History(ctx context.Context, userID string, limit int) ([]domain.ScoreRecord, error)
}

// LedgerReader serves ledger reads.
type LedgerReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Entries(ctx context.Context, userID string, page, pageSize int) ([]domain.LedgerEntry, int64, error)
}

// TokenLister lists a user's tokens.
type TokenLister interface {
	List(ctx context.Context, userID string) ([]domain.AccessToken, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	core   Core
	prog   ProgressionReader
	ledger LedgerReader
	tokens TokenLister
	now    func() time.Time
}

// New binds handlers to the coordinator and read services.
func New(core Core, prog ProgressionReader, ledger LedgerReader, tokens TokenLister) *Handlers {
	return &Handlers{core: core, prog: prog, ledger: ledger, tokens: tokens, now: time.Now}
}

// FromCoordinator wires every dependency from one coordinator.
func FromCoordinator(c *services.Coordinator) *Handlers {
	return New(c, c.Progression(), c.Ledger(), c.Tokens())
}

// requireUser resolves the caller or answers 400.
func requireUser(c *gin.Context) (string, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeMissingUser, "X-User-ID header is required")
		return "", false
	}
	return uid, true
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func pageFromQuery(c *gin.Context) utils.Page {
	return utils.NewPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}

func paginate(p utils.Page, total int64) Pagination {
	pages := int((total + int64(p.Size) - 1) / int64(p.Size))
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Number < pages,
	}
}
