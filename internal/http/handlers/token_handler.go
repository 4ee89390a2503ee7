package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// IssueTokenRequest asks for an access token to a tier.
type IssueTokenRequest struct {
	Tier string `json:"tier" binding:"required" example:"vip"`
}

// RedeemCredentialRequest redeems a signed invite credential.
type RedeemCredentialRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// ListTokensResponse lists the caller's tokens, newest first.
type ListTokensResponse struct {
	Tokens []domain.AccessToken `json:"tokens"`
}

// ListTokens godoc
// @ID          listTokens
// @Summary     List the caller's access tokens
// @Tags        Tokens
// @Produce     json
// @Param       X-User-ID  header  string  true  "Platform user id"  example(tg:12345)
// @Success     200  {object}  handlers.ListTokensResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens [get]
func (h *Handlers) ListTokens(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	toks, err := h.tokens.List(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if toks == nil {
		toks = []domain.AccessToken{}
	}
	ok(c, http.StatusOK, ListTokensResponse{Tokens: toks})
}

// IssueToken godoc
// @ID          issueToken
// @Summary     Issue an access token
// @Description Returns the outstanding token when one exists for the tier; otherwise mints a new one. The credential is a signed invite usable with /tokens/redeem (omitted when signing is disabled).
// @Tags        Tokens
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Platform user id"  example(tg:12345)
// @Param       body       body    handlers.IssueTokenRequest  true  "Tier"
//
// @Success     201  {object}  services.TokenGrant
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or unknown tier"
// @Failure     403  {object}  handlers.ErrorResponse  "Stage or balance requirement not met"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens [post]
func (h *Handlers) IssueToken(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Tier) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tier is required")
		return
	}
	grant, err := h.core.IssueToken(c.Request.Context(), uid, strings.TrimSpace(req.Tier))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, grant)
}

// RedeemToken godoc
// @ID          redeemToken
// @Summary     Redeem a token by id
// @Description Token ids are bearer secrets: whoever holds one may redeem it, exactly once, before it expires.
// @Tags        Tokens
// @Produce     json
// @Param       id  path  string  true  "Token ID (UUID)"  format(uuid)
// @Success     200  {object}  services.Redemption
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Token not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already redeemed"
// @Failure     410  {object}  handlers.ErrorResponse  "Expired"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens/{id}/redeem [post]
func (h *Handlers) RedeemToken(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token id must be a UUID")
		return
	}
	red, err := h.core.RedeemToken(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, red)
}

// RedeemCredential godoc
// @ID          redeemCredential
// @Summary     Redeem a signed invite credential
// @Tags        Tokens
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.RedeemCredentialRequest  true  "Credential"
// @Success     200  {object}  services.Redemption
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credential"
// @Failure     409  {object}  handlers.ErrorResponse  "Already redeemed"
// @Failure     410  {object}  handlers.ErrorResponse  "Expired"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens/redeem [post]
func (h *Handlers) RedeemCredential(c *gin.Context) {
	var req RedeemCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "credential is required")
		return
	}
	red, err := h.core.RedeemCredential(c.Request.Context(), strings.TrimSpace(req.Credential))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, red)
}
