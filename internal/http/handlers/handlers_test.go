package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/dianabot-core/internal/domain"
	"github.com/tbourn/dianabot-core/internal/events"
	"github.com/tbourn/dianabot-core/internal/http/middleware"
	"github.com/tbourn/dianabot-core/internal/repo"
	"github.com/tbourn/dianabot-core/internal/scoring"
	"github.com/tbourn/dianabot-core/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:h_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type env struct {
	r     *gin.Engine
	coord *services.Coordinator
	db    *gorm.DB
}

func newEnv(t *testing.T, score float64) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	bus := events.NewBus(events.WithLogger(zerolog.Nop()))
	scorers := scoring.NewRegistry(scoring.ScorerFunc(func(scoring.Input, []float64) scoring.Verdict {
		return scoring.Verdict{Score: score, Rationale: "fixed"}
	}))
	coord := services.NewCoordinator(db, bus,
		&services.LedgerService{DB: db},
		&services.ProgressionService{DB: db, Scorers: scorers},
		&services.TokenService{DB: db, SigningKey: []byte("test-key")},
		services.CoordinatorConfig{Rewards: map[string]int64{services.InteractionMessage: 20}},
	)

	h := FromCoordinator(coord)
	r := gin.New()
	r.Use(middleware.Identity())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/interactions", h.PostInteraction)
	r.GET("/progression", h.GetProgression)
	r.GET("/ledger/balance", h.GetBalance)
	r.GET("/ledger/entries", h.ListEntries)
	r.GET("/tokens", h.ListTokens)
	r.POST("/tokens", h.IssueToken)
	r.POST("/tokens/redeem", h.RedeemCredential)
	r.POST("/tokens/:id/redeem", h.RedeemToken)
	return &env{r: r, coord: coord, db: db}
}

func (e *env) do(t *testing.T, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestPostInteraction_CreditsAndReplays(t *testing.T) {
	e := newEnv(t, 0.2)
	body := InteractionRequest{Kind: "Message", Text: "hello", LatencyMS: 1200}

	w := e.do(t, http.MethodPost, "/interactions", "tg:1", body, middleware.HeaderIdempotencyKey, "m-1")
	if w.Code != http.StatusOK {
		t.Fatalf("POST = %d %s", w.Code, w.Body.String())
	}
	res := decode[services.Result](t, w)
	if res.NewBalance != 20 || res.Stage != domain.StageIntro || res.Replayed {
		t.Fatalf("result = %+v", res)
	}

	w = e.do(t, http.MethodPost, "/interactions", "tg:1", body, middleware.HeaderIdempotencyKey, "m-1")
	again := decode[services.Result](t, w)
	if w.Code != http.StatusOK || !again.Replayed || again.IdempotencyKey != res.IdempotencyKey {
		t.Fatalf("replay = %d %+v", w.Code, again)
	}

	bal := decode[BalanceResponse](t, e.do(t, http.MethodGet, "/ledger/balance", "tg:1", nil))
	if bal.Balance != 20 || bal.UserID != "tg:1" {
		t.Fatalf("balance = %+v", bal)
	}
}

func TestPostInteraction_BadInput(t *testing.T) {
	e := newEnv(t, 0)

	cases := []struct {
		name string
		user string
		body any
		want int
		code string
	}{
		{"missing user", "", InteractionRequest{Kind: "message"}, http.StatusBadRequest, ErrCodeMissingUser},
		{"bad json", "tg:1", "{", http.StatusBadRequest, ErrCodeBadRequest},
		{"negative latency", "tg:1", InteractionRequest{Kind: "message", LatencyMS: -1}, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing kind", "tg:1", InteractionRequest{Text: "hi"}, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/interactions", tc.user, tc.body)
			if w.Code != tc.want {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if got := decode[ErrorResponse](t, w); got.Code != tc.code {
				t.Fatalf("code = %q; want %q", got.Code, tc.code)
			}
		})
	}
}

func TestGetProgression_UnseenAndAfterInteraction(t *testing.T) {
	e := newEnv(t, 0.9)

	w := e.do(t, http.MethodGet, "/progression", "tg:2", nil)
	got := decode[ProgressionResponse](t, w)
	if w.Code != http.StatusOK || got.State.Stage != domain.FirstStage() || len(got.History) != 0 {
		t.Fatalf("unseen progression = %d %+v", w.Code, got)
	}

	e.do(t, http.MethodPost, "/interactions", "tg:2", InteractionRequest{Kind: "message", Text: "hey"})
	got = decode[ProgressionResponse](t, e.do(t, http.MethodGet, "/progression?limit=5", "tg:2", nil))
	if got.State.Stage != domain.StageEngaged || len(got.History) != 1 || !got.History[0].Advanced {
		t.Fatalf("progression = %+v", got)
	}
}

func TestListEntries_Pagination(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := e.coord.Ledger().Credit(ctx, "tg:3", 5, "seed", fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got := decode[ListEntriesResponse](t, e.do(t, http.MethodGet, "/ledger/entries?page=1&page_size=2", "tg:3", nil))
	if len(got.Entries) != 2 || got.Pagination.Total != 3 || got.Pagination.TotalPages != 2 || !got.Pagination.HasNext {
		t.Fatalf("page = %+v", got)
	}

	empty := decode[ListEntriesResponse](t, e.do(t, http.MethodGet, "/ledger/entries", "nobody", nil))
	if empty.Entries == nil || len(empty.Entries) != 0 || empty.Pagination.HasNext {
		t.Fatalf("empty page = %+v", empty)
	}
}

func TestTokens_IssueRedeemLifecycle(t *testing.T) {
	e := newEnv(t, 1)

	w := e.do(t, http.MethodPost, "/tokens", "tg:4", IssueTokenRequest{Tier: domain.TierVIP})
	if w.Code != http.StatusForbidden || decode[ErrorResponse](t, w).Code != ErrCodePreconditionNotMet {
		t.Fatalf("intro user vip = %d %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPost, "/tokens", "tg:4", IssueTokenRequest{Tier: "platinum"})
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Code != ErrCodeUnknownTier {
		t.Fatalf("unknown tier = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/tokens", "tg:4", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing tier = %d", w.Code)
	}

	// Two interactions at score 1 carry the user to trusted, which
	// auto-issues the vip token.
	_, _ = e.coord.Ledger().Credit(context.Background(), "tg:4", 100, "seed", "seed")
	for i := 0; i < 2; i++ {
		e.do(t, http.MethodPost, "/interactions", "tg:4", InteractionRequest{Kind: "message", Text: fmt.Sprintf("step %d", i)})
	}
	list := decode[ListTokensResponse](t, e.do(t, http.MethodGet, "/tokens", "tg:4", nil))
	if len(list.Tokens) != 1 || list.Tokens[0].Tier != domain.TierVIP {
		t.Fatalf("tokens = %+v", list)
	}

	w = e.do(t, http.MethodPost, "/tokens", "tg:4", IssueTokenRequest{Tier: domain.TierVIP})
	if w.Code != http.StatusCreated {
		t.Fatalf("issue = %d %s", w.Code, w.Body.String())
	}
	grant := decode[services.TokenGrant](t, w)
	if grant.Token.ID != list.Tokens[0].ID || grant.Credential == "" {
		t.Fatalf("grant should return the outstanding token: %+v", grant)
	}

	w = e.do(t, http.MethodPost, "/tokens/redeem", "", RedeemCredentialRequest{Credential: grant.Credential + "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("tampered credential = %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/tokens/"+grant.Token.ID+"/redeem", "", nil)
	if red := decode[services.Redemption](t, w); w.Code != http.StatusOK || red.UserID != "tg:4" {
		t.Fatalf("redeem = %d %+v", w.Code, red)
	}
	w = e.do(t, http.MethodPost, "/tokens/redeem", "", RedeemCredentialRequest{Credential: grant.Credential})
	if w.Code != http.StatusConflict || decode[ErrorResponse](t, w).Code != ErrCodeTokenRedeemed {
		t.Fatalf("second redeem = %d %s", w.Code, w.Body.String())
	}
}

func TestRedeemToken_BadAndMissingID(t *testing.T) {
	e := newEnv(t, 0)
	if w := e.do(t, http.MethodPost, "/tokens/not-a-uuid/redeem", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/tokens/"+uuid.NewString()+"/redeem", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing id = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrTokenExpired, http.StatusGone, ErrCodeTokenExpired},
		{fmt.Errorf("wrap: %w", services.ErrInsufficientBalance), http.StatusConflict, ErrCodeInsufficientBalance},
		{services.ErrUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		if s, c := statusFor(tc.err); s != tc.status || c != tc.code {
			t.Errorf("statusFor(%v) = %d %q; want %d %q", tc.err, s, c, tc.status, tc.code)
		}
	}
}

type failingCore struct{ Core }

func (failingCore) Handle(context.Context, services.Interaction) (*services.Result, error) {
	return nil, services.ErrUnavailable
}

func TestPostInteraction_UnavailableSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{core: failingCore{}, now: func() time.Time { return time.Unix(0, 0) }}
	r := gin.New()
	r.Use(middleware.Identity())
	r.POST("/interactions", h.PostInteraction)

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewBufferString(`{"kind":"message"}`))
	req.Header.Set(middleware.HeaderUserID, "tg:5")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d, headers = %v", w.Code, w.Header())
	}
}
