package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"giftvault/server/internal/model"
	core "giftvault/server/internal/service"
	"giftvault/server/pkg/config"
)

// apiResponse parses the unified response envelope
type apiResponse struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// fakeCreator mints numbered cards; set fail to make every attempt error
type fakeCreator struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *fakeCreator) Create(ctx context.Context, amount string) (model.Card, error) {
	n := f.calls.Add(1)
	if f.fail.Load() {
		return model.Card{}, core.NewCreationError(core.CreationFailed, "purchase", errors.New("store rejected order"))
	}
	return model.Card{
		ID:        fmt.Sprintf("card-%d", n),
		ClaimURL:  fmt.Sprintf("https://cards.example.com/claim/card-%d", n),
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *Dependencies, *fakeCreator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	hash, err := core.HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Pools: []config.PoolConfig{
			{Tier: "25", Target: 3, Min: 1, Amount: "25"},
			{Tier: "50", Target: 2, Min: 1, Amount: "50"},
		},
		Replenish: config.ReplenishConfig{MaxRetries: 2, BackoffBaseMs: 1, PaceMs: 0, OnConsume: true},
		Auth: config.AuthConfig{
			SecretKey:                "test-secret-key",
			Username:                 "admin",
			PasswordHash:             hash,
			AccessTokenExpireMinutes: 60,
		},
	}

	reg := core.NewRegistry(cfg.Pools)
	store := core.NewFileStore(filepath.Join(t.TempDir(), "cards.json"))
	creator := &fakeCreator{}
	repl := core.NewReplenisher(reg, store, creator, cfg.Replenish)

	deps := &Dependencies{
		Config:      cfg,
		Registry:    reg,
		Store:       store,
		Replenisher: repl,
	}
	SetupRouter(r, deps)
	return r, deps, creator
}

func doRequest(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testToken(t *testing.T, deps *Dependencies) string {
	t.Helper()
	token, err := core.CreateAccessToken("admin", deps.Config.Auth.SecretKey, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestLogin(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, "POST", "/api/auth/login", "", gin.H{"username": "admin", "password": "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	var data LoginResponse
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if !data.Success || data.Token == "" {
		t.Fatalf("expected a token, got %+v", data)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, "POST", "/api/auth/login", "", gin.H{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	var data LoginResponse
	json.Unmarshal(resp.Data, &data)
	if data.Success || data.Token != "" {
		t.Fatalf("expected rejection, got %+v", data)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, "POST", "/api/cards/consume", "", gin.H{"tier": "25"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = doRequest(r, "POST", "/api/cards/consume", "garbage", gin.H{"tier": "25"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestConsume_FromPool(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	deps.Registry.Append("25", model.Card{ID: "old", ClaimURL: "https://cards.example.com/claim/old", Amount: "25"})
	deps.Registry.Append("25", model.Card{ID: "new", ClaimURL: "https://cards.example.com/claim/new", Amount: "25"})

	w := doRequest(r, "POST", "/api/cards/consume", token, gin.H{"tier": "25"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	var data struct {
		Card     model.Card `json:"card"`
		OnDemand bool       `json:"on_demand"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if data.Card.ID != "old" {
		t.Fatalf("expected oldest card, got %s", data.Card.ID)
	}
	if data.OnDemand {
		t.Fatal("pooled card must not be flagged on-demand")
	}
}

func TestConsume_UnknownTier(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	w := doRequest(r, "POST", "/api/cards/consume", token, gin.H{"tier": "99"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != int(core.ErrTierUnknown) {
		t.Fatalf("expected code %d, got %d", core.ErrTierUnknown, resp.Code)
	}
}

func TestConsume_EmptyPoolFallsBackToOnDemand(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	w := doRequest(r, "POST", "/api/cards/consume", token, gin.H{"tier": "25"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	var data struct {
		Card     model.Card `json:"card"`
		OnDemand bool       `json:"on_demand"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if !data.OnDemand || data.Card.ID == "" {
		t.Fatalf("expected an on-demand card, got %+v", data)
	}
}

func TestConsume_EmptyPoolCreatorDown(t *testing.T) {
	r, deps, creator := setupTestRouter(t)
	token := testToken(t, deps)

	// instant replenish would race the failing creator, keep it off here
	deps.Config.Replenish.OnConsume = false
	creator.fail.Store(true)

	w := doRequest(r, "POST", "/api/cards/consume", token, gin.H{"tier": "25"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != int(core.ErrCreatorFailed) {
		t.Fatalf("expected code %d, got %d", core.ErrCreatorFailed, resp.Code)
	}
}

func TestInspect(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	deps.Registry.Append("25", model.Card{ID: "c1", Amount: "25"})

	w := doRequest(r, "GET", "/api/pools", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	var data struct {
		Pools []model.TierStats `json:"pools"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if len(data.Pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(data.Pools))
	}
	if data.Pools[0].Size != 1 || len(data.Pools[0].Cards) != 1 {
		t.Fatalf("unexpected stats: %+v", data.Pools[0])
	}
}

func TestInspectTier_Unknown(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	w := doRequest(r, "GET", "/api/pools/99", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAdminFill_Converges(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	w := doRequest(r, "POST", "/api/admin/pools/25/fill", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	var res core.RunResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if res.Created != 3 || res.FinalSize != 3 {
		t.Fatalf("expected full fill, got %+v", res)
	}
}

func TestAdminFill_BusyTier(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	deps.Registry.TryLockReplenish("25")
	defer deps.Registry.UnlockReplenish("25")

	w := doRequest(r, "POST", "/api/admin/pools/25/fill", token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != int(core.ErrReplenishBusy) {
		t.Fatalf("expected code %d, got %d", core.ErrReplenishBusy, resp.Code)
	}
}

func TestAdminAddOne_AtTarget(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	deps.Registry.Append("50", model.Card{ID: "c1", Amount: "50"})
	deps.Registry.Append("50", model.Card{ID: "c2", Amount: "50"})

	w := doRequest(r, "POST", "/api/admin/pools/50/add-one", token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != int(core.ErrPoolAtTarget) {
		t.Fatalf("expected code %d, got %d", core.ErrPoolAtTarget, resp.Code)
	}
}

func TestAdminInit_ClearsAndRefills(t *testing.T) {
	r, deps, _ := setupTestRouter(t)
	token := testToken(t, deps)

	deps.Registry.Append("25", model.Card{ID: "stale", Amount: "25"})

	w := doRequest(r, "POST", "/api/admin/init", token, gin.H{"tiers": []string{"25"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if deps.Registry.Size("25") != 3 {
		t.Fatalf("expected pool at target after init, got %d", deps.Registry.Size("25"))
	}
	// the stale card must be gone
	for _, st := range deps.Registry.Stats(true) {
		if st.Tier != "25" {
			continue
		}
		for _, c := range st.Cards {
			if c.ID == "stale" {
				t.Fatal("init must drop pre-existing cards")
			}
		}
	}
}

func TestHealth_Public(t *testing.T) {
	r, deps, _ := setupTestRouter(t)

	// below min on both tiers, so degraded
	w := doRequest(r, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp apiResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	var data struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if data.Status != "degraded" {
		t.Fatalf("empty pools should report degraded, got %s", data.Status)
	}
	if len(data.Checks) != 2 {
		t.Fatalf("expected 2 tier checks, got %d", len(data.Checks))
	}

	// at or above min everywhere, healthy again
	deps.Registry.Append("25", model.Card{ID: "a", Amount: "25"})
	deps.Registry.Append("50", model.Card{ID: "b", Amount: "50"})

	w = doRequest(r, "GET", "/health", "", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if data.Status != "healthy" {
		t.Fatalf("expected healthy, got %s", data.Status)
	}
}
