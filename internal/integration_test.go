package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"claims_settlement/internal/api"
	"claims_settlement/internal/domain"
	"claims_settlement/internal/ledger"
	"claims_settlement/internal/repository/memory"
	"claims_settlement/internal/reserve"
	"claims_settlement/internal/settlement"
	"claims_settlement/pkg/crypto"
	"claims_settlement/pkg/metrics"
)

const (
	engineAccount = "settlement-engine"
	poolAccount   = "reserve-pool"
	signingSecret = "test-secret"
)

type testEnv struct {
	assets *ledger.MemoryLedger
	engine *settlement.Engine
	pool   *reserve.Pool
	signer *crypto.Signer
	mux    *http.ServeMux
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	assets := ledger.NewMemoryLedger()
	claimRepo := memory.NewClaimRepository()
	stakeRepo := memory.NewStakeRepository()
	doctorDir := memory.NewDoctorDirectory()
	consentReg := memory.NewConsentRegistry()
	coverageReg := memory.NewCoverageRegistry()
	premiumRepo := memory.NewPremiumRepository()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool := reserve.NewPool(assets, premiumRepo, poolAccount, 100, logger)
	engine := settlement.NewEngine(claimRepo, stakeRepo, doctorDir, consentReg, coverageReg, assets, pool, engineAccount, logger)
	pool.SetReleaser(engine.Account())

	signer := crypto.NewSigner(signingSecret, logger)
	handler := api.NewAPIHandler(engine, pool, doctorDir, consentReg, coverageReg, metrics.NewMetricsCollector(logger), signer, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testEnv{
		assets: assets,
		engine: engine,
		pool:   pool,
		signer: signer,
		mux:    mux,
	}
}

func (env *testEnv) post(t *testing.T, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	b, _ := json.Marshal(body)
	r := httptest.NewRequest("POST", path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.mux.ServeHTTP(w, r)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response for %s failed: %v", path, err)
		}
	}
	return w, decoded
}

func (env *testEnv) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	r := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()

	env.mux.ServeHTTP(w, r)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response for %s failed: %v", path, err)
		}
	}
	return w, decoded
}

// prepareParticipants registers the doctor, grants consent, sets coverage,
// funds everyone and seeds the reserve through the API.
func (env *testEnv) prepareParticipants(t *testing.T) {
	t.Helper()

	if w, _ := env.post(t, "/api/v1/doctors", map[string]string{"doctor": "dr-adams"}); w.Code != 201 {
		t.Fatalf("register doctor: expected 201, got %d", w.Code)
	}
	if w, _ := env.post(t, "/api/v1/consents", map[string]string{"patient": "alice", "doctor": "dr-adams"}); w.Code != 201 {
		t.Fatalf("grant consent: expected 201, got %d", w.Code)
	}
	if w, _ := env.post(t, "/api/v1/policies", map[string]interface{}{
		"patient":      "alice",
		"insurer":      "acme-health",
		"coverage_pct": 80,
	}); w.Code != 201 {
		t.Fatalf("set policy: expected 201, got %d", w.Code)
	}

	for _, acct := range []string{"alice", "dr-adams", "acme-health"} {
		env.assets.Mint(acct, 1000)
		if err := env.assets.Approve(context.Background(), acct, engineAccount, 1000); err != nil {
			t.Fatalf("approve engine spender: %v", err)
		}
		if err := env.assets.Approve(context.Background(), acct, poolAccount, 1000); err != nil {
			t.Fatalf("approve pool spender: %v", err)
		}
	}

	if w, _ := env.post(t, "/api/v1/reserve/seed", map[string]interface{}{"from": "acme-health", "amount": 500}); w.Code != 200 {
		t.Fatalf("seed reserve: expected 200, got %d", w.Code)
	}
}

func TestIntegration_ClaimLifecycleOverHTTP(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	w, body := env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient": "alice",
		"doctor":  "dr-adams",
		"amount":  100,
	})
	if w.Code != 201 {
		t.Fatalf("initiate: expected 201, got %d (%v)", w.Code, body)
	}
	if body["status"] != string(domain.StatusPending) {
		t.Fatalf("expected pending claim, got %v", body["status"])
	}
	if body["patient_stake"].(float64) != 50 || body["doctor_stake"].(float64) != 50 {
		t.Fatalf("expected 50/50 stakes, got %v/%v", body["patient_stake"], body["doctor_stake"])
	}
	claimID := uint64(body["id"].(float64))

	w, body = env.post(t, fmt.Sprintf("/api/v1/claims/%d/release", claimID), nil)
	if w.Code != 200 {
		t.Fatalf("release: expected 200, got %d (%v)", w.Code, body)
	}
	if body["status"] != string(domain.StatusInitialReleased) {
		t.Fatalf("expected initial_released, got %v", body["status"])
	}

	doctorBal, _ := env.assets.BalanceOf(context.Background(), "dr-adams")
	if doctorBal != 1030 {
		t.Fatalf("expected doctor balance 1030 after 80%% release, got %d", doctorBal)
	}

	w, body = env.post(t, fmt.Sprintf("/api/v1/claims/%d/dispute", claimID), map[string]string{"caller": "alice"})
	if w.Code != 200 {
		t.Fatalf("dispute: expected 200, got %d (%v)", w.Code, body)
	}
	if body["status"] != string(domain.StatusDisputed) {
		t.Fatalf("expected disputed, got %v", body["status"])
	}

	insurerBal, _ := env.assets.BalanceOf(context.Background(), "acme-health")
	// 1000 - 500 seed - 100 deposit + 100 slash.
	if insurerBal != 500 {
		t.Fatalf("expected insurer balance 500 after slash, got %d", insurerBal)
	}

	w, _ = env.get(t, fmt.Sprintf("/api/v1/claims/%d", claimID))
	if w.Code != 200 {
		t.Fatalf("get claim: expected 200, got %d", w.Code)
	}

	_, stakes := env.get(t, "/api/v1/stakes/alice")
	if stakes["patient_pct"].(float64) != 70 {
		t.Fatalf("expected alice's patient pct 70 after dispute, got %v", stakes["patient_pct"])
	}
	_, stakes = env.get(t, "/api/v1/stakes/dr-adams")
	if stakes["doctor_pct"].(float64) != 60 {
		t.Fatalf("expected doctor pct 60 after dispute, got %v", stakes["doctor_pct"])
	}
}

func TestIntegration_CapacityGateRejectsOversizedClaim(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	w, body := env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient": "alice",
		"doctor":  "dr-adams",
		"amount":  501,
	})
	if w.Code != 422 {
		t.Fatalf("expected 422 for claim above reserve capacity, got %d (%v)", w.Code, body)
	}

	for _, acct := range []string{"alice", "dr-adams"} {
		bal, _ := env.assets.BalanceOf(context.Background(), acct)
		if bal != 1000 {
			t.Fatalf("expected %s untouched at 1000, got %d", acct, bal)
		}
	}
}

func TestIntegration_PrematureCompleteConflicts(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	_, body := env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient": "alice",
		"doctor":  "dr-adams",
		"amount":  100,
	})
	claimID := uint64(body["id"].(float64))

	if w, _ := env.post(t, fmt.Sprintf("/api/v1/claims/%d/release", claimID), nil); w.Code != 200 {
		t.Fatalf("release failed with %d", w.Code)
	}

	w, _ := env.post(t, fmt.Sprintf("/api/v1/claims/%d/complete", claimID), nil)
	if w.Code != 409 {
		t.Fatalf("expected 409 while review window open, got %d", w.Code)
	}

	w, body = env.get(t, fmt.Sprintf("/api/v1/claims/%d", claimID))
	if w.Code != 200 || body["status"] != string(domain.StatusInitialReleased) {
		t.Fatalf("expected claim still initial_released, got %d %v", w.Code, body["status"])
	}
}

func TestIntegration_SignedInitiate(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	ts := time.Now().Unix()
	sig := env.signer.SignClaimRequest("alice", "dr-adams", 100, ts)

	w, _ := env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient":   "alice",
		"doctor":    "dr-adams",
		"amount":    100,
		"timestamp": ts,
		"signature": sig,
	})
	if w.Code != 201 {
		t.Fatalf("expected signed request accepted, got %d", w.Code)
	}

	w, _ = env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient":   "alice",
		"doctor":    "dr-adams",
		"amount":    100,
		"timestamp": ts,
		"signature": "deadbeef",
	})
	if w.Code != 401 {
		t.Fatalf("expected 401 for bad signature, got %d", w.Code)
	}
}

func TestIntegration_PremiumAndReserveQueries(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	w, body := env.post(t, "/api/v1/reserve/premium", map[string]interface{}{
		"payer":   "alice",
		"insurer": "acme-health",
		"amount":  120,
	})
	if w.Code != 201 {
		t.Fatalf("pay premium: expected 201, got %d (%v)", w.Code, body)
	}
	if body["id"] == "" {
		t.Fatal("expected premium receipt ID")
	}

	w, body = env.get(t, "/api/v1/reserve?amount=620")
	if w.Code != 200 {
		t.Fatalf("get reserve: expected 200, got %d", w.Code)
	}
	if body["reserve"].(float64) != 620 {
		t.Fatalf("expected reserve 620, got %v", body["reserve"])
	}
	if body["has_capacity"] != true {
		t.Fatalf("expected capacity for 620, got %v", body["has_capacity"])
	}

	_, body = env.get(t, "/api/v1/reserve?amount=621")
	if body["has_capacity"] != false {
		t.Fatalf("expected no capacity for 621, got %v", body["has_capacity"])
	}
}

func TestIntegration_ValidationErrors(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	w, _ := env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient": "alice",
		"doctor":  "dr-adams",
	})
	if w.Code != 400 {
		t.Fatalf("expected 400 for missing amount, got %d", w.Code)
	}

	w, _ = env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient": "Alice!",
		"doctor":  "dr-adams",
		"amount":  100,
	})
	if w.Code != 400 {
		t.Fatalf("expected 400 for malformed account, got %d", w.Code)
	}

	w, _ = env.get(t, "/api/v1/claims/999")
	if w.Code != 404 {
		t.Fatalf("expected 404 for unknown claim, got %d", w.Code)
	}
}

func TestIntegration_RegistryAdministration(t *testing.T) {
	env := setup(t)
	env.prepareParticipants(t)

	r := httptest.NewRequest("DELETE", "/api/v1/doctors/dr-adams", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("deregister doctor: expected 200, got %d", w.Code)
	}

	// With the doctor gone, initiation is refused.
	resp, _ := env.post(t, "/api/v1/claims", map[string]interface{}{
		"patient": "alice",
		"doctor":  "dr-adams",
		"amount":  100,
	})
	if resp.Code != 403 {
		t.Fatalf("expected 403 for deregistered doctor, got %d", resp.Code)
	}

	r = httptest.NewRequest("DELETE", "/api/v1/consents", bytes.NewReader([]byte(`{"patient":"alice","doctor":"dr-adams"}`)))
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("revoke consent: expected 200, got %d", w.Code)
	}

	r = httptest.NewRequest("DELETE", "/api/v1/policies/alice", nil)
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Fatalf("remove policy: expected 200, got %d", w.Code)
	}

	r = httptest.NewRequest("DELETE", "/api/v1/policies/alice", nil)
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Code != 404 {
		t.Fatalf("remove missing policy: expected 404, got %d", w.Code)
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	env := setup(t)

	w, body := env.get(t, "/api/health")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", body["status"])
	}
}
