package api

import (
	"claims_settlement/internal/domain"
	"claims_settlement/internal/ledger"
	"claims_settlement/internal/repository"
	"claims_settlement/internal/reserve"
	"claims_settlement/internal/settlement"
	"claims_settlement/pkg/crypto"
	"claims_settlement/pkg/metrics"
	"claims_settlement/pkg/validator"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type APIHandler struct {
	engine         *settlement.Engine
	pool           *reserve.Pool
	doctors        repository.DoctorDirectory
	consents       repository.ConsentRegistry
	coverage       repository.CoverageRegistry
	metrics        *metrics.MetricsCollector
	signer         *crypto.Signer
	validator      *validator.ClaimValidator
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	engine *settlement.Engine,
	pool *reserve.Pool,
	doctors repository.DoctorDirectory,
	consents repository.ConsentRegistry,
	coverage repository.CoverageRegistry,
	metricsCollector *metrics.MetricsCollector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		engine:         engine,
		pool:           pool,
		doctors:        doctors,
		consents:       consents,
		coverage:       coverage,
		metrics:        metricsCollector,
		signer:         signer,
		validator:      validator.NewClaimValidator(),
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type InitiateClaimRequest struct {
	Patient   string `json:"patient"`
	Doctor    string `json:"doctor"`
	Amount    int64  `json:"amount"`
	Emergency bool   `json:"emergency"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type ClaimResponse struct {
	ID           uint64             `json:"id"`
	Status       domain.ClaimStatus `json:"status"`
	PatientStake int64              `json:"patient_stake"`
	DoctorStake  int64              `json:"doctor_stake"`
	Insurer      string             `json:"insurer"`
	Message      string             `json:"message,omitempty"`
}

type DisputeRequest struct {
	Caller string `json:"caller"`
}

type DepositRequest struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
}

type PremiumRequest struct {
	Payer   string `json:"payer"`
	Insurer string `json:"insurer"`
	Amount  int64  `json:"amount"`
}

type ReleaseRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type PolicyRequest struct {
	Patient     string `json:"patient"`
	Insurer     string `json:"insurer"`
	CoveragePct int    `json:"coverage_pct"`
}

type ConsentRequest struct {
	Patient string `json:"patient"`
	Doctor  string `json:"doctor"`
}

type StakeResponse struct {
	Account    string `json:"account"`
	PatientPct int    `json:"patient_pct"`
	DoctorPct  int    `json:"doctor_pct"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) InitiateClaimHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req InitiateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.validator.ValidateInitiate(req.Patient, req.Doctor, req.Amount); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	if req.Signature != "" {
		if valid, err := h.signer.VerifyClaimRequest(
			req.Patient,
			req.Doctor,
			req.Amount,
			req.Timestamp,
			req.Signature,
		); !valid || err != nil {
			h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
			return
		}
	}

	claim, err := h.engine.InitiateClaim(ctx, req.Patient, req.Doctor, req.Amount, req.Emergency)
	duration := time.Since(startTime)
	h.metrics.RecordOperation("initiate", duration, err == nil)

	if err != nil {
		h.logger.Error("Claim initiation failed",
			slog.String("error", err.Error()),
			slog.String("patient", req.Patient))
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, ClaimResponse{
		ID:           claim.ID,
		Status:       claim.Status,
		PatientStake: claim.PatientStake,
		DoctorStake:  claim.DoctorStake,
		Insurer:      claim.Insurer,
		Message:      "Claim initiated",
	}, http.StatusCreated)

	h.logger.Info("Claim initiated via API",
		slog.Uint64("claim_id", claim.ID),
		slog.String("status", string(claim.Status)))
}

func (h *APIHandler) ReleaseInitialHandler(w http.ResponseWriter, r *http.Request) {
	h.claimTransition(w, r, "release", func(ctx context.Context, id uint64) error {
		return h.engine.ReleaseInitial(ctx, id)
	})
}

func (h *APIHandler) CompleteClaimHandler(w http.ResponseWriter, r *http.Request) {
	h.claimTransition(w, r, "complete", func(ctx context.Context, id uint64) error {
		return h.engine.CompleteClaim(ctx, id)
	})
}

func (h *APIHandler) DisputeClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if err := h.validator.ValidateAccount(req.Caller); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	h.claimTransition(w, r, "dispute", func(ctx context.Context, id uint64) error {
		return h.engine.DisputeClaim(ctx, req.Caller, id)
	})
}

func (h *APIHandler) claimTransition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uint64) error) {
	startTime := time.Now()

	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		h.sendError(w, "Invalid claim id", http.StatusBadRequest, "INVALID_ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	opErr := fn(ctx, id)
	h.metrics.RecordOperation(op, time.Since(startTime), opErr == nil)

	if opErr != nil {
		h.logger.Error("Claim transition failed",
			slog.String("op", op),
			slog.Uint64("claim_id", id),
			slog.String("error", opErr.Error()))
		h.sendSettlementError(w, opErr)
		return
	}

	claim, err := h.engine.GetClaim(ctx, id)
	if err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, ClaimResponse{
		ID:           claim.ID,
		Status:       claim.Status,
		PatientStake: claim.PatientStake,
		DoctorStake:  claim.DoctorStake,
		Insurer:      claim.Insurer,
	}, http.StatusOK)
}

func (h *APIHandler) GetClaimHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		h.sendError(w, "Invalid claim id", http.StatusBadRequest, "INVALID_ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	claim, err := h.engine.GetClaim(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, "Claim not found", http.StatusNotFound, "NOT_FOUND")
		} else {
			h.sendError(w, "Failed to get claim", http.StatusInternalServerError, "SERVER_ERROR")
		}
		return
	}

	h.sendJSON(w, claim, http.StatusOK)
}

func (h *APIHandler) GetStakeHandler(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if err := h.validator.ValidateAccount(account); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	patientPct, err := h.engine.GetPatientPct(ctx, account)
	if err != nil {
		h.sendError(w, "Failed to read stake profile", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}
	doctorPct, err := h.engine.GetDoctorPct(ctx, account)
	if err != nil {
		h.sendError(w, "Failed to read stake profile", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.metrics.UpdateStakePct(account, string(domain.RolePatient), patientPct)
	h.metrics.UpdateStakePct(account, string(domain.RoleDoctor), doctorPct)

	h.sendJSON(w, StakeResponse{
		Account:    account,
		PatientPct: patientPct,
		DoctorPct:  doctorPct,
	}, http.StatusOK)
}

func (h *APIHandler) SeedReserveHandler(w http.ResponseWriter, r *http.Request) {
	h.reserveDeposit(w, r, h.pool.Seed)
}

func (h *APIHandler) TopUpReserveHandler(w http.ResponseWriter, r *http.Request) {
	h.reserveDeposit(w, r, h.pool.TopUp)
}

func (h *APIHandler) reserveDeposit(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, int64) error) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if err := h.validator.ValidateDeposit(req.Amount); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := fn(ctx, req.From, req.Amount); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.metrics.UpdateReserve(h.pool.Reserve())
	h.sendJSON(w, map[string]interface{}{"reserve": h.pool.Reserve()}, http.StatusOK)
}

func (h *APIHandler) PayPremiumHandler(w http.ResponseWriter, r *http.Request) {
	var req PremiumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if err := h.validator.ValidateDeposit(req.Amount); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	payment, err := h.pool.PayPremium(ctx, req.Payer, req.Insurer, req.Amount)
	if err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.metrics.RecordPremium(req.Amount)
	h.metrics.UpdateReserve(h.pool.Reserve())
	h.sendJSON(w, payment, http.StatusCreated)
}

func (h *APIHandler) ReleaseReserveHandler(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := h.pool.Release(ctx, req.Caller, req.To, req.Amount); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.metrics.UpdateReserve(h.pool.Reserve())
	h.sendJSON(w, map[string]interface{}{"reserve": h.pool.Reserve()}, http.StatusOK)
}

func (h *APIHandler) GetReserveHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"reserve":       h.pool.Reserve(),
		"min_cover_pct": h.pool.MinCoverPct(),
	}

	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.sendError(w, "Invalid amount", http.StatusBadRequest, "INVALID_AMOUNT")
			return
		}
		ok, err := h.pool.HasCapacity(r.Context(), amount)
		if err != nil {
			h.sendError(w, "Capacity check failed", http.StatusInternalServerError, "SERVER_ERROR")
			return
		}
		resp["has_capacity"] = ok
	}

	h.sendJSON(w, resp, http.StatusOK)
}

func (h *APIHandler) RegisterDoctorHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Doctor string `json:"doctor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if err := h.validator.ValidateAccount(req.Doctor); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	if err := h.doctors.Register(r.Context(), req.Doctor); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, map[string]string{"doctor": req.Doctor, "status": "registered"}, http.StatusCreated)
}

func (h *APIHandler) DeregisterDoctorHandler(w http.ResponseWriter, r *http.Request) {
	doctor := r.PathValue("doctor")
	if err := h.validator.ValidateAccount(doctor); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	if err := h.doctors.Deregister(r.Context(), doctor); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, map[string]string{"doctor": doctor, "status": "deregistered"}, http.StatusOK)
}

func (h *APIHandler) GrantConsentHandler(w http.ResponseWriter, r *http.Request) {
	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.consents.Grant(r.Context(), req.Patient, req.Doctor); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, map[string]string{"status": "granted"}, http.StatusCreated)
}

func (h *APIHandler) RevokeConsentHandler(w http.ResponseWriter, r *http.Request) {
	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.consents.Revoke(r.Context(), req.Patient, req.Doctor); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, map[string]string{"status": "revoked"}, http.StatusOK)
}

func (h *APIHandler) SetPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.CoveragePct < 0 || req.CoveragePct > 100 {
		h.sendError(w, "coverage_pct must be within [0, 100]", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	policy := &domain.CoveragePolicy{
		Patient:     req.Patient,
		Insurer:     req.Insurer,
		CoveragePct: req.CoveragePct,
		EffectiveAt: time.Now(),
	}
	if err := h.coverage.SetPolicy(r.Context(), policy); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, policy, http.StatusCreated)
}

func (h *APIHandler) RemovePolicyHandler(w http.ResponseWriter, r *http.Request) {
	patient := r.PathValue("patient")
	if err := h.validator.ValidateAccount(patient); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	if err := h.coverage.RemovePolicy(r.Context(), patient); err != nil {
		h.sendSettlementError(w, err)
		return
	}

	h.sendJSON(w, map[string]string{"patient": patient, "status": "removed"}, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

// sendSettlementError maps the settlement failure taxonomy onto HTTP status
// codes: authorization -> 403, state -> 409, resource -> 422, invariant -> 400.
func (h *APIHandler) sendSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrNotAuthorized),
		errors.Is(err, settlement.ErrDoctorNotRegistered),
		errors.Is(err, settlement.ErrConsentMissing),
		errors.Is(err, settlement.ErrNoCoverage),
		errors.Is(err, reserve.ErrNotReleaser):
		h.sendError(w, err.Error(), http.StatusForbidden, "AUTHORIZATION_ERROR")
	case errors.Is(err, settlement.ErrInvalidStatus),
		errors.Is(err, settlement.ErrReviewWindowOpen),
		errors.Is(err, settlement.ErrReviewWindowClosed),
		errors.Is(err, repository.ErrStatusInvalid):
		h.sendError(w, err.Error(), http.StatusConflict, "STATE_ERROR")
	case errors.Is(err, settlement.ErrInsufficientCapacity),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, reserve.ErrReserveShort):
		h.sendError(w, err.Error(), http.StatusUnprocessableEntity, "RESOURCE_ERROR")
	case errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrInvalidParty),
		errors.Is(err, reserve.ErrInvalidDeposit),
		errors.Is(err, ledger.ErrInvalidAmount):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVARIANT_ERROR")
	case errors.Is(err, repository.ErrNotFound):
		h.sendError(w, err.Error(), http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, repository.ErrDuplicate):
		h.sendError(w, err.Error(), http.StatusConflict, "DUPLICATE")
	default:
		h.sendError(w, fmt.Sprintf("Operation failed: %v", err), http.StatusInternalServerError, "PROCESSING_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	errorResponse := ErrorResponse{
		Error: message,
		Code:  code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/claims", h.InitiateClaimHandler)
	mux.HandleFunc("GET /api/v1/claims/{id}", h.GetClaimHandler)
	mux.HandleFunc("POST /api/v1/claims/{id}/release", h.ReleaseInitialHandler)
	mux.HandleFunc("POST /api/v1/claims/{id}/complete", h.CompleteClaimHandler)
	mux.HandleFunc("POST /api/v1/claims/{id}/dispute", h.DisputeClaimHandler)
	mux.HandleFunc("GET /api/v1/stakes/{account}", h.GetStakeHandler)
	mux.HandleFunc("POST /api/v1/reserve/seed", h.SeedReserveHandler)
	mux.HandleFunc("POST /api/v1/reserve/topup", h.TopUpReserveHandler)
	mux.HandleFunc("POST /api/v1/reserve/premium", h.PayPremiumHandler)
	mux.HandleFunc("POST /api/v1/reserve/release", h.ReleaseReserveHandler)
	mux.HandleFunc("GET /api/v1/reserve", h.GetReserveHandler)
	mux.HandleFunc("POST /api/v1/doctors", h.RegisterDoctorHandler)
	mux.HandleFunc("DELETE /api/v1/doctors/{doctor}", h.DeregisterDoctorHandler)
	mux.HandleFunc("POST /api/v1/consents", h.GrantConsentHandler)
	mux.HandleFunc("DELETE /api/v1/consents", h.RevokeConsentHandler)
	mux.HandleFunc("POST /api/v1/policies", h.SetPolicyHandler)
	mux.HandleFunc("DELETE /api/v1/policies/{patient}", h.RemovePolicyHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}
