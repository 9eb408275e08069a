package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"CareLedger/internal/engine"
	"CareLedger/internal/observability"
	"CareLedger/internal/payout"
	"CareLedger/internal/query"
	"CareLedger/internal/registry"
)

// Server wires the HTTP/JSON API to the settlement engine and the read side.
type Server struct {
	engine  *engine.SettlementEngine
	query   *query.Service
	reg     *registry.Registry
	sink    payout.Sink
	health  *observability.HealthChecker
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func New(
	eng *engine.SettlementEngine,
	qs *query.Service,
	reg *registry.Registry,
	sink payout.Sink,
	health *observability.HealthChecker,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		engine:  eng,
		query:   qs,
		reg:     reg,
		sink:    sink,
		health:  health,
		logger:  logger,
		metrics: metrics,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/doctors", s.handleRegisterDoctor)
		r.Post("/suppliers", s.handleRegisterSupplier)
		r.Post("/patients", s.handleRegisterPatient)

		r.Post("/settlements/consultation", s.handleSettleConsultation)
		r.Post("/settlements/purchase", s.handleSettlePurchase)

		r.Get("/settlements/{id}", s.handleGetSettlement)
		r.Get("/patients/{id}/settlements", s.handleListPatientSettlements)
		r.Get("/patients/{id}/balance", s.handleGetPatientBalance)

		r.Get("/stats", s.handleStats)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes:
// duplicate registration 409, unknown identity 404, insufficient funds 402,
// fee exceeds amount 422, everything malformed 400.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, registry.ErrDuplicateIdentity):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrUnknownIdentity), errors.Is(err, query.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, engine.ErrFeeExceedsAmount):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequestf("invalid json: %v", err)
	}
	return nil
}
