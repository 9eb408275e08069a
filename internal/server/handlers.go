package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"CareLedger/internal/escrow"
	"CareLedger/internal/money"
)

func (s *Server) observeQuery(endpoint string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// errBadRequest marks validation failures for the 400 mapping.
var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type registerIdentityRequest struct {
	ID string `json:"id"`
}

type registerPatientRequest struct {
	ID      string `json:"id"`
	Unit    string `json:"unit"`
	Balance int64  `json:"balance"`
}

type registeredResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type consultationRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Unit      string `json:"unit"`
	Amount    int64  `json:"amount"`
}

type purchaseRequest struct {
	SupplierID string `json:"supplier_id"`
	PatientID  string `json:"patient_id"`
	MedicineID string `json:"medicine_id"`
	Unit       string `json:"unit"`
	Amount     int64  `json:"amount"`
}

func (s *Server) handleRegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var req registerIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ID == "" {
		s.writeError(w, badRequestf("id is required"))
		return
	}

	if err := s.engine.RegisterDoctor(req.ID, s.sink); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registeredResponse{ID: req.ID, Role: "doctor"})
}

func (s *Server) handleRegisterSupplier(w http.ResponseWriter, r *http.Request) {
	var req registerIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ID == "" {
		s.writeError(w, badRequestf("id is required"))
		return
	}

	if err := s.engine.RegisterSupplier(req.ID, s.sink); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registeredResponse{ID: req.ID, Role: "supplier"})
}

func (s *Server) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ID == "" || req.Unit == "" {
		s.writeError(w, badRequestf("id and unit are required"))
		return
	}

	balance, err := money.Make(req.Unit, req.Balance)
	if err != nil {
		s.writeError(w, badRequestf("balance: %v", err))
		return
	}

	if err := s.engine.RegisterPatient(req.ID, s.sink, balance); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registeredResponse{ID: req.ID, Role: "patient"})
}

func (s *Server) handleSettleConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.DoctorID == "" || req.PatientID == "" || req.Unit == "" {
		s.writeError(w, badRequestf("doctor_id, patient_id and unit are required"))
		return
	}
	amount, err := money.Make(req.Unit, req.Amount)
	if err != nil || amount.IsZero() {
		s.writeError(w, badRequestf("amount must be positive"))
		return
	}

	seat := escrow.NewFundedSeat(
		escrow.Payload{DoctorID: req.DoctorID, PatientID: req.PatientID},
		escrow.KeywordFee,
		amount,
	)

	receipt, err := s.engine.SettleConsultation(seat)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSettlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.SupplierID == "" || req.PatientID == "" || req.MedicineID == "" || req.Unit == "" {
		s.writeError(w, badRequestf("supplier_id, patient_id, medicine_id and unit are required"))
		return
	}
	amount, err := money.Make(req.Unit, req.Amount)
	if err != nil || amount.IsZero() {
		s.writeError(w, badRequestf("amount must be positive"))
		return
	}

	seat := escrow.NewFundedSeat(
		escrow.Payload{SupplierID: req.SupplierID, PatientID: req.PatientID, MedicineID: req.MedicineID},
		escrow.KeywordPrice,
		amount,
	)

	receipt, err := s.engine.SettlePurchase(seat)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	if s.query == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "settlement log unavailable"})
		return
	}
	start := time.Now()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, badRequestf("invalid settlement id"))
		return
	}

	settlement, err := s.query.GetSettlement(r.Context(), id)
	s.observeQuery("get_settlement", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

func (s *Server) handleListPatientSettlements(w http.ResponseWriter, r *http.Request) {
	if s.query == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "settlement log unavailable"})
		return
	}

	patientID := chi.URLParam(r, "id")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, badRequestf("invalid limit"))
			return
		}
		limit = parsed
	}

	start := time.Now()
	settlements, err := s.query.ListSettlementsByPatient(r.Context(), patientID, limit)
	s.observeQuery("list_patient_settlements", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":  patientID,
		"settlements": settlements,
	})
}

func (s *Server) handleGetPatientBalance(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")

	balance, err := s.reg.PatientBalance(patientID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"unit":       balance.Unit,
		"balance":    balance.Quantity,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	doctors, suppliers, patients := s.reg.Counts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"doctors":   doctors,
		"suppliers": suppliers,
		"patients":  patients,
	})
}
