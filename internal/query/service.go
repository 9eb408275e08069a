package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a settlement id is unknown.
var ErrNotFound = errors.New("query: settlement not found")

// Service provides read-only access to the settlement log for the receipts
// API. Reads go straight to Postgres; the in-memory registry remains the
// authority for live balances.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Settlement is one row of the settlement log.
type Settlement struct {
	SettlementID uuid.UUID `json:"settlement_id"`
	Flow         string    `json:"flow"`
	PatientID    string    `json:"patient_id"`
	PayeeRole    string    `json:"payee_role"`
	PayeeID      string    `json:"payee_id"`
	MedicineID   *string   `json:"medicine_id,omitempty"`
	Unit         string    `json:"unit"`
	GrossAmount  int64     `json:"gross_amount"`
	FeeAmount    int64     `json:"fee_amount"`
	NetAmount    int64     `json:"net_amount"`
	Sequence     int64     `json:"sequence"`
	SettledAt    time.Time `json:"settled_at"`
}

const settlementColumns = `settlement_id, flow, patient_id, payee_role, payee_id,
	medicine_id, unit, gross_amount, fee_amount, net_amount, sequence, settled_at`

// GetSettlement returns one settlement by id.
func (s *Service) GetSettlement(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+`
		FROM care.settlements
		WHERE settlement_id = $1
	`, id)

	var out Settlement
	err := row.Scan(
		&out.SettlementID, &out.Flow, &out.PatientID, &out.PayeeRole, &out.PayeeID,
		&out.MedicineID, &out.Unit, &out.GrossAmount, &out.FeeAmount, &out.NetAmount,
		&out.Sequence, &out.SettledAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSettlementsByPatient returns a patient's settlements, newest first.
func (s *Service) ListSettlementsByPatient(ctx context.Context, patientID string, limit int) ([]Settlement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+settlementColumns+`
		FROM care.settlements
		WHERE patient_id = $1
		ORDER BY settled_at DESC, sequence DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		var st Settlement
		if err := rows.Scan(
			&st.SettlementID, &st.Flow, &st.PatientID, &st.PayeeRole, &st.PayeeID,
			&st.MedicineID, &st.Unit, &st.GrossAmount, &st.FeeAmount, &st.NetAmount,
			&st.Sequence, &st.SettledAt,
		); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
