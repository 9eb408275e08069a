package event

import "github.com/google/uuid"

// ConsultationSettled records a completed patient→doctor settlement.
type ConsultationSettled struct {
	SettlementID uuid.UUID `json:"settlement_id"`
	DoctorID     string    `json:"doctor_id"`
	PatientID    string    `json:"patient_id"`
	Unit         string    `json:"unit"`
	GrossAmount  int64     `json:"gross_amount"`
	FeeAmount    int64     `json:"fee_amount"`
	NetAmount    int64     `json:"net_amount"`
}

func (e *ConsultationSettled) IdempotencyKey() string {
	return e.SettlementID.String()
}

func (e *ConsultationSettled) EventType() EventType {
	return EventTypeConsultationSettled
}

// PurchaseSettled records a completed patient→supplier settlement.
type PurchaseSettled struct {
	SettlementID uuid.UUID `json:"settlement_id"`
	SupplierID   string    `json:"supplier_id"`
	PatientID    string    `json:"patient_id"`
	MedicineID   string    `json:"medicine_id"`
	Unit         string    `json:"unit"`
	GrossAmount  int64     `json:"gross_amount"`
	FeeAmount    int64     `json:"fee_amount"`
	NetAmount    int64     `json:"net_amount"`
}

func (e *PurchaseSettled) IdempotencyKey() string {
	return e.SettlementID.String()
}

func (e *PurchaseSettled) EventType() EventType {
	return EventTypePurchaseSettled
}
