package event

// DoctorRegistered records a new doctor identity.
type DoctorRegistered struct {
	DoctorID string `json:"doctor_id"`
}

func (e *DoctorRegistered) IdempotencyKey() string { return "doctor:" + e.DoctorID }
func (e *DoctorRegistered) EventType() EventType   { return EventTypeDoctorRegistered }

// SupplierRegistered records a new supplier identity.
type SupplierRegistered struct {
	SupplierID string `json:"supplier_id"`
}

func (e *SupplierRegistered) IdempotencyKey() string { return "supplier:" + e.SupplierID }
func (e *SupplierRegistered) EventType() EventType   { return EventTypeSupplierRegistered }

// PatientRegistered records a new patient identity and its initial balance.
type PatientRegistered struct {
	PatientID      string `json:"patient_id"`
	Unit           string `json:"unit"`
	InitialBalance int64  `json:"initial_balance"`
}

func (e *PatientRegistered) IdempotencyKey() string { return "patient:" + e.PatientID }
func (e *PatientRegistered) EventType() EventType   { return EventTypePatientRegistered }
