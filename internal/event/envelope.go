package event

import "time"

// EventType discriminator for audit-log payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDoctorRegistered
	EventTypeSupplierRegistered
	EventTypePatientRegistered
	EventTypeConsultationSettled
	EventTypePurchaseSettled
)

// Envelope wraps every event written to the settlement log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable dedup key (seat id for settlements, identity id for registrations)
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Wall-clock time the operation committed
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte
}

// Event is the interface all audit payloads implement.
type Event interface {
	IdempotencyKey() string
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeDoctorRegistered:
		return "DoctorRegistered"
	case EventTypeSupplierRegistered:
		return "SupplierRegistered"
	case EventTypePatientRegistered:
		return "PatientRegistered"
	case EventTypeConsultationSettled:
		return "ConsultationSettled"
	case EventTypePurchaseSettled:
		return "PurchaseSettled"
	default:
		return "Unknown"
	}
}
