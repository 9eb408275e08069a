package ledger

import "fmt"

// AccountScope is the top-level account namespace.
type AccountScope uint8

const (
	ScopePatient AccountScope = iota
	ScopeDoctor
	ScopeSupplier
	ScopePlatform
	ScopeExternal
)

// AccountSubType is the account purpose within a scope.
type AccountSubType uint8

const (
	// Patient sub-types
	SubTypeBalance AccountSubType = iota

	// Payee sub-types
	SubTypeReceivable

	// Platform sub-types
	SubTypeEscrow
	SubTypeFees

	// External sub-types
	SubTypeFunding
)

// AccountKey identifies a ledger account for in-memory balance tracking.
type AccountKey struct {
	Scope   AccountScope
	ID      string // identity id for patient/doctor/supplier scopes; empty otherwise
	SubType AccountSubType
}

// NewPatientAccountKey returns the balance account for a patient.
func NewPatientAccountKey(patientID string) AccountKey {
	return AccountKey{Scope: ScopePatient, ID: patientID, SubType: SubTypeBalance}
}

// NewDoctorAccountKey returns the receivable account for a doctor.
func NewDoctorAccountKey(doctorID string) AccountKey {
	return AccountKey{Scope: ScopeDoctor, ID: doctorID, SubType: SubTypeReceivable}
}

// NewSupplierAccountKey returns the receivable account for a supplier.
func NewSupplierAccountKey(supplierID string) AccountKey {
	return AccountKey{Scope: ScopeSupplier, ID: supplierID, SubType: SubTypeReceivable}
}

// NewPlatformAccountKey returns a platform-owned account (escrow or fees).
func NewPlatformAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{Scope: ScopePlatform, SubType: subType}
}

// NewExternalAccountKey returns the boundary account that funds enter through.
func NewExternalAccountKey() AccountKey {
	return AccountKey{Scope: ScopeExternal, SubType: SubTypeFunding}
}

// AccountPath returns the string representation for storage and logging.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case ScopePatient:
		return fmt.Sprintf("patient:%s:%s", k.ID, k.subTypeName())
	case ScopeDoctor:
		return fmt.Sprintf("doctor:%s:%s", k.ID, k.subTypeName())
	case ScopeSupplier:
		return fmt.Sprintf("supplier:%s:%s", k.ID, k.subTypeName())
	case ScopePlatform:
		return fmt.Sprintf("platform:%s", k.subTypeName())
	case ScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeBalance:
		return "balance"
	case SubTypeReceivable:
		return "receivable"
	case SubTypeEscrow:
		return "escrow"
	case SubTypeFees:
		return "fees"
	case SubTypeFunding:
		return "funding"
	default:
		return "unknown"
	}
}
