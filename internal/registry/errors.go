package registry

import "errors"

// Role identifies the namespace an identity was registered under.
type Role string

const (
	RoleDoctor   Role = "doctor"
	RoleSupplier Role = "supplier"
	RolePatient  Role = "patient"
)

var (
	// ErrDuplicateIdentity is returned when a registration reuses an id
	// already present in its namespace. The existing record is untouched.
	ErrDuplicateIdentity = errors.New("registry: identity already registered")

	// ErrUnknownIdentity is returned by lookups of unregistered ids. The
	// wrapping message names the role that failed.
	ErrUnknownIdentity = errors.New("registry: unknown identity")

	// ErrInsufficientFunds is returned when a patient's balance is below the
	// requested debit amount. The balance is left unchanged.
	ErrInsufficientFunds = errors.New("registry: insufficient patient balance")
)
