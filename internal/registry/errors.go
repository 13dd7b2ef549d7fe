package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for operations on an unknown identity.
	ErrNotFound = errors.New("registry: agent not found")
	// ErrAlreadyRegistered is returned when the identity already holds a record.
	ErrAlreadyRegistered = errors.New("registry: agent already registered")
	// ErrUnauthorized is returned when the caller lacks the required
	// relationship to the record (owner or trusted authority).
	ErrUnauthorized = errors.New("registry: caller not authorized")
	// ErrValidation is the kind shared by every field validation failure.
	ErrValidation = errors.New("registry: invalid field")
	// ErrBadReason is returned for a reputation reason outside the closed set.
	ErrBadReason = errors.New("registry: unknown reputation reason")
	// ErrLedgerOverflow guards the event cap invariant. It never surfaces
	// while eviction is correct; tests treat it as a fatal assertion.
	ErrLedgerOverflow = errors.New("registry: reputation ledger exceeded capacity")
)

// Per-rule validation failures. Each wraps ErrValidation, so callers can
// match the kind or the specific rule with errors.Is.
var (
	ErrNameEmpty           = fmt.Errorf("%w: name cannot be empty", ErrValidation)
	ErrNameTooLong         = fmt.Errorf("%w: name exceeds %d characters", ErrValidation, MaxNameLength)
	ErrTooManyCapabilities = fmt.Errorf("%w: more than %d capabilities", ErrValidation, MaxCapabilities)
	ErrCapabilityEmpty     = fmt.Errorf("%w: capability cannot be empty", ErrValidation)
	ErrCapabilityTooLong   = fmt.Errorf("%w: capability exceeds %d characters", ErrValidation, MaxCapabilityLength)
	ErrServiceTypesEmpty   = fmt.Errorf("%w: service types cannot be empty", ErrValidation)
	ErrTooManyServiceTypes = fmt.Errorf("%w: more than %d service types", ErrValidation, MaxServiceTypes)
	ErrUnknownServiceType  = fmt.Errorf("%w: unknown service type", ErrValidation)
)
