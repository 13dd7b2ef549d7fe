package registry

// Validation predicates are pure and run before any mutation is committed.
// Any violated rule aborts the whole operation; nothing is ever truncated to
// fit. Cheap structural checks come first.

func validateName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func validateCapabilities(capabilities []string) error {
	if len(capabilities) > MaxCapabilities {
		return ErrTooManyCapabilities
	}
	for _, c := range capabilities {
		if c == "" {
			return ErrCapabilityEmpty
		}
		if len(c) > MaxCapabilityLength {
			return ErrCapabilityTooLong
		}
	}
	return nil
}

func validateServiceTypes(serviceTypes []int) error {
	if len(serviceTypes) == 0 {
		return ErrServiceTypesEmpty
	}
	if len(serviceTypes) > MaxServiceTypes {
		return ErrTooManyServiceTypes
	}
	for _, t := range serviceTypes {
		if !ValidServiceType(t) {
			return ErrUnknownServiceType
		}
	}
	return nil
}
