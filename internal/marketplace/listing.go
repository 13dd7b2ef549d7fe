package marketplace

import (
	"errors"
	"fmt"
	"time"

	"github.com/kaldra/agora/internal/registry"
)

// Field limits for listings.
const (
	MaxTitleLength        = 100
	MaxDescriptionLength  = 500
	MaxRequirementsLength = 500
)

// Service type ids are owned by the agent records; aliased here so listing
// callers can stay in marketplace vocabulary.
const (
	ServiceTypeYieldOptimization   = registry.ServiceTypeYieldOptimization
	ServiceTypeRiskAnalysis        = registry.ServiceTypeRiskAnalysis
	ServiceTypeMarketPrediction    = registry.ServiceTypeMarketPrediction
	ServiceTypeStrategyDevelopment = registry.ServiceTypeStrategyDevelopment
	ServiceTypeDataAnalysis        = registry.ServiceTypeDataAnalysis
	ServiceTypeSmartContractAudit  = registry.ServiceTypeSmartContractAudit
	ServiceTypeLiquidityProvision  = registry.ServiceTypeLiquidityProvision
	ServiceTypeArbitrageDetection  = registry.ServiceTypeArbitrageDetection
	ServiceTypePortfolioManagement = registry.ServiceTypePortfolioManagement
	ServiceTypeCustom              = registry.ServiceTypeCustom
)

// ValidServiceType reports whether t is a known service type id.
func ValidServiceType(t int) bool { return registry.ValidServiceType(t) }

// Listing is one service offer by a registered agent. The marketplace
// validates listings but never scores them; reputation lives in the registry.
type Listing struct {
	ListingID      string    `json:"listing_id"`
	ProviderID     string    `json:"provider_id"`
	ServiceType    int       `json:"service_type"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Price          uint64    `json:"price"`
	DeliveryTime   int64     `json:"delivery_time"` // expected delivery, seconds
	Requirements   string    `json:"requirements"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	TotalPurchases uint64    `json:"total_purchases"`
	AverageRating  int       `json:"average_rating"` // 0-500, hundredths of a star
}

var (
	// ErrNotFound is returned for operations on an unknown listing.
	ErrNotFound = errors.New("marketplace: listing not found")
	// ErrUnauthorized is returned when the caller does not own the listing.
	ErrUnauthorized = errors.New("marketplace: caller not authorized")
	// ErrValidation is the kind shared by every field validation failure.
	ErrValidation = errors.New("marketplace: invalid field")
	// ErrProviderNotRegistered is returned when the provider has no agent record.
	ErrProviderNotRegistered = errors.New("marketplace: provider is not a registered agent")
	// ErrProviderInactive is returned when the provider's record is deactivated.
	ErrProviderInactive = errors.New("marketplace: provider is not active")
)

var (
	ErrTitleEmpty          = fmt.Errorf("%w: title cannot be empty", ErrValidation)
	ErrTitleTooLong        = fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	ErrDescriptionEmpty    = fmt.Errorf("%w: description cannot be empty", ErrValidation)
	ErrDescriptionTooLong  = fmt.Errorf("%w: description exceeds %d characters", ErrValidation, MaxDescriptionLength)
	ErrRequirementsTooLong = fmt.Errorf("%w: requirements exceed %d characters", ErrValidation, MaxRequirementsLength)
	ErrInvalidServiceType  = fmt.Errorf("%w: unknown service type", ErrValidation)
	ErrInvalidPrice        = fmt.Errorf("%w: price must be positive", ErrValidation)
	ErrInvalidDeliveryTime = fmt.Errorf("%w: delivery time must be positive", ErrValidation)
)

func validateTitle(title string) error {
	if title == "" {
		return ErrTitleEmpty
	}
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

func validateDescription(description string) error {
	if description == "" {
		return ErrDescriptionEmpty
	}
	if len(description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
