// Package marketplace manages service listings offered by registered agents.
// It consumes only the registry's activity check; scoring stays in the
// registry, settlement and escrow stay out of scope entirely.
package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kaldra/agora/internal/notify"
	"github.com/kaldra/agora/internal/registry"
	"go.uber.org/zap"
)

// AgentDirectory is the slice of the registry the marketplace needs: whether
// a provider is registered and active. *registry.Service satisfies it.
type AgentDirectory interface {
	Get(ctx context.Context, agentID string) (*registry.Agent, error)
}

// Store is keyed storage for listings.
type Store interface {
	CreateListing(ctx context.Context, l *Listing) error
	GetListing(ctx context.Context, id string) (*Listing, error)
	// UpdateListing replaces only the provided fields and bumps updatedAt;
	// nil pointers leave the stored value untouched.
	UpdateListing(ctx context.Context, id string, title, description *string, price *uint64, deliveryTime *int64, updatedAt time.Time) error
	SetListingActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	// ListListings returns listings newest-first. serviceType 0 means all types.
	ListListings(ctx context.Context, activeOnly bool, serviceType int) ([]*Listing, error)
}

// Service enforces listing validation and ownership rules.
type Service struct {
	store  Store
	agents AgentDirectory
	pub    notify.Publisher
	now    func() time.Time
	logger *zap.Logger
}

// New creates a marketplace service backed by the given store and registry.
func New(store Store, agents AgentDirectory, pub notify.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		agents: agents,
		pub:    pub,
		now:    time.Now,
		logger: logger,
	}
}

// CreateListingInput carries the caller-supplied listing fields.
type CreateListingInput struct {
	ServiceType  int    `json:"service_type"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Price        uint64 `json:"price"`
	DeliveryTime int64  `json:"delivery_time"`
	Requirements string `json:"requirements"`
}

// CreateListing creates a listing owned by the caller. The caller must hold
// an active agent record; the registry's activity flag is the only
// eligibility gate, minimum-reputation thresholds are not enforced here.
func (s *Service) CreateListing(ctx context.Context, caller string, in CreateListingInput) (*Listing, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if len(in.Requirements) > MaxRequirementsLength {
		return nil, ErrRequirementsTooLong
	}
	if !ValidServiceType(in.ServiceType) {
		return nil, ErrInvalidServiceType
	}
	if in.Price == 0 {
		return nil, ErrInvalidPrice
	}
	if in.DeliveryTime <= 0 {
		return nil, ErrInvalidDeliveryTime
	}

	a, err := s.agents.Get(ctx, caller)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrProviderNotRegistered
		}
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrProviderInactive
	}

	now := s.now()
	l := &Listing{
		ListingID:    uuid.New().String(),
		ProviderID:   caller,
		ServiceType:  in.ServiceType,
		Title:        in.Title,
		Description:  in.Description,
		Price:        in.Price,
		DeliveryTime: in.DeliveryTime,
		Requirements: in.Requirements,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateListing(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("listing created",
		zap.String("listing_id", l.ListingID),
		zap.String("provider_id", l.ProviderID),
		zap.Int("service_type", l.ServiceType))
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeListingCreated,
		ListingID: l.ListingID,
		AgentID:   l.ProviderID,
		Name:      l.Title,
		Timestamp: now,
	})
	return l, nil
}

// UpdateListing replaces the provided fields on a listing the caller owns.
// History and purchase counters are preserved; only updated_at moves.
func (s *Service) UpdateListing(ctx context.Context, caller, listingID string, title, description *string, price *uint64, deliveryTime *int64) error {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if l.ProviderID != caller {
		return ErrUnauthorized
	}

	if title != nil {
		if err := validateTitle(*title); err != nil {
			return err
		}
	}
	if description != nil {
		if err := validateDescription(*description); err != nil {
			return err
		}
	}
	if price != nil && *price == 0 {
		return ErrInvalidPrice
	}
	if deliveryTime != nil && *deliveryTime <= 0 {
		return ErrInvalidDeliveryTime
	}

	now := s.now()
	if err := s.store.UpdateListing(ctx, listingID, title, description, price, deliveryTime, now); err != nil {
		return err
	}
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeListingUpdated,
		ListingID: listingID,
		AgentID:   l.ProviderID,
		Timestamp: now,
	})
	return nil
}

// DeactivateListing marks a listing inactive, preserving all data.
func (s *Service) DeactivateListing(ctx context.Context, caller, listingID string) error {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if l.ProviderID != caller {
		return ErrUnauthorized
	}

	now := s.now()
	if err := s.store.SetListingActive(ctx, listingID, false, now); err != nil {
		return err
	}
	s.publish(ctx, &notify.Event{
		Type:      notify.TypeListingDeactivated,
		ListingID: listingID,
		AgentID:   l.ProviderID,
		Timestamp: now,
	})
	return nil
}

// GetListing returns one listing. Reads are unrestricted.
func (s *Service) GetListing(ctx context.Context, listingID string) (*Listing, error) {
	return s.store.GetListing(ctx, listingID)
}

// ListListings returns listings, optionally filtered to active ones or to a
// single service type (0 means all).
func (s *Service) ListListings(ctx context.Context, activeOnly bool, serviceType int) ([]*Listing, error) {
	return s.store.ListListings(ctx, activeOnly, serviceType)
}

func (s *Service) publish(ctx context.Context, ev *notify.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}
