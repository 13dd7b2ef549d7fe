package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kaldra/agora/internal/marketplace"
)

// CreateListing inserts a new service listing.
func (s *Store) CreateListing(ctx context.Context, l *marketplace.Listing) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO listings (listing_id, provider_id, service_type, title,
		                      description, price, delivery_time, requirements,
		                      is_active, created_at, updated_at,
		                      total_purchases, average_rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ListingID, l.ProviderID, l.ServiceType, l.Title,
		l.Description, int64(l.Price), l.DeliveryTime, l.Requirements,
		l.IsActive, l.CreatedAt, l.UpdatedAt,
		int64(l.TotalPurchases), l.AverageRating,
	)
	if err != nil {
		return fmt.Errorf("create listing %s: %w", l.ListingID, err)
	}
	return nil
}

// GetListing retrieves a single listing by id.
func (s *Store) GetListing(ctx context.Context, id string) (*marketplace.Listing, error) {
	row := s.db.QueryRow(ctx, `
		SELECT listing_id, provider_id, service_type, title, description,
		       price, delivery_time, requirements, is_active,
		       created_at, updated_at, total_purchases, average_rating
		FROM listings WHERE listing_id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, marketplace.ErrNotFound
		}
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

// UpdateListing replaces only the provided fields; nil pointers leave the
// stored value untouched. updated_at always moves.
func (s *Store) UpdateListing(ctx context.Context, id string, title, description *string, price *uint64, deliveryTime *int64, updatedAt time.Time) error {
	var priceVal *int64
	if price != nil {
		p := int64(*price)
		priceVal = &p
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE listings SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			price = COALESCE($4, price),
			delivery_time = COALESCE($5, delivery_time),
			updated_at = $6
		WHERE listing_id = $1`,
		id, title, description, priceVal, deliveryTime, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNotFound
	}
	return nil
}

// SetListingActive flips the activity flag, preserving all listing data.
func (s *Store) SetListingActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE listings SET is_active = $2, updated_at = $3 WHERE listing_id = $1`,
		id, active, updatedAt)
	if err != nil {
		return fmt.Errorf("set listing %s active: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNotFound
	}
	return nil
}

// ListListings returns listings newest-first, optionally filtered to active
// ones or to one service type (0 means all).
func (s *Store) ListListings(ctx context.Context, activeOnly bool, serviceType int) ([]*marketplace.Listing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT listing_id, provider_id, service_type, title, description,
		       price, delivery_time, requirements, is_active,
		       created_at, updated_at, total_purchases, average_rating
		FROM listings
		WHERE ($1 = false OR is_active)
		  AND ($2 = 0 OR service_type = $2)
		ORDER BY created_at DESC`,
		activeOnly, serviceType)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []*marketplace.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(row pgx.Row) (*marketplace.Listing, error) {
	var (
		l         marketplace.Listing
		price     int64
		purchases int64
	)
	err := row.Scan(
		&l.ListingID, &l.ProviderID, &l.ServiceType, &l.Title, &l.Description,
		&price, &l.DeliveryTime, &l.Requirements, &l.IsActive,
		&l.CreatedAt, &l.UpdatedAt, &purchases, &l.AverageRating,
	)
	if err != nil {
		return nil, err
	}
	l.Price = uint64(price)
	l.TotalPurchases = uint64(purchases)
	return &l, nil
}
