package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type ListingRepository struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// UpsertListing opens (or reopens) the listing for a mint. Relisting a
// previously sold NFT clears the sale fields.
func (r *ListingRepository) UpsertListing(ctx context.Context, mint, seller string, priceLamports uint64) error {
	sql := `
		INSERT INTO marketplace_listings (nft_mint, seller, price_lamports)
		VALUES ($1, $2, $3)
		ON CONFLICT (nft_mint) DO UPDATE SET
			seller = EXCLUDED.seller,
			price_lamports = EXCLUDED.price_lamports,
			is_active = TRUE,
			buyer = NULL,
			sold_price_lamports = NULL,
			fee_lamports = NULL,
			sold_at = NULL,
			listed_at = NOW(),
			updated_at = NOW()
	`

	_, err := r.db.pool.Exec(ctx, sql, mint, seller, priceLamports)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", mint, err)
	}
	return nil
}

func (r *ListingRepository) GetListing(ctx context.Context, mint string) (*Listing, error) {
	sql := `
		SELECT nft_mint, seller, price_lamports, is_active, buyer,
		       sold_price_lamports, fee_lamports, sold_at, listed_at, updated_at
		FROM marketplace_listings
		WHERE nft_mint = $1
	`

	var l Listing
	err := r.db.pool.QueryRow(ctx, sql, mint).Scan(
		&l.NFTMint, &l.Seller, &l.PriceLamports, &l.IsActive, &l.Buyer,
		&l.SoldPriceLamports, &l.FeeLamports, &l.SoldAt, &l.ListedAt, &l.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query listing: %w", err)
	}

	return &l, nil
}

// Deactivate closes an active listing after a delist. Replays and delists
// of already closed listings report applied=false.
func (r *ListingRepository) Deactivate(ctx context.Context, mint string) (bool, error) {
	sql := `
		UPDATE marketplace_listings
		SET is_active = FALSE, updated_at = NOW()
		WHERE nft_mint = $1 AND is_active
	`

	tag, err := r.db.pool.Exec(ctx, sql, mint)
	if err != nil {
		return false, fmt.Errorf("deactivate listing %s: %w", mint, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSold closes an active listing with the sale terms. Only the first
// sale event lands.
func (r *ListingRepository) MarkSold(ctx context.Context, mint, buyer string, priceLamports, feeLamports uint64, at time.Time) (bool, error) {
	sql := `
		UPDATE marketplace_listings
		SET is_active = FALSE,
		    buyer = $2,
		    sold_price_lamports = $3,
		    fee_lamports = $4,
		    sold_at = $5,
		    updated_at = NOW()
		WHERE nft_mint = $1 AND is_active
	`

	tag, err := r.db.pool.Exec(ctx, sql, mint, buyer, priceLamports, feeLamports, at)
	if err != nil {
		return false, fmt.Errorf("mark listing %s sold: %w", mint, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdatePrice changes the asking price of an active listing.
func (r *ListingRepository) UpdatePrice(ctx context.Context, mint string, priceLamports uint64) (bool, error) {
	sql := `
		UPDATE marketplace_listings
		SET price_lamports = $2, updated_at = NOW()
		WHERE nft_mint = $1 AND is_active
	`

	tag, err := r.db.pool.Exec(ctx, sql, mint, priceLamports)
	if err != nil {
		return false, fmt.Errorf("update listing %s price: %w", mint, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns open listings, cheapest first.
func (r *ListingRepository) ListActive(ctx context.Context, limit, offset int) ([]Listing, error) {
	sql := `
		SELECT nft_mint, seller, price_lamports, is_active, buyer,
		       sold_price_lamports, fee_lamports, sold_at, listed_at, updated_at
		FROM marketplace_listings
		WHERE is_active
		ORDER BY price_lamports ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		err := rows.Scan(
			&l.NFTMint, &l.Seller, &l.PriceLamports, &l.IsActive, &l.Buyer,
			&l.SoldPriceLamports, &l.FeeLamports, &l.SoldAt, &l.ListedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}

	return listings, rows.Err()
}
