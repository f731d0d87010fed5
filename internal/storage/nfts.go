package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type NFTRepository struct {
	db *DB
}

func NewNFTRepository(db *DB) *NFTRepository {
	return &NFTRepository{db: db}
}

// UpsertNFT records a minted prize NFT. Replaying the claim refreshes the
// owner but never resets redemption.
func (r *NFTRepository) UpsertNFT(ctx context.Context, n *NFT) error {
	sql := `
		INSERT INTO nfts (
			mint_address, game_id, prize_id, owner, tier, metadata_uri
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint_address) DO UPDATE SET
			owner = EXCLUDED.owner,
			metadata_uri = EXCLUDED.metadata_uri,
			updated_at = NOW()
	`

	_, err := r.db.pool.Exec(ctx, sql,
		n.MintAddress, n.GameID, n.PrizeID, n.Owner, n.Tier, n.MetadataURI,
	)
	if err != nil {
		return fmt.Errorf("upsert nft %s: %w", n.MintAddress, err)
	}
	return nil
}

func (r *NFTRepository) GetNFT(ctx context.Context, mint string) (*NFT, error) {
	sql := `
		SELECT mint_address, game_id, prize_id, owner, tier, metadata_uri,
		       is_redeemed, redemption_tx, redeemed_at, created_at, updated_at
		FROM nfts
		WHERE mint_address = $1
	`

	var n NFT
	err := r.db.pool.QueryRow(ctx, sql, mint).Scan(
		&n.MintAddress, &n.GameID, &n.PrizeID, &n.Owner, &n.Tier, &n.MetadataURI,
		&n.IsRedeemed, &n.RedemptionTx, &n.RedeemedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query nft: %w", err)
	}

	return &n, nil
}

// TransferOwner moves the NFT to a new holder after a marketplace sale.
func (r *NFTRepository) TransferOwner(ctx context.Context, mint, owner string) error {
	sql := `UPDATE nfts SET owner = $2, updated_at = NOW() WHERE mint_address = $1`
	_, err := r.db.pool.Exec(ctx, sql, mint, owner)
	if err != nil {
		return fmt.Errorf("transfer nft %s: %w", mint, err)
	}
	return nil
}

// MarkRedeemed flags an NFT as redeemed for its physical prize, recording
// the redemption transaction. Redemption is one-way.
func (r *NFTRepository) MarkRedeemed(ctx context.Context, mint, redemptionTx string) (bool, error) {
	sql := `
		UPDATE nfts
		SET is_redeemed = TRUE, redemption_tx = $2, redeemed_at = NOW(),
		    updated_at = NOW()
		WHERE mint_address = $1 AND NOT is_redeemed
	`

	tag, err := r.db.pool.Exec(ctx, sql, mint, redemptionTx)
	if err != nil {
		return false, fmt.Errorf("mark nft %s redeemed: %w", mint, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordOwnership appends to the per-wallet holding history.
func (r *NFTRepository) RecordOwnership(ctx context.Context, mint, owner, source string) error {
	sql := `
		INSERT INTO nft_ownerships (mint_address, owner, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (mint_address, owner) DO UPDATE SET
			source = EXCLUDED.source,
			acquired_at = NOW()
	`
	_, err := r.db.pool.Exec(ctx, sql, mint, owner, source)
	if err != nil {
		return fmt.Errorf("record ownership of %s: %w", mint, err)
	}
	return nil
}

// ListByOwner returns the NFTs a wallet currently holds.
func (r *NFTRepository) ListByOwner(ctx context.Context, owner string) ([]NFT, error) {
	sql := `
		SELECT mint_address, game_id, prize_id, owner, tier, metadata_uri,
		       is_redeemed, redemption_tx, redeemed_at, created_at, updated_at
		FROM nfts
		WHERE owner = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.pool.Query(ctx, sql, owner)
	if err != nil {
		return nil, fmt.Errorf("query nfts: %w", err)
	}
	defer rows.Close()

	var nfts []NFT
	for rows.Next() {
		var n NFT
		err := rows.Scan(
			&n.MintAddress, &n.GameID, &n.PrizeID, &n.Owner, &n.Tier, &n.MetadataURI,
			&n.IsRedeemed, &n.RedemptionTx, &n.RedeemedAt, &n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan nft: %w", err)
		}
		nfts = append(nfts, n)
	}

	return nfts, rows.Err()
}
