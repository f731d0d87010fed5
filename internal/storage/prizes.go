package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type PrizeRepository struct {
	db *DB
}

func NewPrizeRepository(db *DB) *PrizeRepository {
	return &PrizeRepository{db: db}
}

func (r *PrizeRepository) UpsertPrize(ctx context.Context, p *Prize) error {
	sql := `
		INSERT INTO prizes (
			game_id, prize_id, prize_index, name, description, image_url,
			metadata_uri, physical_sku, tier, probability_bp, cost_usd_cents,
			weight_grams, length_hundredths, width_hundredths, height_hundredths,
			supply_total, supply_remaining
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (game_id, prize_id) DO UPDATE SET
			prize_index = EXCLUDED.prize_index,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			metadata_uri = EXCLUDED.metadata_uri,
			physical_sku = EXCLUDED.physical_sku,
			tier = EXCLUDED.tier,
			probability_bp = EXCLUDED.probability_bp,
			cost_usd_cents = EXCLUDED.cost_usd_cents,
			weight_grams = EXCLUDED.weight_grams,
			length_hundredths = EXCLUDED.length_hundredths,
			width_hundredths = EXCLUDED.width_hundredths,
			height_hundredths = EXCLUDED.height_hundredths,
			supply_total = EXCLUDED.supply_total,
			supply_remaining = EXCLUDED.supply_remaining,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.pool.QueryRow(ctx, sql,
		p.GameID, p.PrizeID, p.PrizeIndex, p.Name, p.Description, p.ImageURL,
		p.MetadataURI, p.PhysicalSKU, p.Tier, p.ProbabilityBP, p.CostUSDCents,
		p.WeightGrams, p.LengthHundredths, p.WidthHundredths, p.HeightHundredths,
		p.SupplyTotal, p.SupplyRemaining,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert prize %d of game %d: %w", p.PrizeID, p.GameID, err)
	}
	return nil
}

func (r *PrizeRepository) GetPrize(ctx context.Context, gameID, prizeID uint64) (*Prize, error) {
	sql := `
		SELECT id, game_id, prize_id, prize_index, name, description, image_url,
		       metadata_uri, physical_sku, tier, probability_bp, cost_usd_cents,
		       weight_grams, length_hundredths, width_hundredths, height_hundredths,
		       supply_total, supply_remaining, created_at, updated_at
		FROM prizes
		WHERE game_id = $1 AND prize_id = $2
	`

	var p Prize
	err := r.db.pool.QueryRow(ctx, sql, gameID, prizeID).Scan(
		&p.ID, &p.GameID, &p.PrizeID, &p.PrizeIndex, &p.Name, &p.Description, &p.ImageURL,
		&p.MetadataURI, &p.PhysicalSKU, &p.Tier, &p.ProbabilityBP, &p.CostUSDCents,
		&p.WeightGrams, &p.LengthHundredths, &p.WidthHundredths, &p.HeightHundredths,
		&p.SupplyTotal, &p.SupplyRemaining, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query prize: %w", err)
	}

	return &p, nil
}

func (r *PrizeRepository) ListPrizes(ctx context.Context, gameID uint64) ([]Prize, error) {
	sql := `
		SELECT id, game_id, prize_id, prize_index, name, description, image_url,
		       metadata_uri, physical_sku, tier, probability_bp, cost_usd_cents,
		       weight_grams, length_hundredths, width_hundredths, height_hundredths,
		       supply_total, supply_remaining, created_at, updated_at
		FROM prizes
		WHERE game_id = $1
		ORDER BY prize_index
	`

	rows, err := r.db.pool.Query(ctx, sql, gameID)
	if err != nil {
		return nil, fmt.Errorf("query prizes: %w", err)
	}
	defer rows.Close()

	var prizes []Prize
	for rows.Next() {
		var p Prize
		err := rows.Scan(
			&p.ID, &p.GameID, &p.PrizeID, &p.PrizeIndex, &p.Name, &p.Description, &p.ImageURL,
			&p.MetadataURI, &p.PhysicalSKU, &p.Tier, &p.ProbabilityBP, &p.CostUSDCents,
			&p.WeightGrams, &p.LengthHundredths, &p.WidthHundredths, &p.HeightHundredths,
			&p.SupplyTotal, &p.SupplyRemaining, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan prize: %w", err)
		}
		prizes = append(prizes, p)
	}

	return prizes, rows.Err()
}

// DecrementSupply consumes one unit of a prize, floored at zero so a
// replayed win can never drive the counter negative.
func (r *PrizeRepository) DecrementSupply(ctx context.Context, gameID, prizeID uint64) error {
	sql := `
		UPDATE prizes
		SET supply_remaining = GREATEST(supply_remaining - 1, 0),
		    updated_at = NOW()
		WHERE game_id = $1 AND prize_id = $2
	`
	_, err := r.db.pool.Exec(ctx, sql, gameID, prizeID)
	if err != nil {
		return fmt.Errorf("decrement supply of prize %d: %w", prizeID, err)
	}
	return nil
}

// SetSupply overwrites the remaining supply with the on-chain value after
// a replenishment.
func (r *PrizeRepository) SetSupply(ctx context.Context, gameID, prizeID uint64, remaining uint32) error {
	sql := `
		UPDATE prizes
		SET supply_remaining = $3,
		    supply_total = GREATEST(supply_total, $3),
		    updated_at = NOW()
		WHERE game_id = $1 AND prize_id = $2
	`
	_, err := r.db.pool.Exec(ctx, sql, gameID, prizeID, remaining)
	if err != nil {
		return fmt.Errorf("set supply of prize %d: %w", prizeID, err)
	}
	return nil
}
