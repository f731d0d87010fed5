package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type GameRepository struct {
	db *DB
}

func NewGameRepository(db *DB) *GameRepository {
	return &GameRepository{db: db}
}

const insertGameSQL = `
	INSERT INTO games (
		game_id, address, authority, name, description, image_url,
		token_mint, cost_usd_cents, treasury, total_supply_remaining,
		total_plays, is_active
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (game_id) DO UPDATE SET
		address = EXCLUDED.address,
		authority = EXCLUDED.authority,
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		image_url = EXCLUDED.image_url,
		token_mint = EXCLUDED.token_mint,
		cost_usd_cents = EXCLUDED.cost_usd_cents,
		treasury = EXCLUDED.treasury,
		is_active = EXCLUDED.is_active,
		updated_at = NOW()
`

// UpsertGame inserts or refreshes a game's catalog fields. The counters
// (total_plays, total_supply_remaining) are only set on insert; after
// that they move through the dedicated atomic updates, so a replayed
// creation can never wind them back.
func (r *GameRepository) UpsertGame(ctx context.Context, g *Game) error {
	_, err := r.db.pool.Exec(ctx, insertGameSQL,
		g.GameID, g.Address, g.Authority, g.Name, g.Description, g.ImageURL,
		g.TokenMint, g.CostUSDCents, g.Treasury, g.TotalSupplyRemaining,
		g.TotalPlays, g.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert game %d: %w", g.GameID, err)
	}
	return nil
}

// CreateGameWithPrizes writes a game and its prize catalog in one
// transaction, so a half-indexed game is never observable.
func (r *GameRepository) CreateGameWithPrizes(ctx context.Context, g *Game, prizes []*Prize) error {
	insertPrizeSQL := `
		INSERT INTO prizes (
			game_id, prize_id, prize_index, name, description, image_url,
			metadata_uri, physical_sku, tier, probability_bp, cost_usd_cents,
			weight_grams, length_hundredths, width_hundredths, height_hundredths,
			supply_total, supply_remaining
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (game_id, prize_id) DO NOTHING
	`

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertGameSQL,
			g.GameID, g.Address, g.Authority, g.Name, g.Description, g.ImageURL,
			g.TokenMint, g.CostUSDCents, g.Treasury, g.TotalSupplyRemaining,
			g.TotalPlays, g.IsActive,
		); err != nil {
			return fmt.Errorf("insert game %d: %w", g.GameID, err)
		}

		for _, p := range prizes {
			if _, err := tx.Exec(ctx, insertPrizeSQL,
				p.GameID, p.PrizeID, p.PrizeIndex, p.Name, p.Description, p.ImageURL,
				p.MetadataURI, p.PhysicalSKU, p.Tier, p.ProbabilityBP, p.CostUSDCents,
				p.WeightGrams, p.LengthHundredths, p.WidthHundredths, p.HeightHundredths,
				p.SupplyTotal, p.SupplyRemaining,
			); err != nil {
				return fmt.Errorf("insert prize %d: %w", p.PrizeID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create game %d with prizes: %w", g.GameID, err)
	}
	return nil
}

func (r *GameRepository) GetGame(ctx context.Context, gameID uint64) (*Game, error) {
	sql := `
		SELECT game_id, address, authority, name, description, image_url,
		       token_mint, cost_usd_cents, treasury, total_supply_remaining,
		       total_plays, is_active, created_at, updated_at
		FROM games
		WHERE game_id = $1
	`

	var g Game
	err := r.db.pool.QueryRow(ctx, sql, gameID).Scan(
		&g.GameID, &g.Address, &g.Authority, &g.Name, &g.Description, &g.ImageURL,
		&g.TokenMint, &g.CostUSDCents, &g.Treasury, &g.TotalSupplyRemaining,
		&g.TotalPlays, &g.IsActive, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query game: %w", err)
	}

	return &g, nil
}

func (r *GameRepository) SetGameActive(ctx context.Context, gameID uint64, active bool) error {
	sql := `UPDATE games SET is_active = $2, updated_at = NOW() WHERE game_id = $1`
	_, err := r.db.pool.Exec(ctx, sql, gameID, active)
	if err != nil {
		return fmt.Errorf("set game %d active=%t: %w", gameID, active, err)
	}
	return nil
}

func (r *GameRepository) IncrementTotalPlays(ctx context.Context, gameID uint64) error {
	sql := `
		UPDATE games SET total_plays = total_plays + 1, updated_at = NOW()
		WHERE game_id = $1
	`
	_, err := r.db.pool.Exec(ctx, sql, gameID)
	if err != nil {
		return fmt.Errorf("increment total plays for game %d: %w", gameID, err)
	}
	return nil
}

// AdjustTotalSupply moves the aggregate supply counter by delta, floored
// at zero.
func (r *GameRepository) AdjustTotalSupply(ctx context.Context, gameID uint64, delta int32) error {
	sql := `
		UPDATE games
		SET total_supply_remaining = GREATEST(total_supply_remaining + $2, 0),
		    updated_at = NOW()
		WHERE game_id = $1
	`
	_, err := r.db.pool.Exec(ctx, sql, gameID, delta)
	if err != nil {
		return fmt.Errorf("adjust total supply for game %d: %w", gameID, err)
	}
	return nil
}
