package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PlayRepository struct {
	db *DB
}

func NewPlayRepository(db *DB) *PlayRepository {
	return &PlayRepository{db: db}
}

const playColumns = `
	id, signature, session, user_address, game_id, token_amount, state,
	is_win, prize_id, prize_index, tier, random_value, nft_mint,
	payment_verified, payment_usd, slot, created_at, updated_at, resolved_at
`

func scanPlay(row pgx.Row) (*Play, error) {
	var p Play
	err := row.Scan(
		&p.ID, &p.Signature, &p.Session, &p.UserAddress, &p.GameID, &p.TokenAmount, &p.State,
		&p.IsWin, &p.PrizeID, &p.PrizeIndex, &p.Tier, &p.RandomValue, &p.NFTMint,
		&p.PaymentVerified, &p.PaymentUSD, &p.Slot, &p.CreatedAt, &p.UpdatedAt, &p.ResolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan play: %w", err)
	}
	return &p, nil
}

// CreatePlay inserts a pending play row. A replayed initiation event hits
// the signature conflict and reports inserted=false.
func (r *PlayRepository) CreatePlay(ctx context.Context, p *Play) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.State == "" {
		p.State = PlayPending
	}

	sql := `
		INSERT INTO plays (
			id, signature, session, user_address, game_id, token_amount,
			state, slot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signature) DO NOTHING
	`

	tag, err := r.db.pool.Exec(ctx, sql,
		p.ID, p.Signature, p.Session, p.UserAddress, p.GameID, p.TokenAmount,
		p.State, p.Slot,
	)
	if err != nil {
		return false, fmt.Errorf("create play %s: %w", p.Signature, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PlayRepository) GetBySignature(ctx context.Context, signature string) (*Play, error) {
	sql := `SELECT ` + playColumns + ` FROM plays WHERE signature = $1`
	return scanPlay(r.db.pool.QueryRow(ctx, sql, signature))
}

func (r *PlayRepository) GetBySession(ctx context.Context, session string) (*Play, error) {
	sql := `SELECT ` + playColumns + ` FROM plays WHERE session = $1`
	return scanPlay(r.db.pool.QueryRow(ctx, sql, session))
}

// ResolvePlay moves a pending play to its terminal state: completed on a
// win, failed on a loss. Only pending rows transition, so replays and
// resolutions racing a failure are dropped; the return reports whether
// this call did the transition.
func (r *PlayRepository) ResolvePlay(ctx context.Context, session string, isWin bool, prizeID *uint64, prizeIndex *uint8, tier *uint8, randomValue string, resolvedAt time.Time) (bool, error) {
	sql := `
		UPDATE plays
		SET state = CASE WHEN $2 THEN 'completed' ELSE 'failed' END,
		    is_win = $2,
		    prize_id = $3,
		    prize_index = $4,
		    tier = $5,
		    random_value = $6,
		    resolved_at = $7,
		    updated_at = NOW()
		WHERE session = $1 AND state = 'pending'
	`

	tag, err := r.db.pool.Exec(ctx, sql, session, isWin, prizeID, prizeIndex, tier, randomValue, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("resolve play %s: %w", session, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed moves a pending play to failed. Completed plays stay
// completed.
func (r *PlayRepository) MarkFailed(ctx context.Context, session string) (bool, error) {
	sql := `
		UPDATE plays
		SET state = 'failed', updated_at = NOW()
		WHERE session = $1 AND state = 'pending'
	`

	tag, err := r.db.pool.Exec(ctx, sql, session)
	if err != nil {
		return false, fmt.Errorf("mark play %s failed: %w", session, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetPaymentResult records the verifier's verdict for the play that
// initiated with this signature.
func (r *PlayRepository) SetPaymentResult(ctx context.Context, signature string, verified bool, actualUSD string) error {
	sql := `
		UPDATE plays
		SET payment_verified = $2, payment_usd = $3, updated_at = NOW()
		WHERE signature = $1
	`
	_, err := r.db.pool.Exec(ctx, sql, signature, verified, actualUSD)
	if err != nil {
		return fmt.Errorf("set payment result for %s: %w", signature, err)
	}
	return nil
}

// AttachMint links a minted NFT to the play, first writer wins.
func (r *PlayRepository) AttachMint(ctx context.Context, session, mint string) (bool, error) {
	sql := `
		UPDATE plays
		SET nft_mint = $2, updated_at = NOW()
		WHERE session = $1 AND nft_mint IS NULL
	`

	tag, err := r.db.pool.Exec(ctx, sql, session, mint)
	if err != nil {
		return false, fmt.Errorf("attach mint to play %s: %w", session, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailStale fails pending plays older than the cutoff. A play whose
// resolution never lands stays pending forever otherwise.
func (r *PlayRepository) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	sql := `
		UPDATE plays
		SET state = 'failed', updated_at = NOW()
		WHERE state = 'pending' AND created_at < NOW() - $1::interval
	`

	tag, err := r.db.pool.Exec(ctx, sql, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("fail stale plays: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LatestWinWithoutMint finds the most recent winning play of a user in a
// game that has not had an NFT attached yet. Used when a claim arrives in
// a separate transaction from the resolution.
func (r *PlayRepository) LatestWinWithoutMint(ctx context.Context, user string, gameID uint64) (*Play, error) {
	sql := `
		SELECT ` + playColumns + `
		FROM plays
		WHERE user_address = $1 AND game_id = $2
		  AND state = 'completed' AND is_win AND nft_mint IS NULL
		ORDER BY resolved_at DESC NULLS LAST
		LIMIT 1
	`
	return scanPlay(r.db.pool.QueryRow(ctx, sql, user, gameID))
}

// ListByUser returns a user's plays, newest first.
func (r *PlayRepository) ListByUser(ctx context.Context, user string, limit, offset int) ([]Play, error) {
	sql := `
		SELECT ` + playColumns + `
		FROM plays
		WHERE user_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.pool.Query(ctx, sql, user, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query plays: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, *p)
	}

	return plays, rows.Err()
}
