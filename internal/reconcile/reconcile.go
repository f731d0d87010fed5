// Package reconcile applies decoded events to the database. Every handler
// is idempotent: replaying a transaction's events leaves the same state
// behind, guarded by upserts and state-machine transitions rather than by
// remembering which signatures were seen.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/events"
	"github.com/gachalabs/indexer/internal/notify"
	"github.com/gachalabs/indexer/internal/storage"
	"github.com/gachalabs/indexer/internal/verify"
)

// GameStore is the game persistence surface the reconciler needs.
type GameStore interface {
	UpsertGame(ctx context.Context, g *storage.Game) error
	CreateGameWithPrizes(ctx context.Context, g *storage.Game, prizes []*storage.Prize) error
	GetGame(ctx context.Context, gameID uint64) (*storage.Game, error)
	SetGameActive(ctx context.Context, gameID uint64, active bool) error
	IncrementTotalPlays(ctx context.Context, gameID uint64) error
	AdjustTotalSupply(ctx context.Context, gameID uint64, delta int32) error
}

// PrizeStore is the prize persistence surface.
type PrizeStore interface {
	UpsertPrize(ctx context.Context, p *storage.Prize) error
	GetPrize(ctx context.Context, gameID, prizeID uint64) (*storage.Prize, error)
	DecrementSupply(ctx context.Context, gameID, prizeID uint64) error
	SetSupply(ctx context.Context, gameID, prizeID uint64, remaining uint32) error
}

// PlayStore is the play persistence surface.
type PlayStore interface {
	CreatePlay(ctx context.Context, p *storage.Play) (bool, error)
	GetBySession(ctx context.Context, session string) (*storage.Play, error)
	ResolvePlay(ctx context.Context, session string, isWin bool, prizeID *uint64, prizeIndex *uint8, tier *uint8, randomValue string, resolvedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, session string) (bool, error)
	SetPaymentResult(ctx context.Context, signature string, verified bool, actualUSD string) error
	AttachMint(ctx context.Context, session, mint string) (bool, error)
	LatestWinWithoutMint(ctx context.Context, user string, gameID uint64) (*storage.Play, error)
}

// NFTStore is the NFT persistence surface.
type NFTStore interface {
	UpsertNFT(ctx context.Context, n *storage.NFT) error
	TransferOwner(ctx context.Context, mint, owner string) error
	RecordOwnership(ctx context.Context, mint, owner, source string) error
}

// ListingStore is the marketplace persistence surface.
type ListingStore interface {
	UpsertListing(ctx context.Context, mint, seller string, priceLamports uint64) error
	Deactivate(ctx context.Context, mint string) (bool, error)
	MarkSold(ctx context.Context, mint, buyer string, priceLamports, feeLamports uint64, at time.Time) (bool, error)
	UpdatePrice(ctx context.Context, mint string, priceLamports uint64) (bool, error)
}

// Stores bundles the persistence surfaces.
type Stores struct {
	Games    GameStore
	Prizes   PrizeStore
	Plays    PlayStore
	NFTs     NFTStore
	Listings ListingStore
}

// ChainReader supplements sparse events with on-chain account state.
// Optional: with a nil reader the handlers fall back to event fields only.
type ChainReader interface {
	FetchGame(ctx context.Context, gameID uint64) (*chain.GameAccount, error)
	FetchPrize(ctx context.Context, game solana.PublicKey, index uint8) (*chain.PrizeAccount, error)
	GamePDA(gameID uint64) (solana.PublicKey, error)
}

// PaymentChecker prices a play's token payment against the play's
// on-chain timestamp. Optional.
type PaymentChecker interface {
	Verify(ctx context.Context, mint solana.PublicKey, tokenAmount, costUSDCents uint64, playedAt time.Time) verify.Result
}

// Effect reports side work the caller owes after an event is applied.
type Effect struct {
	// FinalizeSession names a play session that reached a terminal state
	// and should get a finalized notification once the whole transaction
	// has been applied.
	FinalizeSession string
}

// Reconciler routes events into state changes.
type Reconciler struct {
	stores   Stores
	chain    ChainReader
	payments PaymentChecker
	notifier notify.Notifier
	logger   *slog.Logger
}

func New(stores Stores, chainReader ChainReader, payments PaymentChecker, notifier notify.Notifier, logger *slog.Logger) *Reconciler {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		stores:   stores,
		chain:    chainReader,
		payments: payments,
		notifier: notifier,
		logger:   logger.With("component", "reconciler"),
	}
}

// Apply routes one decoded event to its handler.
func (r *Reconciler) Apply(ctx context.Context, rec events.Record) (Effect, error) {
	switch ev := rec.Event.(type) {
	case events.GameCreated:
		return Effect{}, r.handleGameCreated(ctx, ev)
	case events.PrizeAdded:
		return Effect{}, r.handlePrizeAdded(ctx, ev)
	case events.GamePlayInitiated:
		return Effect{}, r.handlePlayInitiated(ctx, ev, rec)
	case events.GameStatusUpdated:
		return Effect{}, r.stores.Games.SetGameActive(ctx, ev.GameID, ev.IsActive)
	case events.SupplyReplenished:
		return Effect{}, r.handleSupplyReplenished(ctx, ev)
	case events.TreasuryWithdrawn:
		r.logger.Info("treasury withdrawal",
			"game_id", ev.GameID,
			"amount", ev.Amount,
			"destination", ev.Destination.String(),
		)
		return Effect{}, nil
	case events.PlayResolved:
		return r.handlePlayResolved(ctx, ev)
	case events.PrizeClaimed:
		return r.handlePrizeClaimed(ctx, ev)
	case events.NFTListed:
		return Effect{}, r.stores.Listings.UpsertListing(ctx, ev.NFTMint.String(), ev.Seller.String(), ev.Price)
	case events.NFTDelisted:
		return Effect{}, r.handleNFTDelisted(ctx, ev)
	case events.NFTSold:
		return Effect{}, r.handleNFTSold(ctx, ev)
	case events.PriceUpdated:
		return Effect{}, r.handlePriceUpdated(ctx, ev)
	case events.PlatformFeesWithdrawn:
		r.logger.Info("platform fees withdrawn",
			"amount", ev.Amount,
			"destination", ev.Destination.String(),
		)
		return Effect{}, nil
	default:
		return Effect{}, fmt.Errorf("no handler for event %s", rec.Event.Name())
	}
}

func (r *Reconciler) handleGameCreated(ctx context.Context, ev events.GameCreated) error {
	existing, err := r.stores.Games.GetGame(ctx, ev.GameID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Replay of an indexed creation; the live counters stay where
		// later events moved them.
		r.logger.Debug("game already indexed, creation skipped", "game_id", ev.GameID)
		return nil
	}

	game := &storage.Game{
		GameID:    ev.GameID,
		Authority: ev.Authority.String(),
		IsActive:  true,
	}
	var prizes []*storage.Prize

	if r.chain != nil {
		acct, err := r.chain.FetchGame(ctx, ev.GameID)
		if err != nil {
			r.logger.Warn("game account fetch failed, storing event fields only",
				"game_id", ev.GameID,
				"error", err,
			)
		} else if acct != nil {
			game.Authority = acct.Authority.String()
			game.Name = acct.Name
			game.Description = acct.Description
			game.ImageURL = acct.ImageURL
			game.TokenMint = acct.TokenMint.String()
			game.CostUSDCents = acct.CostUSD
			game.Treasury = acct.Treasury.String()
			game.TotalSupplyRemaining = acct.TotalSupplyRemaining
			game.TotalPlays = acct.TotalPlays
			game.IsActive = acct.IsActive
			if pda, err := r.chain.GamePDA(ev.GameID); err == nil {
				game.Address = pda.String()
				prizes = r.fetchGamePrizes(ctx, pda, ev.GameID, acct.PrizeCount)
			}
		}
	}

	// The game row and its prize catalog land in one transaction, so a
	// reader never sees a game without its prizes.
	return r.stores.Games.CreateGameWithPrizes(ctx, game, prizes)
}

func (r *Reconciler) fetchGamePrizes(ctx context.Context, pda solana.PublicKey, gameID uint64, count uint8) []*storage.Prize {
	prizes := make([]*storage.Prize, 0, count)
	for i := uint8(0); i < count; i++ {
		acct, err := r.chain.FetchPrize(ctx, pda, i)
		if err != nil || acct == nil {
			r.logger.Warn("prize account fetch failed during game creation",
				"game_id", gameID,
				"prize_index", i,
				"error", err,
			)
			continue
		}
		prizes = append(prizes, &storage.Prize{
			GameID:           gameID,
			PrizeID:          acct.PrizeID,
			PrizeIndex:       acct.PrizeIndex,
			Name:             acct.Name,
			Description:      acct.Description,
			ImageURL:         acct.ImageURL,
			MetadataURI:      acct.MetadataURI,
			PhysicalSKU:      acct.PhysicalSKU,
			Tier:             acct.Tier,
			ProbabilityBP:    acct.ProbabilityBP,
			CostUSDCents:     acct.CostUSD,
			WeightGrams:      acct.WeightGrams,
			LengthHundredths: acct.LengthHundredths,
			WidthHundredths:  acct.WidthHundredths,
			HeightHundredths: acct.HeightHundredths,
			SupplyTotal:      acct.SupplyTotal,
			SupplyRemaining:  acct.SupplyRemaining,
		})
	}
	return prizes
}

func (r *Reconciler) handlePrizeAdded(ctx context.Context, ev events.PrizeAdded) error {
	existing, err := r.stores.Prizes.GetPrize(ctx, ev.GameID, ev.PrizeID)
	if err != nil {
		return err
	}

	prize := &storage.Prize{
		GameID:          ev.GameID,
		PrizeID:         ev.PrizeID,
		PrizeIndex:      ev.PrizeIndex,
		ProbabilityBP:   ev.ProbabilityBP,
		SupplyTotal:     ev.SupplyTotal,
		SupplyRemaining: ev.SupplyTotal,
	}
	if existing != nil {
		// Keep the live counter; only the catalog fields refresh.
		prize.SupplyRemaining = existing.SupplyRemaining
	}

	if r.chain != nil {
		pda, err := r.chain.GamePDA(ev.GameID)
		if err == nil {
			acct, err := r.chain.FetchPrize(ctx, pda, ev.PrizeIndex)
			if err != nil {
				r.logger.Warn("prize account fetch failed, storing event fields only",
					"game_id", ev.GameID,
					"prize_id", ev.PrizeID,
					"error", err,
				)
			} else if acct != nil {
				prize.Name = acct.Name
				prize.Description = acct.Description
				prize.ImageURL = acct.ImageURL
				prize.MetadataURI = acct.MetadataURI
				prize.PhysicalSKU = acct.PhysicalSKU
				prize.Tier = acct.Tier
				prize.CostUSDCents = acct.CostUSD
				prize.WeightGrams = acct.WeightGrams
				prize.LengthHundredths = acct.LengthHundredths
				prize.WidthHundredths = acct.WidthHundredths
				prize.HeightHundredths = acct.HeightHundredths
				prize.SupplyTotal = acct.SupplyTotal
				prize.SupplyRemaining = acct.SupplyRemaining
			}
		}
	}

	if err := r.stores.Prizes.UpsertPrize(ctx, prize); err != nil {
		return err
	}

	// The game aggregate moves by the delta so a replay is a no-op.
	var delta int32
	if existing == nil {
		delta = int32(prize.SupplyRemaining)
	} else {
		delta = int32(prize.SupplyRemaining) - int32(existing.SupplyRemaining)
	}
	if delta != 0 {
		return r.stores.Games.AdjustTotalSupply(ctx, ev.GameID, delta)
	}
	return nil
}

func (r *Reconciler) handlePlayInitiated(ctx context.Context, ev events.GamePlayInitiated, rec events.Record) error {
	play := &storage.Play{
		Signature:   rec.Signature,
		Session:     ev.Session.String(),
		UserAddress: ev.User.String(),
		GameID:      ev.GameID,
		TokenAmount: ev.TokenAmount,
		Slot:        rec.Slot,
	}

	inserted, err := r.stores.Plays.CreatePlay(ctx, play)
	if err != nil {
		return err
	}
	if !inserted {
		// Replay of a known transaction: state and notifications already
		// happened the first time through.
		return nil
	}

	r.verifyPayment(ctx, ev, rec.Signature)
	return nil
}

// verifyPayment runs the payment check for a freshly inserted play. Any
// gap (unknown game, no verifier, oracle down) leaves the play unverified;
// nothing here can reject a play outright on missing data.
func (r *Reconciler) verifyPayment(ctx context.Context, ev events.GamePlayInitiated, signature string) {
	if r.payments == nil {
		return
	}

	game, err := r.getOrFetchGame(ctx, ev.GameID)
	if err != nil || game == nil || game.TokenMint == "" {
		r.logger.Warn("cannot verify payment without game data",
			"signature", signature,
			"game_id", ev.GameID,
			"error", err,
		)
		return
	}

	mint, err := solana.PublicKeyFromBase58(game.TokenMint)
	if err != nil {
		r.logger.Warn("game has malformed token mint",
			"game_id", ev.GameID,
			"token_mint", game.TokenMint,
		)
		return
	}

	res := r.payments.Verify(ctx, mint, ev.TokenAmount, game.CostUSDCents, time.Unix(ev.Timestamp, 0))
	if res.Verdict == verify.VerdictPending {
		return
	}

	verified := res.Verdict == verify.VerdictAccepted
	if err := r.stores.Plays.SetPaymentResult(ctx, signature, verified, res.ActualUSD.String()); err != nil {
		r.logger.Error("persist payment result failed",
			"signature", signature,
			"error", err,
		)
		return
	}

	reason := fmt.Sprintf("payment of $%s covers the $%s cost", res.ActualUSD, res.ExpectedUSD)
	if !verified {
		reason = fmt.Sprintf("payment of $%s falls short of the $%s cost", res.ActualUSD, res.ExpectedUSD)
		// A rejected payment is terminal: the play fails now, and a later
		// winning resolution for this session will be refused.
		if _, err := r.stores.Plays.MarkFailed(ctx, ev.Session.String()); err != nil {
			r.logger.Error("fail play after rejected payment failed",
				"session", ev.Session.String(),
				"error", err,
			)
		}
	}

	msg := notify.NewMessage(notify.KindPaymentVerified, signature)
	msg.Verified = &verified
	msg.ActualUSD = res.ActualUSD.String()
	msg.Reason = reason
	if err := r.notifier.Publish(ctx, msg); err != nil {
		r.logger.Warn("payment notification failed",
			"signature", signature,
			"error", err,
		)
	}
}

func (r *Reconciler) handleSupplyReplenished(ctx context.Context, ev events.SupplyReplenished) error {
	prize, err := r.stores.Prizes.GetPrize(ctx, ev.GameID, ev.PrizeID)
	if err != nil {
		return err
	}
	if prize == nil {
		r.logger.Warn("replenishment for unknown prize",
			"game_id", ev.GameID,
			"prize_id", ev.PrizeID,
		)
		return nil
	}

	if err := r.stores.Prizes.SetSupply(ctx, ev.GameID, ev.PrizeID, ev.NewSupply); err != nil {
		return err
	}

	delta := int32(ev.NewSupply) - int32(prize.SupplyRemaining)
	if delta != 0 {
		return r.stores.Games.AdjustTotalSupply(ctx, ev.GameID, delta)
	}
	return nil
}

func (r *Reconciler) handlePlayResolved(ctx context.Context, ev events.PlayResolved) (Effect, error) {
	session := ev.Session.String()

	var tier *uint8
	if ev.Tier != nil {
		t := uint8(*ev.Tier)
		tier = &t
	}

	applied, err := r.stores.Plays.ResolvePlay(ctx, session,
		ev.IsWin, ev.PrizeID, ev.PrizeIndex, tier,
		fmt.Sprintf("%x", ev.RandomValue),
		time.Unix(ev.Timestamp, 0),
	)
	if err != nil {
		return Effect{}, err
	}

	if !applied {
		play, err := r.stores.Plays.GetBySession(ctx, session)
		if err != nil {
			return Effect{}, err
		}
		if play != nil {
			if play.State == storage.PlayFailed && ev.IsWin {
				// The payment was rejected before the resolution landed.
				// The win is refused: no prize, no counter movement.
				r.logger.Warn("winning resolution refused for failed play",
					"session", session,
					"signature", play.Signature,
					"game_id", ev.GameID,
				)
				refused := false
				msg := notify.NewMessage(notify.KindPaymentVerified, play.Signature)
				msg.Verified = &refused
				msg.Reason = "prize award refused: the payment for this play was rejected"
				if err := r.notifier.Publish(ctx, msg); err != nil {
					r.logger.Warn("refusal notification failed",
						"signature", play.Signature,
						"error", err,
					)
				}
				return Effect{}, nil
			}
			// Already terminal: a replay, or a resolution racing a
			// failure. A failed play never becomes completed.
			r.logger.Debug("resolution for non-pending play skipped",
				"session", session,
				"state", string(play.State),
			)
			return Effect{}, nil
		}
		// No row: the initiation was missed, likely a gap before this
		// indexer started. Counters still move, the play record is gone.
		r.logger.Warn("resolution for unknown play, applying counters only",
			"session", session,
			"game_id", ev.GameID,
		)
	}

	if err := r.stores.Games.IncrementTotalPlays(ctx, ev.GameID); err != nil {
		return Effect{}, err
	}
	if ev.IsWin && ev.PrizeID != nil {
		if err := r.stores.Prizes.DecrementSupply(ctx, ev.GameID, *ev.PrizeID); err != nil {
			return Effect{}, err
		}
		if err := r.stores.Games.AdjustTotalSupply(ctx, ev.GameID, -1); err != nil {
			return Effect{}, err
		}
	}

	if !applied {
		return Effect{}, nil
	}
	return Effect{FinalizeSession: session}, nil
}

func (r *Reconciler) handlePrizeClaimed(ctx context.Context, ev events.PrizeClaimed) (Effect, error) {
	session := ev.Session.String()
	mint := ev.NFTMint.String()
	user := ev.User.String()

	play, err := r.stores.Plays.GetBySession(ctx, session)
	if err != nil {
		return Effect{}, err
	}
	if play == nil {
		// Claim without a tracked session: attach to the user's most
		// recent unclaimed win instead of dropping the NFT.
		play, err = r.stores.Plays.LatestWinWithoutMint(ctx, user, ev.GameID)
		if err != nil {
			return Effect{}, err
		}
	}

	var effect Effect
	if play != nil {
		if _, err := r.stores.Plays.AttachMint(ctx, play.Session, mint); err != nil {
			return Effect{}, err
		}
		effect.FinalizeSession = play.Session
	} else {
		r.logger.Warn("claim with no matching play",
			"session", session,
			"user", user,
			"nft_mint", mint,
		)
	}

	nft := &storage.NFT{
		MintAddress: mint,
		GameID:      ev.GameID,
		PrizeID:     ev.PrizeID,
		Owner:       user,
		Tier:        uint8(ev.Tier),
	}
	if prize, err := r.stores.Prizes.GetPrize(ctx, ev.GameID, ev.PrizeID); err == nil && prize != nil {
		nft.MetadataURI = prize.MetadataURI
	}

	if err := r.stores.NFTs.UpsertNFT(ctx, nft); err != nil {
		return Effect{}, err
	}
	if err := r.stores.NFTs.RecordOwnership(ctx, mint, user, storage.OwnershipClaim); err != nil {
		return Effect{}, err
	}

	return effect, nil
}

func (r *Reconciler) handleNFTDelisted(ctx context.Context, ev events.NFTDelisted) error {
	applied, err := r.stores.Listings.Deactivate(ctx, ev.NFTMint.String())
	if err != nil {
		return err
	}
	if !applied {
		r.logger.Debug("delist for inactive listing skipped", "nft_mint", ev.NFTMint.String())
	}
	return nil
}

func (r *Reconciler) handleNFTSold(ctx context.Context, ev events.NFTSold) error {
	mint := ev.NFTMint.String()
	buyer := ev.Buyer.String()

	applied, err := r.stores.Listings.MarkSold(ctx, mint, buyer, ev.Price, ev.Fee, time.Unix(ev.Timestamp, 0))
	if err != nil {
		return err
	}
	if !applied {
		// Replay, or a sale for a listing this indexer never saw open.
		r.logger.Debug("sale for inactive listing skipped", "nft_mint", mint)
		return nil
	}

	if err := r.stores.NFTs.TransferOwner(ctx, mint, buyer); err != nil {
		return err
	}
	return r.stores.NFTs.RecordOwnership(ctx, mint, buyer, storage.OwnershipPurchase)
}

func (r *Reconciler) handlePriceUpdated(ctx context.Context, ev events.PriceUpdated) error {
	applied, err := r.stores.Listings.UpdatePrice(ctx, ev.NFTMint.String(), ev.NewPrice)
	if err != nil {
		return err
	}
	if !applied {
		r.logger.Debug("price update for inactive listing skipped",
			"nft_mint", ev.NFTMint.String(),
		)
	}
	return nil
}

// NotifyFinalized publishes the terminal play update for a session. The
// caller dedupes sessions within a transaction so subscribers see exactly
// one finalized message per transaction.
func (r *Reconciler) NotifyFinalized(ctx context.Context, session string) {
	play, err := r.stores.Plays.GetBySession(ctx, session)
	if err != nil || play == nil {
		r.logger.Warn("cannot build finalized notification",
			"session", session,
			"error", err,
		)
		return
	}

	msg := notify.NewMessage(notify.KindFinalized, play.Signature)
	msg.State = string(play.State)
	msg.IsWin = &play.IsWin
	msg.PrizeID = play.PrizeID
	if play.NFTMint != nil {
		msg.NFTMint = *play.NFTMint
	}

	if err := r.notifier.Publish(ctx, msg); err != nil {
		r.logger.Warn("finalized notification failed",
			"signature", play.Signature,
			"error", err,
		)
	}
}

func (r *Reconciler) getOrFetchGame(ctx context.Context, gameID uint64) (*storage.Game, error) {
	game, err := r.stores.Games.GetGame(ctx, gameID)
	if err != nil || game != nil {
		return game, err
	}
	if r.chain == nil {
		return nil, nil
	}

	acct, err := r.chain.FetchGame(ctx, gameID)
	if err != nil || acct == nil {
		return nil, err
	}

	game = &storage.Game{
		GameID:               acct.GameID,
		Authority:            acct.Authority.String(),
		Name:                 acct.Name,
		Description:          acct.Description,
		ImageURL:             acct.ImageURL,
		TokenMint:            acct.TokenMint.String(),
		CostUSDCents:         acct.CostUSD,
		Treasury:             acct.Treasury.String(),
		TotalSupplyRemaining: acct.TotalSupplyRemaining,
		TotalPlays:           acct.TotalPlays,
		IsActive:             acct.IsActive,
	}
	if pda, err := r.chain.GamePDA(gameID); err == nil {
		game.Address = pda.String()
	}

	if err := r.stores.Games.UpsertGame(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}
