package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/gachalabs/indexer/internal/chain"
	"github.com/gachalabs/indexer/internal/notify"
	"github.com/gachalabs/indexer/internal/storage"
	"github.com/gachalabs/indexer/internal/verify"
)

// In-memory stores mirroring the SQL guards: upsert semantics, supply
// floors, and pending-only state transitions.

type fakeGameStore struct {
	games  map[uint64]*storage.Game
	prizes *fakePrizeStore
}

func newFakeGameStore(prizes *fakePrizeStore) *fakeGameStore {
	return &fakeGameStore{games: make(map[uint64]*storage.Game), prizes: prizes}
}

func (s *fakeGameStore) UpsertGame(_ context.Context, g *storage.Game) error {
	cp := *g
	if old, ok := s.games[g.GameID]; ok {
		cp.TotalPlays = old.TotalPlays
		cp.TotalSupplyRemaining = old.TotalSupplyRemaining
	}
	s.games[g.GameID] = &cp
	return nil
}

func (s *fakeGameStore) CreateGameWithPrizes(ctx context.Context, g *storage.Game, prizes []*storage.Prize) error {
	if err := s.UpsertGame(ctx, g); err != nil {
		return err
	}
	for _, p := range prizes {
		if existing, _ := s.prizes.GetPrize(ctx, p.GameID, p.PrizeID); existing != nil {
			continue
		}
		if err := s.prizes.UpsertPrize(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeGameStore) GetGame(_ context.Context, gameID uint64) (*storage.Game, error) {
	g, ok := s.games[gameID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *fakeGameStore) SetGameActive(_ context.Context, gameID uint64, active bool) error {
	if g, ok := s.games[gameID]; ok {
		g.IsActive = active
	}
	return nil
}

func (s *fakeGameStore) IncrementTotalPlays(_ context.Context, gameID uint64) error {
	if g, ok := s.games[gameID]; ok {
		g.TotalPlays++
	}
	return nil
}

func (s *fakeGameStore) AdjustTotalSupply(_ context.Context, gameID uint64, delta int32) error {
	if g, ok := s.games[gameID]; ok {
		next := int64(g.TotalSupplyRemaining) + int64(delta)
		if next < 0 {
			next = 0
		}
		g.TotalSupplyRemaining = uint32(next)
	}
	return nil
}

type prizeKey struct {
	gameID  uint64
	prizeID uint64
}

type fakePrizeStore struct {
	prizes map[prizeKey]*storage.Prize
}

func newFakePrizeStore() *fakePrizeStore {
	return &fakePrizeStore{prizes: make(map[prizeKey]*storage.Prize)}
}

func (s *fakePrizeStore) UpsertPrize(_ context.Context, p *storage.Prize) error {
	cp := *p
	s.prizes[prizeKey{p.GameID, p.PrizeID}] = &cp
	return nil
}

func (s *fakePrizeStore) GetPrize(_ context.Context, gameID, prizeID uint64) (*storage.Prize, error) {
	p, ok := s.prizes[prizeKey{gameID, prizeID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakePrizeStore) DecrementSupply(_ context.Context, gameID, prizeID uint64) error {
	if p, ok := s.prizes[prizeKey{gameID, prizeID}]; ok && p.SupplyRemaining > 0 {
		p.SupplyRemaining--
	}
	return nil
}

func (s *fakePrizeStore) SetSupply(_ context.Context, gameID, prizeID uint64, remaining uint32) error {
	if p, ok := s.prizes[prizeKey{gameID, prizeID}]; ok {
		p.SupplyRemaining = remaining
		if remaining > p.SupplyTotal {
			p.SupplyTotal = remaining
		}
	}
	return nil
}

type fakePlayStore struct {
	bySig     map[string]*storage.Play
	bySession map[string]*storage.Play
}

func newFakePlayStore() *fakePlayStore {
	return &fakePlayStore{
		bySig:     make(map[string]*storage.Play),
		bySession: make(map[string]*storage.Play),
	}
}

func (s *fakePlayStore) CreatePlay(_ context.Context, p *storage.Play) (bool, error) {
	if _, ok := s.bySig[p.Signature]; ok {
		return false, nil
	}
	cp := *p
	if cp.State == "" {
		cp.State = storage.PlayPending
	}
	cp.CreatedAt = time.Now()
	s.bySig[cp.Signature] = &cp
	s.bySession[cp.Session] = &cp
	return true, nil
}

func (s *fakePlayStore) GetBySession(_ context.Context, session string) (*storage.Play, error) {
	p, ok := s.bySession[session]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakePlayStore) ResolvePlay(_ context.Context, session string, isWin bool, prizeID *uint64, prizeIndex *uint8, tier *uint8, randomValue string, resolvedAt time.Time) (bool, error) {
	p, ok := s.bySession[session]
	if !ok || p.State != storage.PlayPending {
		return false, nil
	}
	if isWin {
		p.State = storage.PlayCompleted
	} else {
		p.State = storage.PlayFailed
	}
	p.IsWin = isWin
	p.PrizeID = prizeID
	p.PrizeIndex = prizeIndex
	p.Tier = tier
	p.RandomValue = randomValue
	p.ResolvedAt = &resolvedAt
	return true, nil
}

func (s *fakePlayStore) MarkFailed(_ context.Context, session string) (bool, error) {
	p, ok := s.bySession[session]
	if !ok || p.State != storage.PlayPending {
		return false, nil
	}
	p.State = storage.PlayFailed
	return true, nil
}

func (s *fakePlayStore) SetPaymentResult(_ context.Context, signature string, verified bool, actualUSD string) error {
	if p, ok := s.bySig[signature]; ok {
		p.PaymentVerified = verified
		p.PaymentUSD = &actualUSD
	}
	return nil
}

func (s *fakePlayStore) AttachMint(_ context.Context, session, mint string) (bool, error) {
	p, ok := s.bySession[session]
	if !ok || p.NFTMint != nil {
		return false, nil
	}
	p.NFTMint = &mint
	return true, nil
}

func (s *fakePlayStore) LatestWinWithoutMint(_ context.Context, user string, gameID uint64) (*storage.Play, error) {
	var latest *storage.Play
	for _, p := range s.bySession {
		if p.UserAddress != user || p.GameID != gameID {
			continue
		}
		if p.State != storage.PlayCompleted || !p.IsWin || p.NFTMint != nil {
			continue
		}
		if latest == nil || (p.ResolvedAt != nil && latest.ResolvedAt != nil && p.ResolvedAt.After(*latest.ResolvedAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

type fakeNFTStore struct {
	nfts       map[string]*storage.NFT
	ownerships map[string]string // mint+owner -> source
}

func newFakeNFTStore() *fakeNFTStore {
	return &fakeNFTStore{
		nfts:       make(map[string]*storage.NFT),
		ownerships: make(map[string]string),
	}
}

func (s *fakeNFTStore) UpsertNFT(_ context.Context, n *storage.NFT) error {
	if old, ok := s.nfts[n.MintAddress]; ok {
		old.Owner = n.Owner
		old.MetadataURI = n.MetadataURI
		return nil
	}
	cp := *n
	s.nfts[n.MintAddress] = &cp
	return nil
}

func (s *fakeNFTStore) TransferOwner(_ context.Context, mint, owner string) error {
	if n, ok := s.nfts[mint]; ok {
		n.Owner = owner
	}
	return nil
}

func (s *fakeNFTStore) RecordOwnership(_ context.Context, mint, owner, source string) error {
	s.ownerships[mint+"|"+owner] = source
	return nil
}

type fakeListingStore struct {
	listings map[string]*storage.Listing
}

func newFakeListingStore() *fakeListingStore {
	return &fakeListingStore{listings: make(map[string]*storage.Listing)}
}

func (s *fakeListingStore) UpsertListing(_ context.Context, mint, seller string, priceLamports uint64) error {
	s.listings[mint] = &storage.Listing{
		NFTMint:       mint,
		Seller:        seller,
		PriceLamports: priceLamports,
		IsActive:      true,
	}
	return nil
}

func (s *fakeListingStore) Deactivate(_ context.Context, mint string) (bool, error) {
	l, ok := s.listings[mint]
	if !ok || !l.IsActive {
		return false, nil
	}
	l.IsActive = false
	return true, nil
}

func (s *fakeListingStore) MarkSold(_ context.Context, mint, buyer string, priceLamports, feeLamports uint64, at time.Time) (bool, error) {
	l, ok := s.listings[mint]
	if !ok || !l.IsActive {
		return false, nil
	}
	l.IsActive = false
	l.Buyer = &buyer
	l.SoldPriceLamports = &priceLamports
	l.FeeLamports = &feeLamports
	l.SoldAt = &at
	return true, nil
}

func (s *fakeListingStore) UpdatePrice(_ context.Context, mint string, priceLamports uint64) (bool, error) {
	l, ok := s.listings[mint]
	if !ok || !l.IsActive {
		return false, nil
	}
	l.PriceLamports = priceLamports
	return true, nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *captureNotifier) Publish(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *captureNotifier) Close() error { return nil }

func (n *captureNotifier) byKind(kind string) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fixedPayments struct {
	result verify.Result
}

func (f *fixedPayments) Verify(context.Context, solana.PublicKey, uint64, uint64, time.Time) verify.Result {
	return f.result
}

type fakeChain struct {
	game   *chain.GameAccount
	prizes map[uint8]*chain.PrizeAccount
}

func (c *fakeChain) FetchGame(_ context.Context, gameID uint64) (*chain.GameAccount, error) {
	if c.game == nil || c.game.GameID != gameID {
		return nil, nil
	}
	cp := *c.game
	return &cp, nil
}

func (c *fakeChain) FetchPrize(_ context.Context, _ solana.PublicKey, index uint8) (*chain.PrizeAccount, error) {
	p, ok := c.prizes[index]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (c *fakeChain) GamePDA(uint64) (solana.PublicKey, error) {
	return testKey(0xFD), nil
}
