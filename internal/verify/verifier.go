// Package verify checks that the tokens paid for a play were worth the
// game's USD cost at play time.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/gachalabs/indexer/internal/oracle"
)

// Verdict is the outcome of a payment check.
type Verdict string

const (
	// VerdictAccepted means the payment covered the cost within tolerance.
	VerdictAccepted Verdict = "accepted"
	// VerdictRejected means the payment fell short.
	VerdictRejected Verdict = "rejected"
	// VerdictPending means the check could not be performed; the play
	// stays unverified rather than being rejected on missing data.
	VerdictPending Verdict = "pending"
)

// Result carries the verdict and the numbers behind it.
type Result struct {
	Verdict     Verdict
	ActualUSD   decimal.Decimal
	ExpectedUSD decimal.Decimal
	// Stale marks a quote older than the configured maximum. It is
	// reported for the record, never used to force acceptance.
	Stale bool
	// Suspicious marks a token whose market cap is below the floor,
	// where a thin market makes the quote easy to move.
	Suspicious bool
}

// QuoteSource supplies token price quotes.
type QuoteSource interface {
	GetQuote(ctx context.Context, mint string) (oracle.Quote, error)
}

// DecimalsSource supplies SPL mint decimals.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
}

// Config holds verification thresholds.
type Config struct {
	// ToleranceBP is the allowed shortfall in basis points. 100 accepts
	// payments down to 99% of the cost.
	ToleranceBP uint32
	// MaxQuoteAge flags quotes older than this as stale.
	MaxQuoteAge time.Duration
	// MinMarketCapUSD flags tokens trading below this market cap.
	MinMarketCapUSD decimal.Decimal
}

// DefaultConfig returns the thresholds used in production.
func DefaultConfig() Config {
	return Config{
		ToleranceBP:     100,
		MaxQuoteAge:     60 * time.Second,
		MinMarketCapUSD: decimal.NewFromInt(100_000),
	}
}

// Verifier prices a play's token payment and compares it to the game cost.
type Verifier struct {
	quotes   QuoteSource
	decimals DecimalsSource
	cfg      Config
	logger   *slog.Logger

	mu            sync.Mutex
	decimalsCache map[solana.PublicKey]uint8
}

func NewVerifier(quotes QuoteSource, decimals DecimalsSource, cfg Config, logger *slog.Logger) *Verifier {
	defaults := DefaultConfig()
	if cfg.ToleranceBP == 0 {
		cfg.ToleranceBP = defaults.ToleranceBP
	}
	if cfg.MaxQuoteAge == 0 {
		cfg.MaxQuoteAge = defaults.MaxQuoteAge
	}
	if cfg.MinMarketCapUSD.IsZero() {
		cfg.MinMarketCapUSD = defaults.MinMarketCapUSD
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Verifier{
		quotes:        quotes,
		decimals:      decimals,
		cfg:           cfg,
		logger:        logger.With("component", "payment-verifier"),
		decimalsCache: make(map[solana.PublicKey]uint8),
	}
}

// Verify prices tokenAmount raw units of the mint and checks the value
// against the game cost in cents. Quote staleness is judged against
// playedAt, the play's on-chain timestamp, not the wall clock at
// verification time. A quote or chain failure yields VerdictPending with
// a nil error: missing data leaves the play unverified, it never rejects
// it.
func (v *Verifier) Verify(ctx context.Context, mint solana.PublicKey, tokenAmount, costUSDCents uint64, playedAt time.Time) Result {
	expected := decimal.NewFromUint64(costUSDCents).Shift(-2)

	quote, err := v.quotes.GetQuote(ctx, mint.String())
	if err != nil {
		v.logger.Warn("quote unavailable, leaving payment pending",
			"mint", mint.String(),
			"error", err,
		)
		return Result{Verdict: VerdictPending, ExpectedUSD: expected}
	}

	dec, err := v.tokenDecimals(ctx, mint)
	if err != nil {
		v.logger.Warn("mint decimals unavailable, leaving payment pending",
			"mint", mint.String(),
			"error", err,
		)
		return Result{Verdict: VerdictPending, ExpectedUSD: expected}
	}

	actual := decimal.NewFromUint64(tokenAmount).Shift(-int32(dec)).Mul(quote.PriceUSD)

	tolerance := decimal.NewFromUint64(10_000 - uint64(v.cfg.ToleranceBP)).Shift(-4)
	threshold := expected.Mul(tolerance)

	res := Result{
		ActualUSD:   actual,
		ExpectedUSD: expected,
	}
	if actual.GreaterThanOrEqual(threshold) {
		res.Verdict = VerdictAccepted
	} else {
		res.Verdict = VerdictRejected
	}

	asOf := playedAt
	if asOf.IsZero() {
		asOf = time.Now()
	}
	if age := quote.Age(asOf); age > v.cfg.MaxQuoteAge {
		res.Stale = true
		v.logger.Warn("quote is stale",
			"mint", mint.String(),
			"age", age,
			"played_at", asOf,
		)
	}
	if !quote.MarketCapUSD.IsZero() && quote.MarketCapUSD.LessThan(v.cfg.MinMarketCapUSD) {
		res.Suspicious = true
		v.logger.Warn("token market cap below floor",
			"mint", mint.String(),
			"market_cap_usd", quote.MarketCapUSD.String(),
		)
	}

	return res
}

func (v *Verifier) tokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	v.mu.Lock()
	dec, ok := v.decimalsCache[mint]
	v.mu.Unlock()
	if ok {
		return dec, nil
	}

	dec, err := v.decimals.TokenDecimals(ctx, mint)
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	v.decimalsCache[mint] = dec
	v.mu.Unlock()

	return dec, nil
}
