package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client wraps the RPC endpoint with the fixed commitment level this
// indexer operates at.
type Client struct {
	rpc         *rpc.Client
	gameProgram solana.PublicKey
	logger      *slog.Logger
}

func NewClient(endpoint string, gameProgram solana.PublicKey, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:         rpc.New(endpoint),
		gameProgram: gameProgram,
		logger:      logger.With("component", "chain-client"),
	}
}

// EnrichTransaction fetches the confirmed transaction for a signature and
// flattens it into the normalized shape. "Not found" is terminal for the
// signature: it is logged and (nil, nil) is returned, never retried here.
// A transaction that executed with an error comes back with Failed set so
// the dispatcher can drop it.
func (c *Client) EnrichTransaction(ctx context.Context, signature string) (*EnrichedTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("parse signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			c.logger.Warn("transaction not found", "signature", signature)
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if out == nil || out.Meta == nil {
		c.logger.Warn("transaction missing metadata", "signature", signature)
		return nil, nil
	}

	enriched := &EnrichedTransaction{
		Signature: signature,
		Slot:      out.Slot,
		Logs:      out.Meta.LogMessages,
		Failed:    out.Meta.Err != nil,
	}
	if enriched.Failed {
		c.logger.Info("transaction failed on-chain",
			"signature", signature,
			"error", fmt.Sprint(out.Meta.Err),
		)
		return enriched, nil
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}

	// Flatten account keys for both legacy and versioned encodings: static
	// keys first, then the addresses a v0 transaction loaded from lookup
	// tables, in the order the runtime indexes them.
	enriched.AccountKeys = append(enriched.AccountKeys, tx.Message.AccountKeys...)
	enriched.AccountKeys = append(enriched.AccountKeys, out.Meta.LoadedAddresses.Writable...)
	enriched.AccountKeys = append(enriched.AccountKeys, out.Meta.LoadedAddresses.ReadOnly...)

	for _, ix := range tx.Message.Instructions {
		inst := Instruction{
			AccountIndices: ix.Accounts,
			Data:           ix.Data,
		}
		if int(ix.ProgramIDIndex) < len(enriched.AccountKeys) {
			inst.ProgramID = enriched.AccountKeys[ix.ProgramIDIndex]
		}
		enriched.Instructions = append(enriched.Instructions, inst)
	}

	return enriched, nil
}

// FetchGame reads and decodes the game account for a game id, deriving the
// PDA the same way the program does.
func (c *Client) FetchGame(ctx context.Context, gameID uint64) (*GameAccount, error) {
	pda, err := c.GamePDA(gameID)
	if err != nil {
		return nil, err
	}

	data, err := c.fetchAccountData(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("fetch game %d: %w", gameID, err)
	}
	if data == nil {
		return nil, nil
	}
	return decodeGameAccount(data)
}

// FetchPrize reads and decodes one prize account by game PDA and index.
func (c *Client) FetchPrize(ctx context.Context, game solana.PublicKey, index uint8) (*PrizeAccount, error) {
	seeds := [][]byte{[]byte("prize"), game.Bytes(), {index}}
	pda, _, err := solana.FindProgramAddress(seeds, c.gameProgram)
	if err != nil {
		return nil, fmt.Errorf("derive prize pda: %w", err)
	}

	data, err := c.fetchAccountData(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("fetch prize %d of %s: %w", index, game, err)
	}
	if data == nil {
		return nil, nil
	}
	return decodePrizeAccount(data)
}

// GamePDA derives the game account address from its numeric id.
func (c *Client) GamePDA(gameID uint64) (solana.PublicKey, error) {
	var idBytes [8]byte
	binary.LittleEndian.PutUint64(idBytes[:], gameID)
	pda, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("game"), idBytes[:]},
		c.gameProgram,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive game pda: %w", err)
	}
	return pda, nil
}

// TokenDecimals reads the decimals byte of an SPL mint account.
func (c *Client) TokenDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	data, err := c.fetchAccountData(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if data == nil {
		return 0, fmt.Errorf("mint %s not found", mint)
	}
	// Decimals sits at offset 44 of the SPL mint layout.
	if len(data) <= mintDecimalsOffset {
		return 0, fmt.Errorf("mint %s data too short: %d bytes", mint, len(data))
	}
	return data[mintDecimalsOffset], nil
}

const mintDecimalsOffset = 44

func (c *Client) fetchAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, nil
	}
	return res.Value.Data.GetBinary(), nil
}
