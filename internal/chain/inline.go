package chain

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ParseInline normalizes an inline transaction notification into the same
// EnrichedTransaction shape the RPC fetch path produces, so downstream code
// never sees the provider-specific encoding. Account keys arrive either as
// plain strings or as {pubkey: ...} objects depending on the provider's
// parsed encoding; both are accepted.
func ParseInline(raw json.RawMessage, signature string, slot uint64) (*EnrichedTransaction, error) {
	var payload struct {
		Meta *struct {
			Err         any      `json:"err"`
			LogMessages []string `json:"logMessages"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys  []json.RawMessage `json:"accountKeys"`
				Instructions []struct {
					ProgramIDIndex uint16   `json:"programIdIndex"`
					Accounts       []uint16 `json:"accounts"`
					Data           string   `json:"data"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse inline transaction %s: %w", signature, err)
	}
	if payload.Meta == nil {
		return nil, fmt.Errorf("inline transaction %s has no meta", signature)
	}

	enriched := &EnrichedTransaction{
		Signature: signature,
		Slot:      slot,
		Logs:      payload.Meta.LogMessages,
		Failed:    payload.Meta.Err != nil,
	}
	if enriched.Failed {
		return enriched, nil
	}

	for i, rawKey := range payload.Transaction.Message.AccountKeys {
		key, err := parseAccountKey(rawKey)
		if err != nil {
			return nil, fmt.Errorf("inline transaction %s account key %d: %w", signature, i, err)
		}
		enriched.AccountKeys = append(enriched.AccountKeys, key)
	}

	for _, ix := range payload.Transaction.Message.Instructions {
		data, err := base58.Decode(ix.Data)
		if err != nil {
			// Instruction data is informational here; events come from
			// logs. Keep the instruction with empty data.
			data = nil
		}
		inst := Instruction{
			AccountIndices: ix.Accounts,
			Data:           data,
		}
		if int(ix.ProgramIDIndex) < len(enriched.AccountKeys) {
			inst.ProgramID = enriched.AccountKeys[ix.ProgramIDIndex]
		}
		enriched.Instructions = append(enriched.Instructions, inst)
	}

	return enriched, nil
}

func parseAccountKey(raw json.RawMessage) (solana.PublicKey, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return solana.PublicKeyFromBase58(s)
	}

	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return solana.PublicKey{}, fmt.Errorf("unrecognized account key encoding")
	}
	return solana.PublicKeyFromBase58(obj.Pubkey)
}
