package events

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/mr-tron/base58"
)

// programDataMarker prefixes log lines that carry an embedded event payload.
const programDataMarker = "Program data: "

// Decoder turns transaction log lines into typed event records. It holds no
// state beyond a logger; decoding is deterministic for a given input.
type Decoder struct {
	logger *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger.With("component", "event-decoder")}
}

// Decode scans the log lines of one transaction and returns every event it
// can recover. A decode failure on one line never aborts the others; bad
// lines are logged and skipped. A transaction may yield zero, one, or many
// events.
func (d *Decoder) Decode(logs []string, signature string, slot uint64) []Record {
	var records []Record
	for _, line := range logs {
		idx := strings.Index(line, programDataMarker)
		if idx < 0 {
			continue
		}
		encoded := line[idx+len(programDataMarker):]

		payload, ok := decodePayload(encoded)
		if !ok {
			d.logger.Debug("undecodable event payload",
				"signature", signature,
				"line", line,
			)
			continue
		}
		if len(payload) < discriminatorLen {
			d.logger.Debug("event payload shorter than discriminator",
				"signature", signature,
				"len", len(payload),
			)
			continue
		}

		schema, ok := lookupSchema(payload[:discriminatorLen])
		if !ok {
			// Unknown discriminator: an event type this indexer does not
			// model yet. Skip silently for forward compatibility.
			continue
		}

		ev, err := schema.decode(payload[discriminatorLen:])
		if err != nil {
			d.logger.Warn("event decode failed",
				"event", schema.name,
				"signature", signature,
				"error", err,
			)
			continue
		}

		records = append(records, Record{
			Event:     ev,
			Signature: signature,
			Slot:      slot,
		})
	}
	return records
}

// decodePayload tries base64 first, the encoding the runtime emits, and
// falls back to base58 for providers that re-encode log data.
func decodePayload(encoded string) ([]byte, bool) {
	if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return raw, true
	}
	if raw, err := base58.Decode(encoded); err == nil {
		return raw, true
	}
	return nil, false
}

func lookupSchema(disc []byte) (eventSchema, bool) {
	for _, s := range schemas {
		if bytes.Equal(disc, s.discriminator[:]) {
			return s, true
		}
	}
	return eventSchema{}, false
}
