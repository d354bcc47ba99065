package ledger

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"eventsync/internal/models"

	"github.com/stellar/go/xdr"
)

// DecodeEvent converts a raw RPC event into a LedgerEvent with decoded
// topics and body. The event name is the first topic when it decodes to a
// symbol or string; events without one are routed as unnamed.
func DecodeEvent(raw RawEvent) (*models.LedgerEvent, error) {
	index, err := raw.EventIndex()
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(raw.Topics))
	var eventName string

	for i, topic := range raw.Topics {
		val, err := decodeScVal(topic)
		if err != nil {
			return nil, fmt.Errorf("failed to decode topic %d: %w", i, err)
		}

		topics = append(topics, scValToString(val))

		if i == 0 {
			switch val.Type {
			case xdr.ScValTypeScvSymbol:
				eventName = string(val.MustSym())
			case xdr.ScValTypeScvString:
				eventName = string(val.MustStr())
			}
		}
	}

	var data map[string]any
	if raw.Value != "" {
		val, err := decodeScVal(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event body: %w", err)
		}

		switch body := scValToInterface(val).(type) {
		case map[string]any:
			data = body
		case nil:
			data = nil
		default:
			// Non-map bodies are wrapped so handlers always see an object
			data = map[string]any{"value": body}
		}
	}

	return &models.LedgerEvent{
		TxHash:     raw.TxHash,
		EventIndex: index,
		LedgerSeq:  raw.Ledger,
		ContractID: raw.ContractID,
		EventName:  eventName,
		Topics:     topics,
		EventData:  data,
		RawEvent:   raw.Raw(),
		Status:     models.StatusPending,
	}, nil
}

// decodeScVal parses a base64 XDR ScVal
func decodeScVal(encoded string) (xdr.ScVal, error) {
	var val xdr.ScVal

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return val, fmt.Errorf("invalid base64: %w", err)
	}

	if err := val.UnmarshalBinary(data); err != nil {
		return val, fmt.Errorf("invalid ScVal XDR: %w", err)
	}

	return val, nil
}

// scValToString converts an ScVal to a string representation
func scValToString(val xdr.ScVal) string {
	switch val.Type {
	case xdr.ScValTypeScvBool:
		if val.MustB() {
			return "true"
		}
		return "false"
	case xdr.ScValTypeScvVoid:
		return "void"
	case xdr.ScValTypeScvU32:
		return fmt.Sprintf("%d", val.MustU32())
	case xdr.ScValTypeScvI32:
		return fmt.Sprintf("%d", val.MustI32())
	case xdr.ScValTypeScvU64:
		return fmt.Sprintf("%d", val.MustU64())
	case xdr.ScValTypeScvI64:
		return fmt.Sprintf("%d", val.MustI64())
	case xdr.ScValTypeScvSymbol:
		return string(val.MustSym())
	case xdr.ScValTypeScvString:
		return string(val.MustStr())
	case xdr.ScValTypeScvAddress:
		addr := val.MustAddress()
		str, _ := addr.String()
		return str
	case xdr.ScValTypeScvBytes:
		return hex.EncodeToString(val.MustBytes())
	default:
		return fmt.Sprintf("<%s>", val.Type.String())
	}
}

// scValToInterface converts an ScVal to a Go value for JSON serialization
func scValToInterface(val xdr.ScVal) any {
	switch val.Type {
	case xdr.ScValTypeScvBool:
		return val.MustB()
	case xdr.ScValTypeScvVoid:
		return nil
	case xdr.ScValTypeScvU32:
		return uint32(val.MustU32())
	case xdr.ScValTypeScvI32:
		return int32(val.MustI32())
	case xdr.ScValTypeScvU64:
		return uint64(val.MustU64())
	case xdr.ScValTypeScvI64:
		return int64(val.MustI64())
	case xdr.ScValTypeScvU128:
		// U128 is stored as hi and lo uint64s
		u128 := val.MustU128()
		return map[string]any{
			"hi":  uint64(u128.Hi),
			"lo":  uint64(u128.Lo),
			"hex": fmt.Sprintf("%016x%016x", u128.Hi, u128.Lo),
		}
	case xdr.ScValTypeScvI128:
		// I128 is stored as hi int64 and lo uint64
		i128 := val.MustI128()
		return map[string]any{
			"hi":  int64(i128.Hi),
			"lo":  uint64(i128.Lo),
			"hex": fmt.Sprintf("%016x%016x", i128.Hi, i128.Lo),
		}
	case xdr.ScValTypeScvSymbol:
		return string(val.MustSym())
	case xdr.ScValTypeScvString:
		return string(val.MustStr())
	case xdr.ScValTypeScvAddress:
		addr := val.MustAddress()
		str, _ := addr.String()
		return str
	case xdr.ScValTypeScvBytes:
		return hex.EncodeToString(val.MustBytes())
	case xdr.ScValTypeScvVec:
		vec := *val.MustVec()
		result := make([]any, len(vec))
		for i, element := range vec {
			result[i] = scValToInterface(element)
		}
		return result
	case xdr.ScValTypeScvMap:
		scMap := *val.MustMap()
		result := make(map[string]any)
		for _, entry := range scMap {
			// Keys are typically symbols or strings
			result[scValToString(entry.Key)] = scValToInterface(entry.Val)
		}
		return result
	default:
		return val.Type.String()
	}
}
