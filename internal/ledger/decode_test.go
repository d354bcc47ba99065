package ledger

import (
	"encoding/base64"
	"testing"

	"github.com/stellar/go/xdr"
)

func mustScVal(t *testing.T, aType xdr.ScValType, value any) xdr.ScVal {
	t.Helper()
	val, err := xdr.NewScVal(aType, value)
	if err != nil {
		t.Fatalf("NewScVal: %v", err)
	}
	return val
}

func encodeScVal(t *testing.T, val xdr.ScVal) string {
	t.Helper()
	data, err := val.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func TestDecodeEvent(t *testing.T) {
	nameTopic := encodeScVal(t, mustScVal(t, xdr.ScValTypeScvSymbol, xdr.ScSymbol("xp_awarded")))
	userTopic := encodeScVal(t, mustScVal(t, xdr.ScValTypeScvString, xdr.ScString("player-9")))
	body := encodeScVal(t, mustScVal(t, xdr.ScValTypeScvU64, xdr.Uint64(250)))

	raw := RawEvent{
		Type:       "contract",
		Ledger:     1042,
		ContractID: "CCQM4BGYGVZJP2LYLNXGZ3TQQUUO2UDNM4EOF7LVQL5HG2ZJSTE6R2WZ",
		ID:         "0004475389580595200-0000000003",
		TxHash:     "8f4b2e",
		Topics:     []string{nameTopic, userTopic},
		Value:      body,
	}

	event, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if event.EventName != "xp_awarded" {
		t.Errorf("EventName = %q, want xp_awarded", event.EventName)
	}
	if event.EventIndex != 3 {
		t.Errorf("EventIndex = %d, want 3", event.EventIndex)
	}
	if event.LedgerSeq != 1042 {
		t.Errorf("LedgerSeq = %d, want 1042", event.LedgerSeq)
	}
	if len(event.Topics) != 2 || event.Topics[0] != "xp_awarded" || event.Topics[1] != "player-9" {
		t.Errorf("Topics = %v", event.Topics)
	}
	// Non-map bodies are wrapped under "value"
	if got, ok := event.EventData["value"].(uint64); !ok || got != 250 {
		t.Errorf("EventData = %v", event.EventData)
	}
	if len(event.RawEvent) == 0 {
		t.Error("RawEvent should retain the original payload")
	}
}

func TestDecodeEventNoBody(t *testing.T) {
	nameTopic := encodeScVal(t, mustScVal(t, xdr.ScValTypeScvSymbol, xdr.ScSymbol("acct_registered")))

	event, err := DecodeEvent(RawEvent{
		Ledger: 7,
		ID:     "0000000030064775168-0000000000",
		TxHash: "aa",
		Topics: []string{nameTopic},
	})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if event.EventName != "acct_registered" {
		t.Errorf("EventName = %q", event.EventName)
	}
	if event.EventData != nil {
		t.Errorf("EventData = %v, want nil", event.EventData)
	}
}

func TestDecodeEventUnnamed(t *testing.T) {
	// First topic is numeric, not a symbol: the event decodes but stays unnamed
	numTopic := encodeScVal(t, mustScVal(t, xdr.ScValTypeScvU64, xdr.Uint64(9)))

	event, err := DecodeEvent(RawEvent{
		Ledger: 7,
		ID:     "0000000030064775168-0000000001",
		TxHash: "bb",
		Topics: []string{numTopic},
	})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if event.EventName != "" {
		t.Errorf("EventName = %q, want empty", event.EventName)
	}
}

func TestDecodeEventErrors(t *testing.T) {
	valid := encodeScVal(t, mustScVal(t, xdr.ScValTypeScvSymbol, xdr.ScSymbol("x")))

	tests := []struct {
		name string
		raw  RawEvent
	}{
		{"malformed id", RawEvent{ID: "no-separator-here-", Topics: []string{valid}}},
		{"bad base64 topic", RawEvent{ID: "1-0", Topics: []string{"%%%not-base64%%%"}}},
		{"truncated topic xdr", RawEvent{ID: "1-0", Topics: []string{base64.StdEncoding.EncodeToString([]byte{0x00})}}},
		{"bad body", RawEvent{ID: "1-0", Topics: []string{valid}, Value: "%%%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEvent(tt.raw); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestEventIndexParsing(t *testing.T) {
	raw := RawEvent{ID: "0004475389580595200-0000000012"}
	idx, err := raw.EventIndex()
	if err != nil {
		t.Fatalf("EventIndex: %v", err)
	}
	if idx != 12 {
		t.Errorf("EventIndex = %d, want 12", idx)
	}

	if _, err := (&RawEvent{ID: "noindex"}).EventIndex(); err == nil {
		t.Error("expected error for id without separator")
	}
}
