package codec

import (
	"encoding/json"
	"testing"
)

func TestDecodeTxEnvelope_OK(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"type":  "bank/mint",
		"value": map[string]any{"to": "alice", "amount": 123},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Type != "bank/mint" {
		t.Fatalf("unexpected type: %q", env.Type)
	}

	var v map[string]any
	if err := json.Unmarshal(env.Value, &v); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if v["to"] != "alice" {
		t.Fatalf("unexpected value.to: %#v", v["to"])
	}
}

func TestDecodeTxEnvelope_CarriesAuthFields(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"type":   "escrow/deposit",
		"nonce":  "7",
		"signer": "alice",
		"sig":    []byte{1, 2, 3},
		"value":  map[string]any{"player": "alice", "tableId": "0xabc", "amount": 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Nonce != "7" || env.Signer != "alice" || len(env.Sig) != 3 {
		t.Fatalf("auth fields not decoded: %+v", env)
	}
}

func TestDecodeTxEnvelope_SettleValueRoundTrip(t *testing.T) {
	msg := EscrowSettleTx{
		Submitter:    "alice",
		TableID:      "0x" + "11",
		SettlementID: "0x" + "22",
		Recipients:   []string{"bob", "carol"},
		Amounts:      []uint64{40, 50},
		Signers:      []string{"alice", "bob"},
		Sigs:         [][]byte{{1}, {2}},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got EscrowSettleTx
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Recipients) != 2 || got.Amounts[1] != 50 || got.Signers[0] != "alice" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestDecodeTxEnvelope_MissingType(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"value": map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeTxEnvelope(b)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeTxEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeTxEnvelope([]byte("{not json"))
	if err == nil {
		t.Fatalf("expected error")
	}
}
