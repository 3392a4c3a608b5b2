package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v1 transaction container.
//
// CometBFT transactions are opaque bytes. The ledger uses JSON-encoded txs;
// every state-changing operation is routed by Type and authenticated by the
// envelope signature.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth:
	// - Nonce: included in the signed message for replay protection (numeric,
	//   must strictly increase per signer).
	// - Signer: logical signer account.
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

// Devnet faucet. Unsigned on purpose; disable or gate before any real deploy.
type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth ----

// Account pubkey registration for tx and settlement authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Escrow ----

// Administrator-only. TableID is a caller-supplied opaque 32-byte hex id.
type EscrowCreateTableTx struct {
	Creator      string `json:"creator"`
	TableID      string `json:"tableId"`
	Asset        string `json:"asset,omitempty"` // empty = native chip denom
	MinBuyIn     uint64 `json:"minBuyIn"`
	MaxBuyIn     uint64 `json:"maxBuyIn"`
	FeeRateBps   uint32 `json:"feeRateBps,omitempty"`
	FeeCap       uint64 `json:"feeCap,omitempty"`
	FeeRecipient string `json:"feeRecipient,omitempty"`
}

// Administrator-only. Toggles acceptance of new deposits only; existing
// balances, withdrawals and settlements are unaffected.
type EscrowSetOpenTx struct {
	Caller  string `json:"caller"`
	TableID string `json:"tableId"`
	Open    bool   `json:"open"`
}

type EscrowDepositTx struct {
	Player  string `json:"player"`
	TableID string `json:"tableId"`
	Amount  uint64 `json:"amount"`
}

type EscrowWithdrawTx struct {
	Player  string `json:"player"`
	TableID string `json:"tableId"`
	Amount  uint64 `json:"amount"`
}

// A one-time, multi-signed settlement instruction. Signers and Sigs
// correspond positionally; all signatures cover one canonical digest over
// (tableId, settlementId, recipients, amounts) plus chain and ledger
// identity.
type EscrowSettleTx struct {
	Submitter    string   `json:"submitter"`
	TableID      string   `json:"tableId"`
	SettlementID string   `json:"settlementId"`
	Recipients   []string `json:"recipients"`
	Amounts      []uint64 `json:"amounts"`
	Signers      []string `json:"signers"`
	Sigs         [][]byte `json:"sigs"` // base64 (64 bytes each)
}

// Administrator-only maintenance escape hatch: moves the custody pool
// residual (funds not tracked by any escrow balance) out of the ledger.
type EscrowSweepTx struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}
