package app

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	abci "github.com/cometbft/cometbft/abci/types"

	"escrowledger/internal/codec"
	"escrowledger/internal/eslcrypto"
	"escrowledger/internal/state"
)

const settleDomainV1 = "esl/settle/v1"

const feeRateDenomBps = 10_000

// settlementDigest builds the bytes every settlement signer commits to. The
// digest binds the table, the one-time settlement id, the full payout list,
// the chain and the ledger deployment, so an instruction signed for one
// context verifies nowhere else.
func settlementDigest(chainID string, tableID, settlementID []byte, recipients []string, amounts []uint64) ([]byte, error) {
	recipientsHash, err := recipientsDigest(recipients)
	if err != nil {
		return nil, err
	}
	amountsHash, err := amountsDigest(amounts)
	if err != nil {
		return nil, err
	}
	return eslcrypto.Digest(settleDomainV1,
		tableID,
		settlementID,
		recipientsHash,
		amountsHash,
		[]byte(chainID),
		[]byte(LedgerIdentity),
	)
}

func recipientsDigest(recipients []string) ([]byte, error) {
	msgs := make([][]byte, len(recipients))
	for i, r := range recipients {
		msgs[i] = []byte(r)
	}
	return eslcrypto.Digest(settleDomainV1+"/recipients", msgs...)
}

func amountsDigest(amounts []uint64) ([]byte, error) {
	msgs := make([][]byte, len(amounts))
	for i, a := range amounts {
		msgs[i] = eslcrypto.U64LE(a)
	}
	return eslcrypto.Digest(settleDomainV1+"/amounts", msgs...)
}

// settlementFee computes min(total * feeRateBps / 10000, feeCap) without
// intermediate overflow. The fee is charged to the pool in addition to the
// payouts, not deducted from them.
func settlementFee(total sdkmath.Int, feeRateBps uint32, feeCap uint64) uint64 {
	if feeRateBps == 0 {
		return 0
	}
	fee := total.MulRaw(int64(feeRateBps)).QuoRaw(feeRateDenomBps)
	fee = sdkmath.MinInt(fee, sdkmath.NewIntFromUint64(feeCap))
	return fee.Uint64()
}

func settle(st *state.State, msg codec.EscrowSettleTx) (*abci.ExecTxResult, error) {
	t, tableID, err := lookupTable(st, msg.TableID)
	if err != nil {
		return nil, err
	}

	sidBytes, err := eslcrypto.ParseID32(msg.SettlementID)
	if err != nil {
		return nil, ErrInvalidRequest.Wrapf("settlementId: %v", err)
	}
	settlementID := eslcrypto.IDString(sidBytes)

	if len(msg.Recipients) == 0 {
		return nil, ErrInvalidRange.Wrap("empty recipients")
	}
	if len(msg.Recipients) != len(msg.Amounts) {
		return nil, ErrInvalidRange.Wrapf("recipients/amounts length mismatch: %d != %d", len(msg.Recipients), len(msg.Amounts))
	}
	if len(msg.Signers) == 0 {
		return nil, ErrInvalidRange.Wrap("empty signers")
	}
	if len(msg.Signers) != len(msg.Sigs) {
		return nil, ErrInvalidRange.Wrapf("signers/sigs length mismatch: %d != %d", len(msg.Signers), len(msg.Sigs))
	}
	for _, r := range msg.Recipients {
		if r == "" {
			return nil, ErrInvalidRange.Wrap("empty recipient")
		}
	}

	// Consumed-id check runs before any signature work: a replayed id is
	// rejected even when its signatures no longer verify.
	if st.UsedSettlements[settlementID] {
		return nil, ErrAlreadyUsed.Wrap(settlementID)
	}

	tidBytes, err := eslcrypto.ParseID32(tableID)
	if err != nil {
		return nil, ErrInvalidRequest.Wrapf("tableId: %v", err)
	}
	digest, err := settlementDigest(st.ChainID, tidBytes, sidBytes, msg.Recipients, msg.Amounts)
	if err != nil {
		return nil, ErrInvalidRequest.Wrap(err.Error())
	}

	// Positional correspondence: sigs[i] must be signers[i]'s signature over
	// the digest, verified against that account's registered key.
	for i, signer := range msg.Signers {
		pub := st.AccountKeys[signer]
		if len(pub) != ed25519.PublicKeySize {
			return nil, ErrBadSig.Wrapf("signer %d (%q): no registered key", i, signer)
		}
		if len(msg.Sigs[i]) != ed25519.SignatureSize {
			return nil, ErrBadSig.Wrapf("signer %d (%q): invalid signature length %d", i, signer, len(msg.Sigs[i]))
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, msg.Sigs[i]) {
			return nil, ErrBadSig.Wrapf("signer %d (%q)", i, signer)
		}
	}

	st.UsedSettlements[settlementID] = true

	total := sdkmath.ZeroInt()
	for _, a := range msg.Amounts {
		total = total.Add(sdkmath.NewIntFromUint64(a))
	}
	if !total.IsUint64() {
		return nil, ErrInvalidAmount.Wrapf("payout total %s overflows", total)
	}

	// Each authorizing signer is debited an even share of the total; the
	// integer-division remainder is not debited from anyone and stays in the
	// custody pool until swept.
	share := total.QuoRaw(int64(len(msg.Signers))).Uint64()
	for _, signer := range msg.Signers {
		if err := t.EscrowDebit(signer, share); err != nil {
			return nil, ErrNotEnough.Wrapf("signer %q: %v", signer, err)
		}
	}

	fee := uint64(0)
	if t.FeeRecipient != "" {
		fee = settlementFee(total, t.FeeRateBps, t.FeeCap)
	}

	// Outbound transfers run last; any failure here aborts the whole tx,
	// including the consumed-id mark above.
	for i, r := range msg.Recipients {
		if msg.Amounts[i] == 0 {
			continue
		}
		if err := st.Debit(poolAccount, msg.Amounts[i]); err != nil {
			return nil, ErrTransferFailed.Wrapf("payout to %q: %v", r, err)
		}
		if err := st.Credit(r, msg.Amounts[i]); err != nil {
			return nil, ErrTransferFailed.Wrapf("payout to %q: %v", r, err)
		}
	}
	if fee > 0 {
		if err := st.Debit(poolAccount, fee); err != nil {
			return nil, ErrTransferFailed.Wrapf("fee to %q: %v", t.FeeRecipient, err)
		}
		if err := st.Credit(t.FeeRecipient, fee); err != nil {
			return nil, ErrTransferFailed.Wrapf("fee to %q: %v", t.FeeRecipient, err)
		}
	}

	amountStrs := make([]string, len(msg.Amounts))
	for i, a := range msg.Amounts {
		amountStrs[i] = fmt.Sprintf("%d", a)
	}
	return okEvent(EventTypeSettlementApplied, map[string]string{
		"tableId":      tableID,
		"settlementId": settlementID,
		"recipients":   strings.Join(msg.Recipients, ","),
		"amounts":      strings.Join(amountStrs, ","),
		"signers":      strings.Join(msg.Signers, ","),
		"total":        total.String(),
		"share":        fmt.Sprintf("%d", share),
		"fee":          fmt.Sprintf("%d", fee),
	}), nil
}
