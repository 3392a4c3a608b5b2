package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"escrowledger/internal/codec"
	"escrowledger/internal/eslcrypto"
	"escrowledger/internal/state"
)

func lookupTable(st *state.State, rawID string) (*state.Table, string, error) {
	idBytes, err := eslcrypto.ParseID32(rawID)
	if err != nil {
		return nil, "", ErrInvalidRequest.Wrapf("tableId: %v", err)
	}
	id := eslcrypto.IDString(idBytes)
	t := st.Tables[id]
	if t == nil {
		return nil, "", ErrTableNotFound.Wrap(id)
	}
	return t, id, nil
}

func createTable(st *state.State, msg codec.EscrowCreateTableTx) (*abci.ExecTxResult, error) {
	idBytes, err := eslcrypto.ParseID32(msg.TableID)
	if err != nil {
		return nil, ErrInvalidRange.Wrapf("tableId: %v", err)
	}
	id := eslcrypto.IDString(idBytes)

	if msg.MinBuyIn == 0 || msg.MaxBuyIn < msg.MinBuyIn {
		return nil, ErrInvalidRange.Wrapf("buy-in range [%d, %d]", msg.MinBuyIn, msg.MaxBuyIn)
	}
	if msg.FeeRateBps > 10_000 {
		return nil, ErrInvalidRange.Wrapf("feeRateBps %d exceeds 10000", msg.FeeRateBps)
	}
	if st.Tables[id] != nil {
		return nil, ErrInvalidRange.Wrapf("table %s already exists", id)
	}

	asset := msg.Asset
	if asset == "" {
		asset = state.NativeAsset
	}

	st.Tables[id] = &state.Table{
		ID:           id,
		Asset:        asset,
		MinBuyIn:     msg.MinBuyIn,
		MaxBuyIn:     msg.MaxBuyIn,
		FeeRateBps:   msg.FeeRateBps,
		FeeCap:       msg.FeeCap,
		FeeRecipient: msg.FeeRecipient,
		Open:         true,
		Balances:     map[string]uint64{},
	}

	return okEvent(EventTypeTableCreated, map[string]string{
		"tableId":    id,
		"asset":      asset,
		"minBuyIn":   fmt.Sprintf("%d", msg.MinBuyIn),
		"maxBuyIn":   fmt.Sprintf("%d", msg.MaxBuyIn),
		"feeRateBps": fmt.Sprintf("%d", msg.FeeRateBps),
		"feeCap":     fmt.Sprintf("%d", msg.FeeCap),
	}), nil
}

func setTableOpen(st *state.State, msg codec.EscrowSetOpenTx) (*abci.ExecTxResult, error) {
	t, id, err := lookupTable(st, msg.TableID)
	if err != nil {
		return nil, err
	}
	t.Open = msg.Open
	return okEvent(EventTypeTableOpenSet, map[string]string{
		"tableId": id,
		"open":    fmt.Sprintf("%t", msg.Open),
	}), nil
}

func deposit(st *state.State, msg codec.EscrowDepositTx) (*abci.ExecTxResult, error) {
	t, id, err := lookupTable(st, msg.TableID)
	if err != nil {
		return nil, err
	}
	if !t.Open {
		return nil, ErrTableClosed.Wrap(id)
	}
	if t.Asset != state.NativeAsset {
		return nil, ErrInvalidAmount.Wrapf("unsupported asset %q: only %q deposits are accepted", t.Asset, state.NativeAsset)
	}
	if msg.Amount < t.MinBuyIn || msg.Amount > t.MaxBuyIn {
		return nil, ErrInvalidAmount.Wrapf("amount %d outside buy-in range [%d, %d]", msg.Amount, t.MinBuyIn, t.MaxBuyIn)
	}

	// Funds must land in the custody pool before the escrow balance is
	// credited: no credit without real funds received.
	if err := st.Debit(msg.Player, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}
	if err := st.Credit(poolAccount, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}
	if err := t.EscrowCredit(msg.Player, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}

	return okEvent(EventTypeFundsDeposited, map[string]string{
		"tableId": id,
		"account": msg.Player,
		"amount":  fmt.Sprintf("%d", msg.Amount),
		"balance": fmt.Sprintf("%d", t.EscrowBalance(msg.Player)),
	}), nil
}

func withdraw(st *state.State, msg codec.EscrowWithdrawTx) (*abci.ExecTxResult, error) {
	t, id, err := lookupTable(st, msg.TableID)
	if err != nil {
		return nil, err
	}
	// Withdrawals remain available on closed tables: closing stops new
	// buy-ins, not fund recovery.
	if t.EscrowBalance(msg.Player) < msg.Amount {
		return nil, ErrNotEnough.Wrapf("have=%d need=%d", t.EscrowBalance(msg.Player), msg.Amount)
	}

	// Escrow mutation is committed before the outbound transfer so a
	// re-entrant recipient can never observe a stale balance.
	if err := t.EscrowDebit(msg.Player, msg.Amount); err != nil {
		return nil, ErrNotEnough.Wrap(err.Error())
	}
	if err := st.Debit(poolAccount, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}
	if err := st.Credit(msg.Player, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}

	return okEvent(EventTypeFundsWithdrawn, map[string]string{
		"tableId": id,
		"account": msg.Player,
		"amount":  fmt.Sprintf("%d", msg.Amount),
		"balance": fmt.Sprintf("%d", t.EscrowBalance(msg.Player)),
	}), nil
}

// sweep moves the custody pool residual (funds held by the pool account but
// no longer tracked by any escrow balance, such as settlement split
// remainders) to an administrator-chosen destination. Outside normal
// settlement accounting.
func sweep(st *state.State, msg codec.EscrowSweepTx) (*abci.ExecTxResult, error) {
	if msg.To == "" {
		return nil, ErrInvalidRequest.Wrap("missing destination")
	}

	pool := st.Balance(poolAccount)
	tracked := st.TotalEscrowed()
	var residual uint64
	if pool > tracked {
		residual = pool - tracked
	}
	if residual > 0 {
		if err := st.Debit(poolAccount, residual); err != nil {
			return nil, ErrTransferFailed.Wrap(err.Error())
		}
		if err := st.Credit(msg.To, residual); err != nil {
			return nil, ErrTransferFailed.Wrap(err.Error())
		}
	}

	return okEvent(EventTypeResidualSwept, map[string]string{
		"to":     msg.To,
		"amount": fmt.Sprintf("%d", residual),
	}), nil
}
