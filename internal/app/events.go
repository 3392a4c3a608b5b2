package app

import (
	"sort"

	abci "github.com/cometbft/cometbft/abci/types"
)

// Event types consumed by off-chain collaborators (audit log).
const (
	EventTypeTableCreated      = "TableCreated"
	EventTypeTableOpenSet      = "TableOpenSet"
	EventTypeFundsDeposited    = "FundsDeposited"
	EventTypeFundsWithdrawn    = "FundsWithdrawn"
	EventTypeSettlementApplied = "SettlementApplied"
	EventTypeResidualSwept     = "ResidualSwept"

	EventTypeBankMinted        = "BankMinted"
	EventTypeBankSent          = "BankSent"
	EventTypeAccountRegistered = "AccountRegistered"
)

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
