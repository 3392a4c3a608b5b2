package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"escrowledger/internal/codec"
	"escrowledger/internal/state"
)

const (
	AppVersion uint64 = 1

	// LedgerIdentity is bound into every settlement digest so signatures
	// cannot be replayed against a different deployment of this ledger.
	LedgerIdentity = "escrowledger/v1"

	// poolAccount custodies all escrowed funds. Deposits move funds into it,
	// withdrawals and settlement payouts move funds out of it.
	poolAccount = "esl/pool"
)

// genesisDoc is the app_state accepted at InitChain.
type genesisDoc struct {
	Admin    string            `json:"admin"`
	Accounts map[string]uint64 `json:"accounts,omitempty"`
}

type App struct {
	*abci.BaseApplication

	home   string
	logger log.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, logger log.Logger) (*App, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &App{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          logger,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *App) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "escrow settlement ledger",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *App) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	// Structural validation only; auth and semantics run at FinalizeBlock.
	if _, err := codec.DecodeTxEnvelope(req.Tx); err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *App) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.ChainID = req.ChainId

	if len(req.AppStateBytes) > 0 {
		var gen genesisDoc
		if err := json.Unmarshal(req.AppStateBytes, &gen); err != nil {
			return nil, ErrInvalidRequest.Wrapf("invalid genesis app_state: %v", err)
		}
		a.st.Admin = gen.Admin
		for addr, amount := range gen.Accounts {
			if err := a.st.Credit(addr, amount); err != nil {
				return nil, ErrInvalidRequest.Wrapf("genesis account %q: %v", addr, err)
			}
		}
	}

	a.lastHash = a.st.AppHash()
	a.logger.Info("chain initialized", "chain_id", req.ChainId, "admin", a.st.Admin)
	return &abci.InitChainResponse{AppHash: a.lastHash}, nil
}

func (a *App) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		txResults = append(txResults, a.deliverTx(txBytes))
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

// deliverTx runs one tx against a staged clone of state and swaps the clone
// in only on success. Every operation is therefore all-or-nothing: a late
// failure (for example a payout transfer after the replay-guard mark) unwinds
// everything, including the mark and any consumed nonce.
func (a *App) deliverTx(txBytes []byte) *abci.ExecTxResult {
	work, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	res := a.execTx(work, txBytes)
	if res.Code == 0 {
		a.st = work
	}
	return res
}

func (a *App) execTx(st *state.State, txBytes []byte) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	res, err := a.routeTx(st, env)
	if err != nil {
		space, code, logMsg := errorsmod.ABCIInfo(err, false)
		a.logger.Debug("tx rejected", "type", env.Type, "err", err)
		return &abci.ExecTxResult{Code: code, Codespace: space, Log: logMsg}
	}
	return res
}

func (a *App) routeTx(st *state.State, env codec.TxEnvelope) (*abci.ExecTxResult, error) {
	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad bank/mint value")
		}
		return bankMint(st, msg)

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad bank/send value")
		}
		if err := requireAccountAuth(st, env, msg.From); err != nil {
			return nil, err
		}
		return bankSend(st, msg)

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad auth/register_account value")
		}
		if err := requireRegisterAccountAuth(st, env, msg); err != nil {
			return nil, err
		}
		return registerAccount(st, msg)

	case "escrow/create_table":
		var msg codec.EscrowCreateTableTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad escrow/create_table value")
		}
		if err := requireAdminAuth(st, env, msg.Creator); err != nil {
			return nil, err
		}
		return createTable(st, msg)

	case "escrow/set_open":
		var msg codec.EscrowSetOpenTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad escrow/set_open value")
		}
		if err := requireAdminAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		return setTableOpen(st, msg)

	case "escrow/deposit":
		var msg codec.EscrowDepositTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad escrow/deposit value")
		}
		if err := requireAccountAuth(st, env, msg.Player); err != nil {
			return nil, err
		}
		return deposit(st, msg)

	case "escrow/withdraw":
		var msg codec.EscrowWithdrawTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad escrow/withdraw value")
		}
		if err := requireAccountAuth(st, env, msg.Player); err != nil {
			return nil, err
		}
		return withdraw(st, msg)

	case "escrow/settle":
		var msg codec.EscrowSettleTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad escrow/settle value")
		}
		if err := requireAccountAuth(st, env, msg.Submitter); err != nil {
			return nil, err
		}
		return settle(st, msg)

	case "escrow/sweep":
		var msg codec.EscrowSweepTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, ErrInvalidRequest.Wrap("bad escrow/sweep value")
		}
		if err := requireAdminAuth(st, env, msg.Caller); err != nil {
			return nil, err
		}
		return sweep(st, msg)

	default:
		return nil, ErrInvalidRequest.Wrapf("unknown tx type: %s", env.Type)
	}
}

func (a *App) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		a.logger.Error("state save failed", "err", err)
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *App) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /tables
	// - /table/<id>
	// - /account/<addr>
	// - /escrow/<tableId>/<addr>
	// - /settlement/<id>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/tables":
		ids := make([]string, 0, len(a.st.Tables))
		for id := range a.st.Tables {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/table/"):
		id := strings.TrimPrefix(path, "/table/")
		t, ok := a.st.Tables[strings.ToLower(id)]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "table not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(t)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": a.st.Balance(addr)})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/escrow/"):
		rest := strings.TrimPrefix(path, "/escrow/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return &abci.QueryResponse{Code: 1, Log: "want /escrow/<tableId>/<addr>", Height: a.st.Height}, nil
		}
		t, ok := a.st.Tables[strings.ToLower(parts[0])]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "table not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{
			"tableId": t.ID,
			"addr":    parts[1],
			"balance": t.EscrowBalance(parts[1]),
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/settlement/"):
		id := strings.TrimPrefix(path, "/settlement/")
		used := a.st.UsedSettlements[strings.ToLower(id)]
		b, _ := json.Marshal(map[string]any{"settlementId": id, "used": used})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil

	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

// ---- Bank / auth handlers ----

func bankMint(st *state.State, msg codec.BankMintTx) (*abci.ExecTxResult, error) {
	if msg.To == "" || msg.Amount == 0 {
		return nil, ErrInvalidRequest.Wrap("missing to/amount")
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}
	return okEvent(EventTypeBankMinted, map[string]string{
		"to":     msg.To,
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}

func bankSend(st *state.State, msg codec.BankSendTx) (*abci.ExecTxResult, error) {
	if msg.From == "" || msg.To == "" || msg.Amount == 0 {
		return nil, ErrInvalidRequest.Wrap("missing from/to/amount")
	}
	if err := st.Debit(msg.From, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}
	if err := st.Credit(msg.To, msg.Amount); err != nil {
		return nil, ErrTransferFailed.Wrap(err.Error())
	}
	return okEvent(EventTypeBankSent, map[string]string{
		"from":   msg.From,
		"to":     msg.To,
		"amount": fmt.Sprintf("%d", msg.Amount),
	}), nil
}

func registerAccount(st *state.State, msg codec.AuthRegisterAccountTx) (*abci.ExecTxResult, error) {
	if existing, ok := st.AccountKeys[msg.Account]; ok {
		// Idempotent re-registration with the same key is harmless; key
		// rotation is not supported.
		if !bytes.Equal(existing, msg.PubKey) {
			return nil, ErrUnauthorized.Wrapf("account %q already registered with a different key", msg.Account)
		}
		return okEvent(EventTypeAccountRegistered, map[string]string{
			"account":  msg.Account,
			"existing": "true",
		}), nil
	}
	st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
	return okEvent(EventTypeAccountRegistered, map[string]string{
		"account": msg.Account,
	}), nil
}
