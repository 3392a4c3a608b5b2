package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// NativeAsset is the base denom of the chain's fungible chip asset. It is the
// only asset the deposit path accepts; tables may be configured with other
// asset references, but deposits into them are rejected.
const NativeAsset = "chip"

type State struct {
	Height  int64  `json:"height"`
	ChainID string `json:"chainId,omitempty"`

	// Admin is the capability holder for table administration and sweeps,
	// fixed at genesis.
	Admin string `json:"admin,omitempty"`

	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64)

	Tables map[string]*Table `json:"tables"` // canonical hex id -> table

	// UsedSettlements is the replay guard: a settlement id, once recorded
	// here, is refused for the lifetime of the ledger.
	UsedSettlements map[string]bool `json:"usedSettlements,omitempty"`
}

// Table is one escrow scope: asset and buy-in configuration plus the
// per-account balances custodied for it.
type Table struct {
	ID           string `json:"id"`
	Asset        string `json:"asset"`
	MinBuyIn     uint64 `json:"minBuyIn"`
	MaxBuyIn     uint64 `json:"maxBuyIn"`
	FeeRateBps   uint32 `json:"feeRateBps,omitempty"`
	FeeCap       uint64 `json:"feeCap,omitempty"`
	FeeRecipient string `json:"feeRecipient,omitempty"`
	Open         bool   `json:"open"`

	Balances map[string]uint64 `json:"balances"`
}

func NewState() *State {
	return &State{
		Height:          0,
		Accounts:        map[string]uint64{},
		AccountKeys:     map[string][]byte{},
		NonceMax:        map[string]uint64{},
		Tables:          map[string]*Table{},
		UsedSettlements: map[string]bool{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Tables == nil {
		s.Tables = map[string]*Table{}
	}
	if s.UsedSettlements == nil {
		s.UsedSettlements = map[string]bool{}
	}
	for _, t := range s.Tables {
		if t != nil && t.Balances == nil {
			t.Balances = map[string]uint64{}
		}
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: encoding/json does NOT guarantee map key
	// order, so maps are normalized into sorted slices first.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type balanceKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type tableKV struct {
		ID       string      `json:"id"`
		Table    *Table      `json:"table"`
		Balances []balanceKV `json:"balances"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	tables := make([]tableKV, 0, len(s.Tables))
	for id, t := range s.Tables {
		kv := tableKV{ID: id}
		if t != nil {
			// Shallow copy with Balances suppressed so the nested map does
			// not leak nondeterministic ordering into the hash.
			tt := *t
			tt.Balances = nil
			kv.Table = &tt
			kv.Balances = make([]balanceKV, 0, len(t.Balances))
			for addr, bal := range t.Balances {
				kv.Balances = append(kv.Balances, balanceKV{Addr: addr, Balance: bal})
			}
			sort.Slice(kv.Balances, func(i, j int) bool { return kv.Balances[i].Addr < kv.Balances[j].Addr })
		}
		tables = append(tables, kv)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })

	used := make([]string, 0, len(s.UsedSettlements))
	for id, ok := range s.UsedSettlements {
		if ok {
			used = append(used, id)
		}
	}
	sort.Strings(used)

	normalized := struct {
		Height      int64          `json:"height"`
		ChainID     string         `json:"chainId,omitempty"`
		Admin       string         `json:"admin,omitempty"`
		Accounts    []accountKV    `json:"accounts"`
		AccountKeys []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax    []nonceKV      `json:"nonceMax,omitempty"`
		Tables      []tableKV      `json:"tables"`
		Used        []string       `json:"usedSettlements,omitempty"`
	}{
		Height:      s.Height,
		ChainID:     s.ChainID,
		Admin:       s.Admin,
		Accounts:    accounts,
		AccountKeys: accountKeys,
		NonceMax:    nonces,
		Tables:      tables,
		Used:        used,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// ---- Escrow balances ----

func (t *Table) EscrowBalance(addr string) uint64 {
	return t.Balances[addr]
}

func (t *Table) EscrowCredit(addr string, amount uint64) error {
	bal := t.Balances[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("escrow balance overflow: have=%d add=%d", bal, amount)
	}
	t.Balances[addr] = bal + amount
	return nil
}

func (t *Table) EscrowDebit(addr string, amount uint64) error {
	bal := t.Balances[addr]
	if bal < amount {
		return fmt.Errorf("insufficient escrow balance: have=%d need=%d", bal, amount)
	}
	t.Balances[addr] = bal - amount
	return nil
}

// TotalEscrowed sums every tracked escrow balance across all tables. Used to
// derive the custody pool residual; saturates instead of wrapping.
func (s *State) TotalEscrowed() uint64 {
	var total uint64
	for _, t := range s.Tables {
		if t == nil {
			continue
		}
		for _, bal := range t.Balances {
			if total > ^uint64(0)-bal {
				return ^uint64(0)
			}
			total += bal
		}
	}
	return total
}
