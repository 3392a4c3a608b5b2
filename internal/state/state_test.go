package state

import (
	"bytes"
	"strings"
	"testing"
)

func testTable(id string) *Table {
	return &Table{
		ID:       id,
		Asset:    NativeAsset,
		MinBuyIn: 1,
		MaxBuyIn: 100,
		Open:     true,
		Balances: map[string]uint64{},
	}
}

func TestAppHash_StableAcrossMapOrder(t *testing.T) {
	id := "0x" + strings.Repeat("11", 32)

	s1 := NewState()
	s1.Height = 7
	s1.Accounts["bob"] = 2
	s1.Accounts["alice"] = 1
	s1.Tables[id] = testTable(id)
	s1.Tables[id].Balances["bob"] = 5
	s1.Tables[id].Balances["alice"] = 3

	s2 := NewState()
	s2.Height = 7
	s2.Accounts["alice"] = 1
	s2.Accounts["bob"] = 2
	s2.Tables[id] = testTable(id)
	s2.Tables[id].Balances["alice"] = 3
	s2.Tables[id].Balances["bob"] = 5

	h1 := s1.AppHash()
	h2 := s2.AppHash()
	if !bytes.Equal(h1, h2) {
		t.Fatalf("expected stable app hash; h1=%x h2=%x", h1, h2)
	}

	// Any semantic change should change the hash.
	s2.Tables[id].Balances["alice"] = 9
	h3 := s2.AppHash()
	if bytes.Equal(h1, h3) {
		t.Fatalf("expected hash to change after state mutation")
	}

	s1.UsedSettlements["0x"+strings.Repeat("22", 32)] = true
	h4 := s1.AppHash()
	if bytes.Equal(h1, h4) {
		t.Fatalf("expected hash to change after marking settlement used")
	}
}

func TestCreditDebit_OverflowAndUnderflowGuards(t *testing.T) {
	s := NewState()
	if err := s.Credit("alice", ^uint64(0)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := s.Credit("alice", 1); err == nil {
		t.Fatalf("expected overflow error")
	}
	if s.Balance("alice") != ^uint64(0) {
		t.Fatalf("failed credit must not mutate balance")
	}

	if err := s.Debit("bob", 1); err == nil {
		t.Fatalf("expected insufficient funds error")
	}
	if s.Balance("bob") != 0 {
		t.Fatalf("failed debit must not mutate balance")
	}
}

func TestEscrowBalances_DebitNeverGoesNegative(t *testing.T) {
	id := "0x" + strings.Repeat("aa", 32)
	tbl := testTable(id)

	if err := tbl.EscrowCredit("alice", 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := tbl.EscrowDebit("alice", 51); err == nil {
		t.Fatalf("expected insufficient escrow balance error")
	}
	if tbl.EscrowBalance("alice") != 50 {
		t.Fatalf("failed debit must not mutate escrow balance, got %d", tbl.EscrowBalance("alice"))
	}
	if err := tbl.EscrowDebit("alice", 50); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if tbl.EscrowBalance("alice") != 0 {
		t.Fatalf("expected zero balance, got %d", tbl.EscrowBalance("alice"))
	}
}

func TestTotalEscrowed_SumsAcrossTables(t *testing.T) {
	s := NewState()
	id1 := "0x" + strings.Repeat("01", 32)
	id2 := "0x" + strings.Repeat("02", 32)
	s.Tables[id1] = testTable(id1)
	s.Tables[id2] = testTable(id2)
	s.Tables[id1].Balances["alice"] = 10
	s.Tables[id1].Balances["bob"] = 20
	s.Tables[id2].Balances["alice"] = 5

	if got := s.TotalEscrowed(); got != 35 {
		t.Fatalf("TotalEscrowed=%d want=35", got)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	home := t.TempDir()

	s := NewState()
	s.Height = 3
	s.ChainID = "esl-test"
	s.Admin = "admin"
	s.Accounts["alice"] = 77
	id := "0x" + strings.Repeat("33", 32)
	s.Tables[id] = testTable(id)
	s.Tables[id].Balances["alice"] = 7
	s.UsedSettlements["0x"+strings.Repeat("44", 32)] = true

	if err := s.Save(home); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !bytes.Equal(s.AppHash(), loaded.AppHash()) {
		t.Fatalf("app hash changed across save/load")
	}
	if loaded.Admin != "admin" || loaded.ChainID != "esl-test" {
		t.Fatalf("identity fields lost: %+v", loaded)
	}
}

func TestLoad_MissingFileYieldsFreshState(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Height != 0 || len(s.Tables) != 0 {
		t.Fatalf("expected fresh state, got %+v", s)
	}
	if s.Accounts == nil || s.UsedSettlements == nil {
		t.Fatalf("maps must be initialized")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	s := NewState()
	id := "0x" + strings.Repeat("55", 32)
	s.Tables[id] = testTable(id)
	s.Tables[id].Balances["alice"] = 10
	s.Accounts["alice"] = 1

	c, err := s.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	c.Tables[id].Balances["alice"] = 99
	c.Accounts["alice"] = 99
	c.UsedSettlements["0x"+strings.Repeat("66", 32)] = true

	if s.Tables[id].Balances["alice"] != 10 {
		t.Fatalf("clone mutation leaked into escrow balance")
	}
	if s.Accounts["alice"] != 1 {
		t.Fatalf("clone mutation leaked into bank balance")
	}
	if len(s.UsedSettlements) != 0 {
		t.Fatalf("clone mutation leaked into replay guard")
	}
}
