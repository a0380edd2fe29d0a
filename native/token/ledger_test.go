package token_test

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "vedex/core/errors"
	"vedex/core/state"
	"vedex/native/token"
	"vedex/storage"
)

func newTestLedger(t *testing.T) (*token.Ledger, [20]byte) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger := token.NewLedger(state.NewManager(db))
	minter := [20]byte{0xEE}
	if err := ledger.Register("ve", 18, minter); err != nil {
		t.Fatalf("register: %v", err)
	}
	return ledger, minter
}

func TestLedgerMintAndTransfer(t *testing.T) {
	ledger, minter := newTestLedger(t)
	alice := [20]byte{0x01}
	bob := [20]byte{0x02}

	if err := ledger.Mint(minter, "VE", alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(alice, "VE", alice, big.NewInt(1)); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if err := ledger.Transfer("ve", alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.BalanceOf("VE", alice)
	bobBal, _ := ledger.BalanceOf("VE", bob)
	if aliceBal.Int64() != 60 || bobBal.Int64() != 40 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
	supply, _ := ledger.TotalSupply("VE")
	if supply.Int64() != 100 {
		t.Fatalf("unexpected supply %s", supply)
	}

	err := ledger.Transfer("VE", bob, alice, big.NewInt(41))
	if !errors.Is(err, coreerrors.ErrTransferFailed) || !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance transfer failure, got %v", err)
	}
}

func TestLedgerTransferFromConsumesAllowance(t *testing.T) {
	ledger, minter := newTestLedger(t)
	owner := [20]byte{0x01}
	spender := [20]byte{0x02}
	if err := ledger.Mint(minter, "VE", owner, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom("VE", spender, owner, spender, big.NewInt(10)); !errors.Is(err, token.ErrAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := ledger.Approve("VE", owner, spender, big.NewInt(30)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom("VE", spender, owner, spender, big.NewInt(25)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, _ := ledger.Allowance("VE", owner, spender)
	if remaining.Int64() != 5 {
		t.Fatalf("expected allowance 5, got %s", remaining)
	}
}

func TestLedgerRejectsUnknownToken(t *testing.T) {
	ledger, _ := newTestLedger(t)
	err := ledger.Transfer("NOPE", [20]byte{1}, [20]byte{2}, big.NewInt(1))
	if !errors.Is(err, coreerrors.ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if err := ledger.Register("VE", 18, [20]byte{}); !errors.Is(err, token.ErrTokenRegistered) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
}
