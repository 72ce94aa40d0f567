package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/adapters/memory"
	"gavel/engine"
)

var (
	engineAddr = engine.Address("acct-engine")
	alice      = engine.Address("acct-alice")
	bob        = engine.Address("acct-bob")
)

func TestInTxCommit(t *testing.T) {
	vault := memory.NewVault(engineAddr)
	vault.Credit(alice, 300)

	var id uint64
	err := vault.InTx(context.Background(), engine.Call{Caller: alice, Now: 100, Value: 200}, func(tx engine.Tx) error {
		var err error
		id, err = tx.CreateAuction(engine.Auction{Seller: alice, Status: engine.StatusActive, EndsAt: 110})
		if err != nil {
			return err
		}
		return tx.TransferOut(bob, 50)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	// 附帶金額先入引擎帳戶，TransferOut再從引擎帳戶支出
	assert.Equal(t, uint64(100), vault.Balance(alice))
	assert.Equal(t, uint64(150), vault.Balance(engineAddr))
	assert.Equal(t, uint64(50), vault.Balance(bob))

	a, ok := vault.Auction(id)
	require.True(t, ok)
	assert.Equal(t, alice, a.Seller)
}

func TestInTxRollback(t *testing.T) {
	vault := memory.NewVault(engineAddr)
	vault.Credit(alice, 300)

	boom := errors.New("boom")
	err := vault.InTx(context.Background(), engine.Call{Caller: alice, Now: 100, Value: 200}, func(tx engine.Tx) error {
		if _, err := tx.CreateAuction(engine.Auction{Seller: alice}); err != nil {
			return err
		}
		if err := tx.TransferOut(bob, 50); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// fn失敗時所有變更(含附帶金額的入帳)一併還原
	assert.Equal(t, uint64(300), vault.Balance(alice))
	assert.Equal(t, uint64(0), vault.Balance(engineAddr))
	assert.Equal(t, uint64(0), vault.Balance(bob))
	_, ok := vault.Auction(1)
	assert.False(t, ok)

	// 下一筆成功的交易仍從1開始編號
	err = vault.InTx(context.Background(), engine.Call{Caller: alice, Now: 101}, func(tx engine.Tx) error {
		id, err := tx.CreateAuction(engine.Auction{Seller: alice})
		assert.Equal(t, uint64(1), id)
		return err
	})
	require.NoError(t, err)
}

func TestInTxInsufficientFunds(t *testing.T) {
	vault := memory.NewVault(engineAddr)
	vault.Credit(alice, 100)

	called := false
	err := vault.InTx(context.Background(), engine.Call{Caller: alice, Now: 100, Value: 200}, func(tx engine.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, memory.ErrInsufficientFunds)
	assert.False(t, called, "fn should not run when the attached value cannot be debited")
	assert.Equal(t, uint64(100), vault.Balance(alice))
}

func TestInTxCancelledContext(t *testing.T) {
	vault := memory.NewVault(engineAddr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := vault.InTx(ctx, engine.Call{Caller: alice, Now: 100}, func(tx engine.Tx) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTxAuctionOperations(t *testing.T) {
	vault := memory.NewVault(engineAddr)

	err := vault.InTx(context.Background(), engine.Call{Caller: alice, Now: 100}, func(tx engine.Tx) error {
		if _, err := tx.GetAuction(42); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := tx.UpdateAuction(42, engine.Auction{}); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		id, err := tx.CreateAuction(engine.Auction{Seller: alice, HighestBid: 0, Status: engine.StatusActive})
		if err != nil {
			return err
		}
		a, err := tx.GetAuction(id)
		if err != nil {
			return err
		}
		a.HighestBid = 120
		a.HighestBidder = &bob
		if err := tx.UpdateAuction(id, a); err != nil {
			return err
		}
		got, err := tx.GetAuction(id)
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(120), got.HighestBid)
		require.NotNil(t, got.HighestBidder)
		assert.Equal(t, bob, *got.HighestBidder)
		return nil
	})
	require.NoError(t, err)
}
