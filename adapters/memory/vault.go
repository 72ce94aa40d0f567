package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gavel/engine"
)

// ErrInsufficientFunds 表示帳戶餘額不足以支付附帶金額
var ErrInsufficientFunds = errors.New("insufficient funds")

// Vault 為純記憶體的engine.Vault實作，供測試與本地開發使用。
// InTx以快照-提交的方式模擬交易：fn在狀態副本上執行，
// 成功才把副本寫回，失敗時原狀態完全不受影響。
type Vault struct {
	mu         sync.Mutex
	nextID     uint64
	auctions   map[uint64]engine.Auction
	balances   map[engine.Address]uint64
	engineAddr engine.Address
}

// NewVault 建立記憶體Vault
func NewVault(engineAddr engine.Address) *Vault {
	return &Vault{
		nextID:     1,
		auctions:   make(map[uint64]engine.Auction),
		balances:   make(map[engine.Address]uint64),
		engineAddr: engineAddr,
	}
}

// InTx 在狀態快照上執行fn，成功時提交、失敗時丟棄
func (v *Vault) InTx(ctx context.Context, call engine.Call, fn func(tx engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	tx := &vaultTx{
		nextID:     v.nextID,
		auctions:   make(map[uint64]engine.Auction, len(v.auctions)),
		balances:   make(map[engine.Address]uint64, len(v.balances)),
		engineAddr: v.engineAddr,
	}
	for id, a := range v.auctions {
		tx.auctions[id] = a
	}
	for addr, balance := range v.balances {
		tx.balances[addr] = balance
	}

	if call.Value > 0 {
		if err := tx.move(call.Caller, v.engineAddr, call.Value); err != nil {
			return err
		}
	}
	if err := fn(tx); err != nil {
		return err
	}

	v.nextID = tx.nextID
	v.auctions = tx.auctions
	v.balances = tx.balances
	return nil
}

// Credit 替帳戶入帳(測試注資用)
func (v *Vault) Credit(addr engine.Address, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[addr] += amount
}

// Balance 讀取帳戶餘額
func (v *Vault) Balance(addr engine.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[addr]
}

// Auction 讀取已提交的拍賣紀錄(測試檢查用)
func (v *Vault) Auction(id uint64) (engine.Auction, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.auctions[id]
	return a, ok
}

type vaultTx struct {
	nextID     uint64
	auctions   map[uint64]engine.Auction
	balances   map[engine.Address]uint64
	engineAddr engine.Address
}

func (t *vaultTx) CreateAuction(a engine.Auction) (uint64, error) {
	id := t.nextID
	t.nextID++
	t.auctions[id] = a
	return id, nil
}

func (t *vaultTx) GetAuction(id uint64) (engine.Auction, error) {
	a, ok := t.auctions[id]
	if !ok {
		return engine.Auction{}, engine.ErrNotFound
	}
	return a, nil
}

func (t *vaultTx) UpdateAuction(id uint64, a engine.Auction) error {
	if _, ok := t.auctions[id]; !ok {
		return engine.ErrNotFound
	}
	t.auctions[id] = a
	return nil
}

func (t *vaultTx) TransferOut(to engine.Address, amount uint64) error {
	return t.move(t.engineAddr, to, amount)
}

func (t *vaultTx) move(from, to engine.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if t.balances[from] < amount {
		return fmt.Errorf("account=%s amount=%d: %w", from, amount, ErrInsufficientFunds)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}
