package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gavel/engine"
	"gavel/models"
)

// ErrInsufficientFunds 表示帳戶餘額不足以支付本次呼叫附帶的金額。
// 這是主機層的錯誤：代表呼叫根本無法附帶該金額，而不是合約層的失敗。
var ErrInsufficientFunds = errors.New("insufficient funds")

// Vault 以gorm交易實作engine.Vault：
// 拍賣紀錄與原生貨幣帳本放在同一個資料庫交易內，
// fn回傳錯誤時gorm會整筆還原，對應規格要求的abort-and-revert語意。
type Vault struct {
	db         *gorm.DB
	engineAddr string
}

// NewVault 建立資料庫後端的Vault
func NewVault(db *gorm.DB, engineAddr engine.Address) (*Vault, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if engineAddr == "" {
		return nil, errors.New("engine address cannot be empty")
	}
	return &Vault{db: db, engineAddr: string(engineAddr)}, nil
}

// Migrate 建立(或更新)拍賣與帳本資料表
func (v *Vault) Migrate() error {
	const op = "postgres.Vault.Migrate"
	if err := v.db.AutoMigrate(&models.Auction{}, &models.Account{}); err != nil {
		return fmt.Errorf("[%s] Fail to migrate schema, err=%w", op, err)
	}
	return nil
}

// InTx 開啟一個資料庫交易作為操作的原子範圍。
// 附帶金額會先從呼叫者帳戶移入引擎託管帳戶，交易還原時一併退回。
func (v *Vault) InTx(ctx context.Context, call engine.Call, fn func(tx engine.Tx) error) error {
	return v.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		tx := &vaultTx{db: gtx, engineAddr: v.engineAddr}
		if call.Value > 0 {
			if err := tx.move(string(call.Caller), v.engineAddr, call.Value); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

// Credit 替帳戶入帳(主機端注資用，不屬於引擎操作)
func (v *Vault) Credit(ctx context.Context, addr engine.Address, amount uint64) error {
	const op = "postgres.Vault.Credit"
	tx := &vaultTx{db: v.db.WithContext(ctx), engineAddr: v.engineAddr}
	if err := tx.ensureAccount(string(addr)); err != nil {
		return err
	}
	result := v.db.WithContext(ctx).Model(&models.Account{}).
		Where("address = ?", string(addr)).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to credit account, err=%w", op, result.Error)
	}
	return nil
}

// Balance 讀取帳戶餘額，帳戶不存在時視為0
func (v *Vault) Balance(ctx context.Context, addr engine.Address) (uint64, error) {
	const op = "postgres.Vault.Balance"
	var account models.Account
	result := v.db.WithContext(ctx).First(&account, "address = ?", string(addr))
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to read account, err=%w", op, result.Error)
	}
	return account.Balance, nil
}

// vaultTx 為單一交易範圍內的engine.Tx實作
type vaultTx struct {
	db         *gorm.DB
	engineAddr string
}

func (t *vaultTx) CreateAuction(a engine.Auction) (uint64, error) {
	const op = "postgres.vaultTx.CreateAuction"
	record := models.Auction{
		Seller:        string(a.Seller),
		AssetRef:      string(a.AssetRef),
		AssetID:       a.AssetID,
		StartingPrice: a.StartingPrice,
		EndsAt:        a.EndsAt,
		HighestBid:    a.HighestBid,
		Status:        string(a.Status),
	}
	if a.HighestBidder != nil {
		bidder := string(*a.HighestBidder)
		record.HighestBidder = &bidder
	}
	if result := t.db.Create(&record); result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to create auction record, err=%w", op, result.Error)
	}
	return record.ID, nil
}

func (t *vaultTx) GetAuction(id uint64) (engine.Auction, error) {
	const op = "postgres.vaultTx.GetAuction"
	var record models.Auction
	result := t.db.First(&record, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return engine.Auction{}, engine.ErrNotFound
	}
	if result.Error != nil {
		return engine.Auction{}, fmt.Errorf("[%s] Fail to read auction record, err=%w", op, result.Error)
	}
	return toEngineAuction(record), nil
}

func (t *vaultTx) UpdateAuction(id uint64, a engine.Auction) error {
	const op = "postgres.vaultTx.UpdateAuction"
	// 只有最高出價、出價者與狀態是可變欄位，其餘在建立後不再更動
	values := map[string]any{
		"highest_bid": a.HighestBid,
		"status":      string(a.Status),
	}
	if a.HighestBidder != nil {
		values["highest_bidder"] = string(*a.HighestBidder)
	}
	result := t.db.Model(&models.Auction{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to update auction record, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (t *vaultTx) TransferOut(to engine.Address, amount uint64) error {
	return t.move(t.engineAddr, string(to), amount)
}

// move 在帳本內移動金額：先扣款(餘額不足即失敗)再入帳。
// 兩步都在同一個資料庫交易內，不會出現只扣不入的狀態。
func (t *vaultTx) move(from, to string, amount uint64) error {
	const op = "postgres.vaultTx.move"
	if amount == 0 {
		return nil
	}
	if err := t.ensureAccount(to); err != nil {
		return err
	}
	debit := t.db.Model(&models.Account{}).
		Where("address = ? AND balance >= ?", from, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if debit.Error != nil {
		return fmt.Errorf("[%s] Fail to debit account, err=%w", op, debit.Error)
	}
	if debit.RowsAffected == 0 {
		return fmt.Errorf("[%s] account=%s amount=%d: %w", op, from, amount, ErrInsufficientFunds)
	}
	credit := t.db.Model(&models.Account{}).
		Where("address = ?", to).
		Update("balance", gorm.Expr("balance + ?", amount))
	if credit.Error != nil {
		return fmt.Errorf("[%s] Fail to credit account, err=%w", op, credit.Error)
	}
	return nil
}

func (t *vaultTx) ensureAccount(addr string) error {
	const op = "postgres.vaultTx.ensureAccount"
	result := t.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Account{Address: addr, Balance: 0})
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to ensure account, err=%w", op, result.Error)
	}
	return nil
}

func toEngineAuction(record models.Auction) engine.Auction {
	a := engine.Auction{
		Seller:        engine.Address(record.Seller),
		AssetRef:      engine.Address(record.AssetRef),
		AssetID:       record.AssetID,
		StartingPrice: record.StartingPrice,
		EndsAt:        record.EndsAt,
		HighestBid:    record.HighestBid,
		Status:        engine.Status(record.Status),
	}
	if record.HighestBidder != nil {
		bidder := engine.Address(*record.HighestBidder)
		a.HighestBidder = &bidder
	}
	return a
}
