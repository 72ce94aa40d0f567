package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Engine 負責拍賣的完整生命週期：建立、出價、結算。
// 每個公開操作都是一個原子單位：先檢查AccessControl，
// 再於Vault交易內讀寫拍賣紀錄並視需要呼叫外部轉帳，
// 任一步失敗時整個操作還原，不留下部分狀態。
type Engine struct {
	access  *AccessControl
	vault   Vault
	custody AssetCustodyClient
	sink    EventSink
	logger  *slog.Logger

	// addr 為引擎自身的託管地址，建立拍賣時資產會先移轉到這裡
	addr Address
	// minDuration 為部署時設定的拍賣時長下限
	minDuration uint64
}

// Config 為建構Engine所需的依賴與部署參數
type Config struct {
	// Owner 為初始擁有者地址
	Owner Address
	// EngineAddress 為引擎在託管系統中的自身地址
	EngineAddress Address
	// MinAuctionDuration 為可接受的最短拍賣時長(邏輯時間單位)
	MinAuctionDuration uint64

	Vault   Vault
	Custody AssetCustodyClient
	Sink    EventSink
	Logger  *slog.Logger
}

// NewEngine 建立拍賣引擎
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Owner == "" {
		return nil, errors.New("owner address cannot be empty")
	}
	if cfg.EngineAddress == "" {
		return nil, errors.New("engine address cannot be empty")
	}
	if cfg.Vault == nil {
		return nil, errors.New("vault cannot be nil")
	}
	if cfg.Custody == nil {
		return nil, errors.New("asset custody client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		access:      NewAccessControl(cfg.Owner),
		vault:       cfg.Vault,
		custody:     cfg.Custody,
		sink:        cfg.Sink,
		logger:      cfg.Logger.With(slog.String("caller", "Engine")),
		addr:        cfg.EngineAddress,
		minDuration: cfg.MinAuctionDuration,
	}, nil
}

// Access 回傳引擎的存取控制狀態(供外層查詢owner/paused)
func (e *Engine) Access() *AccessControl {
	return e.access
}

/**********
 * TRANSACTIONS
 **********/

// CreateAuction 建立一場新的拍賣。
// 資產會先從呼叫者移轉到引擎託管地址，移轉失敗時整個操作中止，
// 不會留下任何拍賣紀錄；成功後回傳配置到的拍賣編號。
func (e *Engine) CreateAuction(ctx context.Context, call Call, assetRef Address, assetID uint64, startingPrice uint64, duration uint64) (uint64, error) {
	if err := e.access.RequireNotPaused(); err != nil {
		return 0, err
	}
	if duration < e.minDuration {
		return 0, ErrInvalidDuration
	}

	var id uint64
	var endsAt uint64
	err := e.vault.InTx(ctx, call, func(tx Tx) error {
		// 先把資產移入託管，再寫入紀錄；交易還原保證失敗時不留紀錄
		if err := e.custody.Transfer(ctx, call.Caller, e.addr, assetRef, assetID); err != nil {
			return fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
		}
		endsAt = call.Now + duration
		var err error
		id, err = tx.CreateAuction(Auction{
			Seller:        call.Caller,
			AssetRef:      assetRef,
			AssetID:       assetID,
			StartingPrice: startingPrice,
			EndsAt:        endsAt,
			HighestBid:    0,
			HighestBidder: nil,
			Status:        StatusActive,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	e.emit(Event{
		Kind:      EventAuctionCreated,
		AuctionID: id,
		At:        call.Now,
		Created: &AuctionCreated{
			Seller:        call.Caller,
			AssetRef:      assetRef,
			AssetID:       assetID,
			StartingPrice: startingPrice,
			EndsAt:        endsAt,
		},
	})
	return id, nil
}

// PlaceBid 對進行中的拍賣出價，附帶金額即為出價金額(payable)。
// 與目前最高價相同的出價會取代在位者(沿用原始行為)。
// 若已有最高出價者，必須先退還其款項再記錄新出價，
// 讓「託管金額 == 最高出價」這個不變量在任何可觀察時點都成立。
func (e *Engine) PlaceBid(ctx context.Context, call Call, auctionID uint64) error {
	if err := e.access.RequireNotPaused(); err != nil {
		return err
	}

	err := e.vault.InTx(ctx, call, func(tx Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a.Status != StatusActive || call.Now > a.EndsAt {
			return ErrAuctionClosed
		}
		if call.Value < a.StartingPrice || call.Value < a.HighestBid {
			return ErrInvalidBid
		}
		// 退款在前，改寫在後
		if a.HighestBidder != nil {
			if err := tx.TransferOut(*a.HighestBidder, a.HighestBid); err != nil {
				return err
			}
		}
		a.HighestBid = call.Value
		a.HighestBidder = &call.Caller
		return tx.UpdateAuction(auctionID, a)
	})
	if err != nil {
		return err
	}

	e.emit(Event{
		Kind:      EventBidPlaced,
		AuctionID: auctionID,
		At:        call.Now,
		Bid: &BidPlaced{
			Bidder: call.Caller,
			Amount: call.Value,
		},
	})
	return nil
}

// EndAuction 結算已到期的拍賣，任何人都可以呼叫。
// 有最高出價者時，資產移轉給得標者、款項撥付賣家；
// 無人出價時資產退回賣家，沒有任何貨幣移動。
// Finalized旗標在對外轉帳之前寫入，後續對同一編號的呼叫
// 會得到ErrAlreadyFinalized，不會重複執行轉帳。
func (e *Engine) EndAuction(ctx context.Context, call Call, auctionID uint64) error {
	if err := e.access.RequireNotPaused(); err != nil {
		return err
	}

	var ended AuctionEnded
	err := e.vault.InTx(ctx, call, func(tx Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a.Status == StatusFinalized {
			return ErrAlreadyFinalized
		}
		if call.Now <= a.EndsAt {
			return ErrAuctionStillActive
		}
		// 先把終態寫入，再發起對外轉帳
		a.Status = StatusFinalized
		if err := tx.UpdateAuction(auctionID, a); err != nil {
			return err
		}
		if a.HighestBidder != nil {
			winner := *a.HighestBidder
			if err := e.custody.Transfer(ctx, e.addr, winner, a.AssetRef, a.AssetID); err != nil {
				return fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
			}
			if err := tx.TransferOut(a.Seller, a.HighestBid); err != nil {
				return err
			}
			ended = AuctionEnded{Winner: &winner, AmountPaid: a.HighestBid}
			return nil
		}
		if err := e.custody.Transfer(ctx, e.addr, a.Seller, a.AssetRef, a.AssetID); err != nil {
			return fmt.Errorf("%w: %w", ErrAssetTransferFailed, err)
		}
		ended = AuctionEnded{}
		return nil
	})
	if err != nil {
		return err
	}

	e.emit(Event{
		Kind:      EventAuctionEnded,
		AuctionID: auctionID,
		At:        call.Now,
		Ended:     &ended,
	})
	return nil
}

/**********
 * ADMIN
 **********/

// Pause 暫停合約，僅限擁有者。既有拍賣紀錄不受影響。
func (e *Engine) Pause(call Call) error {
	return e.access.Pause(call.Caller)
}

// Unpause 恢復合約運作，僅限擁有者
func (e *Engine) Unpause(call Call) error {
	return e.access.Unpause(call.Caller)
}

// TransferOwnership 立即替換擁有者，僅限現任擁有者
func (e *Engine) TransferOwnership(call Call, newOwner Address) error {
	return e.access.TransferOwnership(call.Caller, newOwner)
}

// emit 在操作成功提交後發出通知。
// 通知是盡力而為的附加輸出，發送失敗只記錄日誌，不影響已提交的操作。
func (e *Engine) emit(event Event) {
	if e.sink == nil {
		return
	}
	event.ID = uuid.NewString()
	if err := e.sink.Emit(event); err != nil {
		e.logger.Error("Fail to emit event",
			slog.String("kind", string(event.Kind)),
			slog.Uint64("auctionID", event.AuctionID),
			slog.Any("error", err))
	}
}
