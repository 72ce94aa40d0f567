package engine

import "context"

// Vault 將拍賣紀錄與原生貨幣託管綁在同一個交易邊界內。
// 每個公開操作都在一次InTx中跑完：fn回傳錯誤時，
// 範圍內的所有變更(包含已入帳的附帶金額)必須整筆還原。
type Vault interface {
	// InTx 開啟一個原子範圍。若call.Value大於0，實作必須在fn執行前
	// 先將附帶金額從呼叫者帳戶移入引擎託管帳戶；fn失敗時由交易
	// 還原機制退還，而不是由引擎邏輯補償。
	InTx(ctx context.Context, call Call, fn func(tx Tx) error) error
}

// Tx 為InTx範圍內可用的狀態操作
type Tx interface {
	// CreateAuction 配置下一個編號(從1開始遞增)並寫入紀錄
	CreateAuction(a Auction) (uint64, error)
	// GetAuction 讀取拍賣紀錄，不存在時回傳ErrNotFound
	GetAuction(id uint64) (Auction, error)
	// UpdateAuction 覆寫既有的拍賣紀錄，呼叫端保證id存在
	UpdateAuction(id uint64, a Auction) error
	// TransferOut 從引擎託管帳戶匯出原生貨幣(退款或撥付賣家)
	TransferOut(to Address, amount uint64) error
}

// AssetCustodyClient 為外部資產託管服務的窄介面。
// 引擎只依賴這一個transfer能力，方便以假實作替換測試。
type AssetCustodyClient interface {
	// Transfer 將(assetRef, assetID)識別的資產從from移轉給to，
	// 同步執行；失敗必須讓呼叫端的整個操作中止。
	Transfer(ctx context.Context, from, to Address, assetRef Address, assetID uint64) error
}

// EventSink 接收引擎在操作成功提交後發出的通知
type EventSink interface {
	Emit(event Event) error
}
