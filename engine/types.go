package engine

// Address 代表一個參與者(或合約)在託管系統中的地址
type Address string

// Call 代表主機(host)為單次呼叫提供的輸入：
// 呼叫者身份、邏輯時間與附帶的原生貨幣金額。
// 引擎本身不讀取時鐘，也不自行判斷呼叫者，兩者都必須由外層傳入。
type Call struct {
	// Caller 為已驗證的呼叫者地址
	Caller Address
	// Now 為主機提供的邏輯時間(單調遞增，例如區塊時間)
	Now uint64
	// Value 為本次呼叫附帶的原生貨幣金額(payable)
	Value uint64
}

// Status 代表拍賣的生命週期狀態
type Status string

const (
	// StatusActive 表示拍賣進行中，可接受出價
	StatusActive Status = "active"
	// StatusFinalized 表示拍賣已結算，為終態，不可再變更
	StatusFinalized Status = "finalized"
)

// Auction 代表一場限時拍賣的完整狀態
type Auction struct {
	// Seller 為建立拍賣並在結算時收款的地址
	Seller Address
	// AssetRef 為外部資產託管服務上該資產所屬合約的地址
	AssetRef Address
	// AssetID 為資產在該合約下的唯一編號
	AssetID uint64
	// StartingPrice 為最低可接受的起標價
	StartingPrice uint64
	// EndsAt 為拍賣截止的邏輯時間，建立後不再變更
	EndsAt uint64
	// HighestBid 為目前最高出價(無人出價時為0)，只增不減
	HighestBid uint64
	// HighestBidder 為目前最高出價者，無人出價時為nil
	HighestBidder *Address
	// Status 為拍賣狀態，結算後進入終態
	Status Status
}

// EventKind 標示引擎發出的通知種類
type EventKind string

const (
	EventAuctionCreated EventKind = "auction_created"
	EventBidPlaced      EventKind = "bid_placed"
	EventAuctionEnded   EventKind = "auction_ended"
)

// Event 為引擎通知的外層封裝，依Kind只會填入其中一個payload。
// 通知只在操作成功提交後發出，失敗的操作不產生任何通知。
type Event struct {
	// ID 為通知的唯一識別碼
	ID string `json:"id"`
	// Kind 標示payload種類
	Kind EventKind `json:"kind"`
	// AuctionID 為事件所屬的拍賣編號
	AuctionID uint64 `json:"auctionId"`
	// At 為操作發生時的邏輯時間
	At uint64 `json:"at"`

	Created *AuctionCreated `json:"created,omitempty"`
	Bid     *BidPlaced      `json:"bid,omitempty"`
	Ended   *AuctionEnded   `json:"ended,omitempty"`
}

// AuctionCreated 表示拍賣建立成功
type AuctionCreated struct {
	Seller        Address `json:"seller"`
	AssetRef      Address `json:"assetRef"`
	AssetID       uint64  `json:"assetId"`
	StartingPrice uint64  `json:"startingPrice"`
	EndsAt        uint64  `json:"endsAt"`
}

// BidPlaced 表示新的最高出價成立
type BidPlaced struct {
	Bidder Address `json:"bidder"`
	Amount uint64  `json:"amount"`
}

// AuctionEnded 表示拍賣已結算。
// Winner為nil表示流標，資產已退回賣家且沒有任何貨幣移動。
type AuctionEnded struct {
	Winner     *Address `json:"winner,omitempty"`
	AmountPaid uint64   `json:"amountPaid"`
}
