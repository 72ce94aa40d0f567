package models

import (
	"time"
)

// Auction 代表一筆拍賣紀錄
// 主鍵採用資料庫自增序號(從1開始)，對應引擎配置的拍賣編號；
// 紀錄建立後只會被更新，不會被刪除，保留作為稽核與查詢用途。
type Auction struct {
	ID            uint64  `gorm:"primaryKey;autoIncrement"`
	Seller        string  `gorm:"type:varchar(128);not null;<-:create"`
	AssetRef      string  `gorm:"type:varchar(128);not null;<-:create"`
	AssetID       uint64  `gorm:"not null;<-:create"`
	StartingPrice uint64  `gorm:"not null;<-:create"`
	EndsAt        uint64  `gorm:"not null;<-:create"`
	HighestBid    uint64  `gorm:"not null"`
	HighestBidder *string `gorm:"type:varchar(128)"`
	Status        string  `gorm:"type:varchar(16);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
