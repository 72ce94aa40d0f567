package models

import (
	"time"
)

// Account 代表主機端的原生貨幣帳本項目
// 引擎本身只透過Vault介面移動金額，帳本的表示方式屬於主機層
type Account struct {
	Address string `gorm:"type:varchar(128);primaryKey"`
	Balance uint64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
