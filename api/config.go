package api

import (
	"crypto/ed25519"
	"time"
)

type ServerConfig struct {
	Engine  EngineConfig
	DB      DBConfig
	Redis   RedisConfig
	Custody CustodyConfig
	Auth    AuthConfig
}

type EngineConfig struct {
	// Owner 為部署時設定的初始擁有者地址
	Owner string
	// EngineAddress 為引擎在託管系統中的自身地址
	EngineAddress string
	// MinAuctionDuration 為可接受的最短拍賣時長(秒)
	MinAuctionDuration uint64
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 為所有鎖與stream鍵的前綴
	KeyPrefix string
	// EventStream 為引擎通知寫入的stream鍵
	EventStream string
	// LockExpiry 為單場拍賣寫入鎖的過期時間
	LockExpiry time.Duration
}

type CustodyConfig struct {
	// Endpoint 為外部資產託管服務的base URL
	Endpoint string
	// Timeout 為單次transfer呼叫的逾時
	Timeout time.Duration
}

type AuthConfig struct {
	// PublicKey 用於驗證主機簽發的呼叫者身份token
	PublicKey ed25519.PublicKey
}
