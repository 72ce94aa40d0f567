package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// AuctionMutex 為帶自動續期的分散式鎖。
// API層以拍賣編號為鍵，把對同一場拍賣的寫入操作序列化成單一寫者：
// 跨副本的呼叫會在這裡排隊，確保每個操作看到前一個操作提交後的狀態。
type AuctionMutex struct {
	*redsync.Mutex
	cancel   context.CancelFunc
	renewing bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	options  mutexOptions
}

type mutexOptions struct {
	expiry        time.Duration
	retryDelay    time.Duration
	renewInterval time.Duration
}

type MutexOption func(*mutexOptions)

// WithMutexExpiry 設置鎖的過期時間
func WithMutexExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		o.expiry = d
	}
}

// WithMutexRetryDelay 設置搶鎖失敗後的重試間隔
func WithMutexRetryDelay(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		o.retryDelay = d
	}
}

// WithMutexRenewInterval 設置自動續期間隔
func WithMutexRenewInterval(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		o.renewInterval = d
	}
}

// NewAuctionMutex 建立以key識別的分散式鎖
func NewAuctionMutex(client *redis.Client, key string, opts ...MutexOption) *AuctionMutex {
	options := mutexOptions{
		expiry:     8 * time.Second,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	// 未指定續期間隔時，使用過期時間的1/3
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	rs := redsync.New(goredis.NewPool(client))
	mutex := rs.NewMutex(
		key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
	)

	return &AuctionMutex{
		Mutex:   mutex,
		options: options,
	}
}

// Lock 取得鎖並啟動自動續期；鎖被他人持有時依retryDelay重試，
// 直到成功或ctx被取消。回傳的context會在停止續期時被取消。
// 與Redis本身溝通失敗不重試，直接回傳錯誤。
func (m *AuctionMutex) Lock(ctx context.Context) (context.Context, error) {
	timer := time.NewTimer(1)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			err := m.Mutex.LockContext(ctx)
			if err == nil {
				lockCtx, cancel := context.WithCancel(ctx)
				m.cancel = cancel
				m.startAutoRenew(lockCtx)
				return lockCtx, nil
			}
			// 只有「鎖被他人持有」值得重試
			var commErr *redsync.RedisError
			if errors.As(err, &commErr) {
				return nil, fmt.Errorf("failed to acquire lock: %w", err)
			}
			timer.Reset(m.options.retryDelay)
		}
	}
}

// Unlock 停止自動續期並釋放鎖
func (m *AuctionMutex) Unlock() (bool, error) {
	m.stopAutoRenew()
	m.wg.Wait()
	return m.Mutex.Unlock()
}

func (m *AuctionMutex) startAutoRenew(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renewing {
		return
	}
	m.renewing = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				success, err := m.Mutex.Extend()
				if err != nil || !success {
					m.stopAutoRenew()
					return
				}
			}
		}
	}()
}

func (m *AuctionMutex) stopAutoRenew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.renewing {
		return
	}
	m.renewing = false
	if m.cancel != nil {
		m.cancel()
	}
}
