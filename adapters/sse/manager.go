package sse

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"gavel/engine"
)

// EventSource 為通知的上游來源(通常是Redis stream consumer)。
// 來源關閉時應close回傳的channel，Manager會隨之停止轉發。
type EventSource interface {
	Subscribe() <-chan engine.Event
}

// Manager 把上游的引擎通知依拍賣編號路由到各自的廣播頻道，
// 讓多個服務實例上的SSE觀察者都能收到同一場拍賣的事件。
type Manager struct {
	logger *slog.Logger
	source EventSource

	mu       sync.RWMutex
	wg       sync.WaitGroup
	active   bool
	channels map[uint64]*Channel
}

type managerOptions struct {
	logger *slog.Logger
}

type ManagerOption func(*managerOptions)

// WithManagerLogger 設置日誌記錄器
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// NewManager 建立SSE連線管理器
func NewManager(source EventSource, opts ...ManagerOption) (*Manager, error) {
	if source == nil {
		return nil, errors.New("event source cannot be nil")
	}
	options := managerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Manager{
		logger:   options.logger.With(slog.String("caller", "sse.Manager")),
		source:   source,
		channels: make(map[uint64]*Channel),
		active:   true,
	}, nil
}

// Start 開始接收上游通知並廣播，應在其他方法之前呼叫
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for event := range m.source.Subscribe() {
			m.mu.RLock()
			channel, ok := m.channels[event.AuctionID]
			m.mu.RUnlock()
			if ok {
				channel.Broadcast(event)
			}
		}
		m.logger.Info("event source closed, manager stops broadcasting")
	}()
}

// Done 停止管理器並關閉所有訂閱者的通道
func (m *Manager) Done() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.active = false
	for _, channel := range m.channels {
		channel.UnsubscribeAll()
	}
	clear(m.channels)
}

// Wait 等待廣播goroutine結束(上游來源close之後)
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Subscribe 訂閱某場拍賣的通知
func (m *Manager) Subscribe(auctionID uint64) (<-chan engine.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil, context.Canceled
	}
	channel, ok := m.channels[auctionID]
	if !ok {
		channel = NewChannel()
		m.channels[auctionID] = channel
	}
	return channel.Subscribe(), nil
}

// Unsubscribe 取消某場拍賣的一個訂閱；頻道閒置時順手回收
func (m *Manager) Unsubscribe(auctionID uint64, ch <-chan engine.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channel, ok := m.channels[auctionID]
	if !ok {
		return
	}
	channel.Unsubscribe(ch)
	if channel.IsIdle() {
		delete(m.channels, auctionID)
	}
}
