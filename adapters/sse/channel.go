package sse

import (
	"sync"

	"gavel/engine"
)

// subscriber 持有單一觀察者的通道與終止訊號。
// send與close以subscriber自己的鎖序列化：close先關閉done讓
// 進行中的send立刻返回，再關閉事件通道，不會對已關閉的通道送值。
type subscriber struct {
	ch   chan engine.Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) send(event engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	case <-s.done:
	}
}

func (s *subscriber) close() {
	close(s.done)
	s.mu.Lock()
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
}

// Channel 管理單一拍賣的所有觀察者，
// 並把收到的引擎通知廣播給每一個訂閱者。
type Channel struct {
	subscribers map[<-chan engine.Event]*subscriber
	mu          sync.RWMutex
}

// NewChannel 建立一個新的廣播頻道
func NewChannel() *Channel {
	return &Channel{
		subscribers: make(map[<-chan engine.Event]*subscriber),
	}
}

// Subscribe 建立一個新的訂閱並回傳唯讀通道
func (c *Channel) Subscribe() <-chan engine.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &subscriber{
		ch:   make(chan engine.Event),
		done: make(chan struct{}),
	}
	c.subscribers[sub.ch] = sub
	return sub.ch
}

// Unsubscribe 移除指定的訂閱並關閉其通道。
// 即使廣播正卡在這個訂閱者身上也不會被擋住：
// done訊號會讓進行中的送出立刻放棄。
func (c *Channel) Unsubscribe(ch <-chan engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, exists := c.subscribers[ch]; exists {
		delete(c.subscribers, ch)
		sub.close()
	}
}

// UnsubscribeAll 關閉所有訂閱者的通道並清空訂閱清單
func (c *Channel) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subscribers {
		sub.close()
	}
	clear(c.subscribers)
}

// Broadcast 將通知廣播給所有仍在訂閱清單中的通道。
// 訂閱清單只在快照期間持鎖，送出本身在鎖外進行，
// 讓Unsubscribe/Subscribe不會被慢速或已離開的觀察者擋住。
func (c *Channel) Broadcast(event engine.Event) {
	c.mu.RLock()
	subs := make([]*subscriber, 0, len(c.subscribers))
	for _, sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.send(event)
	}
}

// IsIdle 判斷是否已無任何訂閱者
func (c *Channel) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers) == 0
}
