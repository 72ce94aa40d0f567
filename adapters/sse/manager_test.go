package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/adapters/sse"
	"gavel/engine"
)

// fakeSource 以普通channel模擬上游的stream consumer
type fakeSource struct {
	ch chan engine.Event
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan engine.Event)}
}

func (s *fakeSource) Subscribe() <-chan engine.Event {
	return s.ch
}

func TestNewManager(t *testing.T) {
	_, err := sse.NewManager(nil)
	assert.Error(t, err)

	manager, err := sse.NewManager(newFakeSource())
	assert.NoError(t, err)
	assert.NotNil(t, manager)
}

func TestManagerRoutesByAuctionID(t *testing.T) {
	source := newFakeSource()
	manager, err := sse.NewManager(source)
	require.NoError(t, err)
	manager.Start()
	defer func() {
		close(source.ch)
		manager.Wait()
		manager.Done()
	}()

	sub1, err := manager.Subscribe(1)
	require.NoError(t, err)
	sub2, err := manager.Subscribe(2)
	require.NoError(t, err)

	source.ch <- engine.Event{ID: "ev-1", Kind: engine.EventBidPlaced, AuctionID: 1}
	select {
	case got := <-sub1:
		assert.Equal(t, "ev-1", got.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber of auction 1 did not receive its event")
	}

	// 拍賣2的訂閱者不會收到拍賣1的事件
	select {
	case got := <-sub2:
		t.Fatalf("subscriber of auction 2 received a foreign event: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	// 無人訂閱的拍賣事件直接丟棄，不會阻塞轉發
	source.ch <- engine.Event{ID: "ev-2", Kind: engine.EventBidPlaced, AuctionID: 42}
	source.ch <- engine.Event{ID: "ev-3", Kind: engine.EventAuctionEnded, AuctionID: 2}
	select {
	case got := <-sub2:
		assert.Equal(t, "ev-3", got.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber of auction 2 did not receive its event")
	}

	manager.Unsubscribe(1, sub1)
	manager.Unsubscribe(2, sub2)
}

func TestManagerUnsubscribe(t *testing.T) {
	source := newFakeSource()
	manager, err := sse.NewManager(source)
	require.NoError(t, err)
	manager.Start()
	defer func() {
		close(source.ch)
		manager.Wait()
		manager.Done()
	}()

	sub, err := manager.Subscribe(1)
	require.NoError(t, err)
	manager.Unsubscribe(1, sub)
	_, open := <-sub
	assert.False(t, open)

	// 重複退訂與退訂未知拍賣都是安全的
	manager.Unsubscribe(1, sub)
	manager.Unsubscribe(99, sub)
}

func TestManagerDone(t *testing.T) {
	source := newFakeSource()
	manager, err := sse.NewManager(source)
	require.NoError(t, err)
	manager.Start()

	sub, err := manager.Subscribe(1)
	require.NoError(t, err)

	close(source.ch)
	manager.Wait()
	manager.Done()

	_, open := <-sub
	assert.False(t, open, "Done should close every subscriber channel")

	_, err = manager.Subscribe(2)
	assert.ErrorIs(t, err, context.Canceled)

	// 重複Done是安全的
	manager.Done()
}
