package sse_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gavel/adapters/sse"
	"gavel/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestChannelBroadcast(t *testing.T) {
	channel := sse.NewChannel()
	assert.True(t, channel.IsIdle())

	sub1 := channel.Subscribe()
	sub2 := channel.Subscribe()
	assert.False(t, channel.IsIdle())

	event := engine.Event{ID: "ev-1", Kind: engine.EventBidPlaced, AuctionID: 1}
	var wg sync.WaitGroup
	for _, sub := range []<-chan engine.Event{sub1, sub2} {
		wg.Add(1)
		go func(sub <-chan engine.Event) {
			defer wg.Done()
			got := <-sub
			assert.Equal(t, "ev-1", got.ID)
		}(sub)
	}
	channel.Broadcast(event)
	wg.Wait()
}

func TestChannelUnsubscribe(t *testing.T) {
	channel := sse.NewChannel()
	sub1 := channel.Subscribe()
	sub2 := channel.Subscribe()

	channel.Unsubscribe(sub1)
	_, open := <-sub1
	assert.False(t, open, "unsubscribed channel should be closed")
	assert.False(t, channel.IsIdle())

	// 廣播只送給仍在清單中的訂閱者
	done := make(chan struct{})
	go func() {
		defer close(done)
		got := <-sub2
		assert.Equal(t, "ev-2", got.ID)
	}()
	channel.Broadcast(engine.Event{ID: "ev-2"})
	<-done

	// 重複退訂是安全的
	channel.Unsubscribe(sub1)
	channel.Unsubscribe(sub2)
	assert.True(t, channel.IsIdle())
}

func TestChannelUnsubscribeDuringBroadcast(t *testing.T) {
	channel := sse.NewChannel()
	// 訂閱者從不讀取，模擬觀察者在廣播進行中斷線
	sub := channel.Subscribe()

	broadcastDone := make(chan struct{})
	go func() {
		defer close(broadcastDone)
		channel.Broadcast(engine.Event{ID: "ev-1"})
	}()

	// 讓廣播先卡在無人讀取的送出上
	time.Sleep(20 * time.Millisecond)

	unsubDone := make(chan struct{})
	go func() {
		defer close(unsubDone)
		channel.Unsubscribe(sub)
	}()

	select {
	case <-unsubDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe blocked behind an in-flight broadcast")
	}
	select {
	case <-broadcastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast never returned after its only subscriber left")
	}

	_, open := <-sub
	assert.False(t, open)
	assert.True(t, channel.IsIdle())

	// 頻道沒有被卡死，後續的訂閱與廣播照常運作
	next := channel.Subscribe()
	received := make(chan struct{})
	go func() {
		defer close(received)
		got := <-next
		assert.Equal(t, "ev-2", got.ID)
	}()
	channel.Broadcast(engine.Event{ID: "ev-2"})
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast after the stuck unsubscribe never arrived")
	}
	channel.Unsubscribe(next)
}

func TestChannelUnsubscribeAll(t *testing.T) {
	channel := sse.NewChannel()
	sub1 := channel.Subscribe()
	sub2 := channel.Subscribe()

	channel.UnsubscribeAll()
	for _, sub := range []<-chan engine.Event{sub1, sub2} {
		_, open := <-sub
		require.False(t, open)
	}
	assert.True(t, channel.IsIdle())
}
