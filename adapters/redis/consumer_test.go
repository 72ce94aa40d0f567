package redis_test

import (
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisAdapter "gavel/adapters/redis"
	"gavel/engine"
)

func TestNewEventConsumer(t *testing.T) {
	client, _ := setupMock(t)

	_, err := redisAdapter.NewEventConsumer(nil, "events")
	assert.Error(t, err)
	_, err = redisAdapter.NewEventConsumer(client, "")
	assert.Error(t, err)

	consumer, err := redisAdapter.NewEventConsumer(client, "events")
	assert.NoError(t, err)
	assert.NotNil(t, consumer)
}

func TestEventConsumerForwardsEvents(t *testing.T) {
	client, mock := setupMock(t)

	event := engine.Event{
		ID:        "ev-1",
		Kind:      engine.EventBidPlaced,
		AuctionID: 1,
		At:        1002,
		Bid:       &engine.BidPlaced{Bidder: "acct-bidder-1", Amount: 100},
	}
	values, err := redisAdapter.EncodeEvent(event)
	require.NoError(t, err)

	blockTimeout := 20 * time.Millisecond
	// 第一次從$讀起，之後接在最後讀到的訊息之後
	mock.ExpectXRead(&goredis.XReadArgs{
		Streams: []string{"events", "$"},
		Count:   1,
		Block:   blockTimeout,
	}).SetVal([]goredis.XStream{{
		Stream:   "events",
		Messages: []goredis.XMessage{{ID: "1-1", Values: values}},
	}})
	mock.ExpectXRead(&goredis.XReadArgs{
		Streams: []string{"events", "1-1"},
		Count:   1,
		Block:   blockTimeout,
	}).RedisNil()

	consumer, err := redisAdapter.NewEventConsumer(client, "events",
		redisAdapter.WithConsumerLogger(discardLogger()),
		redisAdapter.WithConsumerBufferSize(1),
		redisAdapter.WithConsumerBlockTimeout(blockTimeout))
	require.NoError(t, err)
	consumer.Start()

	select {
	case got := <-consumer.Subscribe():
		assert.Equal(t, event, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a forwarded event")
	}

	consumer.Close()
	// 關閉後下游channel會被close
	_, open := <-consumer.Subscribe()
	assert.False(t, open)
}

func TestEventConsumerSkipsUndecodableMessages(t *testing.T) {
	client, mock := setupMock(t)

	event := engine.Event{ID: "ev-2", Kind: engine.EventAuctionEnded, AuctionID: 3, At: 1011}
	values, err := redisAdapter.EncodeEvent(event)
	require.NoError(t, err)

	blockTimeout := 20 * time.Millisecond
	mock.ExpectXRead(&goredis.XReadArgs{
		Streams: []string{"events", "$"},
		Count:   1,
		Block:   blockTimeout,
	}).SetVal([]goredis.XStream{{
		Stream: "events",
		Messages: []goredis.XMessage{
			{ID: "1-1", Values: map[string]any{"payload": "not-base64-%%%"}},
			{ID: "1-2", Values: values},
		},
	}})

	consumer, err := redisAdapter.NewEventConsumer(client, "events",
		redisAdapter.WithConsumerLogger(discardLogger()),
		redisAdapter.WithConsumerBufferSize(1),
		redisAdapter.WithConsumerBlockTimeout(blockTimeout))
	require.NoError(t, err)
	consumer.Start()
	defer consumer.Close()

	select {
	case got := <-consumer.Subscribe():
		// 壞訊息被跳過，好訊息照常送達
		assert.Equal(t, "ev-2", got.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a forwarded event")
	}
}
