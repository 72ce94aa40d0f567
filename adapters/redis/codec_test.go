package redis_test

import (
	"encoding/base64"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisAdapter "gavel/adapters/redis"
	"gavel/engine"
)

func TestEventCodecRoundTrip(t *testing.T) {
	event := engine.Event{
		ID:        "b9f9d0a4-0a39-4a88-a7fd-0ff4e2f1a001",
		Kind:      engine.EventBidPlaced,
		AuctionID: 7,
		At:        1010,
		Bid: &engine.BidPlaced{
			Bidder: "acct-bidder-1",
			Amount: 150,
		},
	}

	values, err := redisAdapter.EncodeEvent(event)
	require.NoError(t, err)
	payload, ok := values["payload"].(string)
	require.True(t, ok)
	_, err = base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err, "payload should be valid base64")

	got, err := redisAdapter.DecodeEvent(values)
	require.NoError(t, err)
	assert.Equal(t, event, got)
}

func TestEventCodecOptionalPayloads(t *testing.T) {
	event := engine.Event{
		ID:        "b9f9d0a4-0a39-4a88-a7fd-0ff4e2f1a002",
		Kind:      engine.EventAuctionEnded,
		AuctionID: 7,
		At:        1011,
		Ended: &engine.AuctionEnded{
			Winner:     lo.ToPtr(engine.Address("acct-bidder-2")),
			AmountPaid: 150,
		},
	}

	values, err := redisAdapter.EncodeEvent(event)
	require.NoError(t, err)
	got, err := redisAdapter.DecodeEvent(values)
	require.NoError(t, err)
	require.NotNil(t, got.Ended)
	require.NotNil(t, got.Ended.Winner)
	assert.Equal(t, engine.Address("acct-bidder-2"), *got.Ended.Winner)
	assert.Nil(t, got.Created)
	assert.Nil(t, got.Bid)
}

func TestDecodeEventBadMessages(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "missing payload", values: map[string]any{"other": "field"}},
		{name: "payload is not a string", values: map[string]any{"payload": 42}},
		{name: "payload is not base64", values: map[string]any{"payload": "%%%not-base64%%%"}},
		{name: "payload is not msgpack", values: map[string]any{"payload": base64.StdEncoding.EncodeToString([]byte("\xc1"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := redisAdapter.DecodeEvent(tt.values)
			assert.Error(t, err)
		})
	}
}
