package custody_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/adapters/custody"
	"gavel/engine"
)

func TestNewClient(t *testing.T) {
	_, err := custody.NewClient("")
	assert.Error(t, err)

	client, err := custody.NewClient("http://custody.local")
	assert.NoError(t, err)
	assert.NotNil(t, client)
}

func TestClientTransfer(t *testing.T) {
	type received struct {
		From     string `json:"from"`
		To       string `json:"to"`
		AssetRef string `json:"assetRef"`
		AssetID  uint64 `json:"assetId"`
	}

	t.Run("successful transfer posts the expected payload", func(t *testing.T) {
		var got received
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/transfers", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, err := custody.NewClient(server.URL)
		require.NoError(t, err)

		err = client.Transfer(context.Background(), "acct-seller", "acct-engine", "nft-contract", 7)
		require.NoError(t, err)
		assert.Equal(t, received{
			From:     "acct-seller",
			To:       "acct-engine",
			AssetRef: "nft-contract",
			AssetID:  7,
		}, got)
	})

	t.Run("non-2xx response is an error carrying the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "asset is not held by acct-seller", http.StatusConflict)
		}))
		defer server.Close()

		client, err := custody.NewClient(server.URL)
		require.NoError(t, err)

		err = client.Transfer(context.Background(), "acct-seller", "acct-engine", "nft-contract", 7)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=409")
		assert.Contains(t, err.Error(), "asset is not held by acct-seller")
	})

	t.Run("timeout aborts the call", func(t *testing.T) {
		block := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer server.Close()
		defer close(block)

		client, err := custody.NewClient(server.URL, custody.WithTimeout(50*time.Millisecond))
		require.NoError(t, err)

		err = client.Transfer(context.Background(), "acct-seller", "acct-engine", "nft-contract", 7)
		assert.Error(t, err)
	})
}

func TestFakeClient(t *testing.T) {
	ctx := context.Background()
	seller := engine.Address("acct-seller")
	buyer := engine.Address("acct-buyer")
	ref := engine.Address("nft-contract")

	t.Run("transfer follows the tracked holder", func(t *testing.T) {
		fake := custody.NewFakeClient()
		fake.Seed(seller, ref, 7)

		require.NoError(t, fake.Transfer(ctx, seller, buyer, ref, 7))
		holder, ok := fake.Holder(ref, 7)
		require.True(t, ok)
		assert.Equal(t, buyer, holder)
		assert.Len(t, fake.Transfers(), 1)

		// 持有者已變更，原持有者不能再移轉
		assert.Error(t, fake.Transfer(ctx, seller, buyer, ref, 7))
	})

	t.Run("unknown asset", func(t *testing.T) {
		fake := custody.NewFakeClient()
		assert.Error(t, fake.Transfer(ctx, seller, buyer, ref, 99))
	})

	t.Run("injected failure fires once", func(t *testing.T) {
		fake := custody.NewFakeClient()
		fake.Seed(seller, ref, 7)
		boom := errors.New("boom")
		fake.FailNext(boom)

		assert.ErrorIs(t, fake.Transfer(ctx, seller, buyer, ref, 7), boom)
		assert.Empty(t, fake.Transfers())
		assert.NoError(t, fake.Transfer(ctx, seller, buyer, ref, 7))
	})
}
