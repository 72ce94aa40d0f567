package custody

import (
	"context"
	"fmt"
	"sync"

	"gavel/engine"
)

// FakeClient 為記憶體內的託管服務假實作，供測試與本地開發使用。
// 它追蹤每個資產目前的持有者，並可注入錯誤模擬移轉失敗。
type FakeClient struct {
	mu sync.Mutex
	// holders 以 assetRef/assetID 為鍵，值為目前持有者
	holders map[string]engine.Address
	// FailNext 非nil時，下一次Transfer會回傳該錯誤並清空
	failNext error
	// transfers 依序記錄所有成功的移轉
	transfers []FakeTransfer
}

// FakeTransfer 記錄一次成功的資產移轉
type FakeTransfer struct {
	From     engine.Address
	To       engine.Address
	AssetRef engine.Address
	AssetID  uint64
}

// NewFakeClient 建立託管服務假實作
func NewFakeClient() *FakeClient {
	return &FakeClient{holders: make(map[string]engine.Address)}
}

// Seed 直接設定某資產的持有者(測試前置)
func (f *FakeClient) Seed(owner engine.Address, assetRef engine.Address, assetID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holders[assetKey(assetRef, assetID)] = owner
}

// FailNext 讓下一次Transfer回傳err
func (f *FakeClient) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// Holder 回傳某資產目前的持有者
func (f *FakeClient) Holder(assetRef engine.Address, assetID uint64) (engine.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	holder, ok := f.holders[assetKey(assetRef, assetID)]
	return holder, ok
}

// Transfers 回傳所有成功的移轉紀錄
func (f *FakeClient) Transfers() []FakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out
}

// Transfer 實作engine.AssetCustodyClient
func (f *FakeClient) Transfer(ctx context.Context, from, to engine.Address, assetRef engine.Address, assetID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	key := assetKey(assetRef, assetID)
	holder, ok := f.holders[key]
	if !ok {
		return fmt.Errorf("asset %s is unknown to the custody service", key)
	}
	if holder != from {
		return fmt.Errorf("asset %s is held by %s, not %s", key, holder, from)
	}
	f.holders[key] = to
	f.transfers = append(f.transfers, FakeTransfer{From: from, To: to, AssetRef: assetRef, AssetID: assetID})
	return nil
}

func assetKey(assetRef engine.Address, assetID uint64) string {
	return fmt.Sprintf("%s/%d", assetRef, assetID)
}
