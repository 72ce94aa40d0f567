package engine

import "sync"

// AccessControl 持有擁有者身份與暫停旗標，
// 生命週期等同整個合約，於部署時初始化一次。
type AccessControl struct {
	mu     sync.RWMutex
	owner  Address
	paused bool
}

// NewAccessControl 設定初始擁有者，僅在部署時呼叫一次
func NewAccessControl(owner Address) *AccessControl {
	return &AccessControl{owner: owner}
}

// Owner 回傳目前的擁有者地址
func (ac *AccessControl) Owner() Address {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.owner
}

// Paused 回傳目前的暫停旗標
func (ac *AccessControl) Paused() bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.paused
}

// AssertOwner 檢查呼叫者是否為擁有者，不產生任何副作用
func (ac *AccessControl) AssertOwner(caller Address) error {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if caller != ac.owner {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership 由現任擁有者立即替換擁有者
func (ac *AccessControl) TransferOwnership(caller, newOwner Address) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if caller != ac.owner {
		return ErrUnauthorized
	}
	ac.owner = newOwner
	return nil
}

// Pause 設定暫停旗標，僅限擁有者。重複設定相同值不是錯誤。
func (ac *AccessControl) Pause(caller Address) error {
	return ac.setPaused(caller, true)
}

// Unpause 清除暫停旗標，僅限擁有者
func (ac *AccessControl) Unpause(caller Address) error {
	return ac.setPaused(caller, false)
}

func (ac *AccessControl) setPaused(caller Address, paused bool) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if caller != ac.owner {
		return ErrUnauthorized
	}
	ac.paused = paused
	return nil
}

// RequireNotPaused 在暫停時回傳ErrOperationPaused，不產生任何副作用
func (ac *AccessControl) RequireNotPaused() error {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if ac.paused {
		return ErrOperationPaused
	}
	return nil
}
