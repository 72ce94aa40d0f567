package engine

import "fmt"

// Code 為合約層失敗的錯誤代碼。
// 所有帶代碼的失敗都會中止整個操作並還原先前的變更，
// 呼叫端收到代碼後可自行決定是否重送，引擎不會自動重試。
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeOperationPaused     Code = "OPERATION_PAUSED"
	CodeInvalidDuration     Code = "INVALID_DURATION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidBid          Code = "INVALID_BID"
	CodeAuctionClosed       Code = "AUCTION_CLOSED"
	CodeAuctionStillActive  Code = "AUCTION_STILL_ACTIVE"
	CodeAssetTransferFailed Code = "ASSET_TRANSFER_FAILED"
	CodeAlreadyFinalized    Code = "ALREADY_FINALIZED"
)

// Error 為帶代碼的合約錯誤
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is 讓errors.Is可以用代碼比對，不要求同一個實例
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorized        = &Error{CodeUnauthorized, "caller is not the owner"}
	ErrOperationPaused     = &Error{CodeOperationPaused, "contract is paused"}
	ErrInvalidDuration     = &Error{CodeInvalidDuration, "auction duration is below the configured minimum"}
	ErrNotFound            = &Error{CodeNotFound, "auction does not exist"}
	ErrInvalidBid          = &Error{CodeInvalidBid, "bid is below the starting price or the current highest bid"}
	ErrAuctionClosed       = &Error{CodeAuctionClosed, "auction is no longer accepting bids"}
	ErrAuctionStillActive  = &Error{CodeAuctionStillActive, "auction deadline has not passed yet"}
	ErrAssetTransferFailed = &Error{CodeAssetTransferFailed, "asset custody transfer failed"}
	ErrAlreadyFinalized    = &Error{CodeAlreadyFinalized, "auction has already been finalized"}
)
