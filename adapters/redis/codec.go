package redis

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"gavel/engine"
)

// ErrBadMessage 表示stream訊息缺少payload欄位或格式不正確
var ErrBadMessage = errors.New("stream message has no valid payload field")

// EncodeEvent 將引擎通知序列化為stream訊息。
// payload以msgpack編碼後再做base64，避免Redis對二進位值的處理差異。
func EncodeEvent(event engine.Event) (map[string]any, error) {
	bytes, err := msgpack.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}
	return map[string]any{
		"payload": base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DecodeEvent 從stream訊息還原引擎通知
func DecodeEvent(values map[string]any) (engine.Event, error) {
	var event engine.Event

	payload, ok := values["payload"].(string)
	if !ok {
		return event, ErrBadMessage
	}
	bytes, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return event, fmt.Errorf("base64 decode error: %w", err)
	}
	if err := msgpack.Unmarshal(bytes, &event); err != nil {
		return event, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return event, nil
}
