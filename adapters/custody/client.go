package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gavel/engine"
)

// Client 透過HTTP呼叫外部資產託管服務，實作engine.AssetCustodyClient。
// 託管服務持有資產的所有權紀錄，引擎只依賴這一個transfer能力。
type Client struct {
	baseURL string
	options clientOptions
}

type clientOptions struct {
	httpClient *http.Client
	timeout    time.Duration
}

type ClientOption func(*clientOptions)

// WithHTTPClient 設置自訂的HTTP客戶端
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithTimeout 設置單次transfer呼叫的逾時時間
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// NewClient 建立託管服務客戶端
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("custody base url cannot be empty")
	}

	options := clientOptions{
		httpClient: http.DefaultClient,
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{baseURL: baseURL, options: options}, nil
}

type transferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	AssetRef string `json:"assetRef"`
	AssetID  uint64 `json:"assetId"`
}

// Transfer 同步地要求託管服務移轉資產，非2xx回應視為失敗
func (c *Client) Transfer(ctx context.Context, from, to engine.Address, assetRef engine.Address, assetID uint64) error {
	const op = "custody.Client.Transfer"

	body, err := json.Marshal(transferRequest{
		From:     string(from),
		To:       string(to),
		AssetRef: string(assetRef),
		AssetID:  assetID,
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal transfer request, err=%w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("[%s] Fail to build transfer request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.options.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[%s] Fail to call custody service, err=%w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("[%s] Custody service rejected transfer, status=%d, body=%s", op, resp.StatusCode, string(detail))
	}
	return nil
}
