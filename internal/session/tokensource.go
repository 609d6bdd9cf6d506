package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tracko/tracko-web/internal/bridge"
)

const mintPath = "/api/getCustomToken"

// MintClient はトークン発行エンドポイントを呼び出すHTTPクライアント。
// 取得したトークン値はログに残さない。
type MintClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMintClient はMintClientを生成する。httpClientがnilの場合は
// タイムアウト付きの既定クライアントを使う。
func NewMintClient(baseURL string, httpClient *http.Client) *MintClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &MintClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// TokenSource はブリッジ接続用のTokenSourceとしてこのクライアントを返す。
func (c *MintClient) TokenSource() bridge.TokenSource {
	return c.Token
}

// Token は指定uidのカスタムトークンを発行エンドポイントから取得する。
func (c *MintClient) Token(ctx context.Context, uid string) (string, error) {
	body, err := json.Marshal(map[string]string{"uid": uid})
	if err != nil {
		return "", fmt.Errorf("failed to marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+mintPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mint request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("mint endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode mint response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("mint endpoint returned empty token")
	}
	return result.Token, nil
}
