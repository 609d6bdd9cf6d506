// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tracko/tracko-web/internal/token"
)

// TokenMinter はトークンハンドラーが必要とする発行器インターフェース。
type TokenMinter interface {
	// MintCustomToken は指定uidのカスタム認証トークンを発行する。
	MintCustomToken(uid string) (string, error)
	// Ready は署名鍵が利用可能かどうかを検証する。冪等。
	Ready() error
}

// TokenMetrics はトークンハンドラーの計測フック。nil実装を許容する。
type TokenMetrics interface {
	RecordTokenMinted()
	RecordTokenMintFailure(reason string)
	RecordTokenMintLatency(duration time.Duration)
}

// TokenHandler はカスタムトークン発行エンドポイントのHTTPハンドラー。
type TokenHandler struct {
	minter  TokenMinter
	metrics TokenMetrics
}

// NewTokenHandler はTokenHandlerを生成する。metricsはnil可。
func NewTokenHandler(minter TokenMinter, metrics TokenMetrics) *TokenHandler {
	return &TokenHandler{
		minter:  minter,
		metrics: metrics,
	}
}

// mintTokenRequest はトークン発行リクエストのボディ。
type mintTokenRequest struct {
	UID string `json:"uid"`
}

// MintToken はカスタムトークン発行を処理する。
// POST /api/getCustomToken
//
// レスポンスは成功・失敗を問わず必ずapplication/json。
// エラーボディの文字列は拡張機能クライアントと共有する固定値。
func (h *TokenHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]string{"error": "Method not allowed"})
		return
	}

	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "User ID is required"})
		return
	}

	start := time.Now()
	minted, err := h.minter.MintCustomToken(req.UID)
	if h.metrics != nil {
		h.metrics.RecordTokenMintLatency(time.Since(start))
	}
	if err != nil {
		code := token.SigningErrCodeSignFailed
		message := "Failed to create custom token"
		var signErr *token.SigningError
		if errors.As(err, &signErr) {
			code = signErr.Code
		}
		slog.Error("failed to mint custom token",
			slog.String("uid", req.UID),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		if h.metrics != nil {
			h.metrics.RecordTokenMintFailure(code)
		}

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    code,
				"message": message,
			},
		})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTokenMinted()
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"token": minted})
}
