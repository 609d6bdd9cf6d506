package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tracko/tracko-web/internal/credentials"
)

// DiagHandler は疎通確認・環境診断エンドポイントのHTTPハンドラー。
// レスポンスには認証情報の存在フラグと長さのみを含め、値は決して返さない。
type DiagHandler struct {
	minter TokenMinter
}

// NewDiagHandler はDiagHandlerを生成する。
func NewDiagHandler(minter TokenMinter) *DiagHandler {
	return &DiagHandler{minter: minter}
}

// Hello はAPIの疎通確認に応答する。
// GET /api/hello
func (h *DiagHandler) Hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":   "Hello from the API!",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"method":    r.Method,
		"path":      r.URL.Path,
	})
}

// Echo はPOSTボディをそのまま返すエコープローブ。
// POST /api/test
func (h *DiagHandler) Echo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]string{"error": "Method not allowed"})
		return
	}

	var body any
	// ボディが空または非JSONでもエコー自体は成功させる
	_ = json.NewDecoder(r.Body).Decode(&body)

	json.NewEncoder(w).Encode(map[string]any{
		"message":   "Test successful",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"method":    r.Method,
		"body":      body,
	})
}

// EnvTest は環境変数と署名器の構築可否を診断する。
// GET /api/env-test
func (h *DiagHandler) EnvTest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	diag := credentials.EnvDiagnostics()

	signer := map[string]any{"constructible": true}
	if _, err := credentials.Load(); err != nil {
		signer["constructible"] = false
		signer["error"] = err.Error()
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": diag,
		"signer":      signer,
	})
}

// FirebaseTest は署名鍵の初期化を(冪等に)試行し結果を報告する。
// 初期化済みの場合は既存ハンドルが再利用され、再初期化は発生しない。
// GET /api/firebase-test
func (h *DiagHandler) FirebaseTest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	diag := credentials.EnvDiagnostics()

	signer := map[string]any{"initialized": true, "error": nil}
	success := true
	if err := h.minter.Ready(); err != nil {
		success = false
		signer["initialized"] = false
		signer["error"] = err.Error()
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":     success,
		"environment": diag,
		"signer":      signer,
	})
}
