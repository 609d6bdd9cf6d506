package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tracko/tracko-web/internal/metrics"
	"github.com/tracko/tracko-web/internal/middleware"
	"github.com/tracko/tracko-web/internal/session"
)

// Pinger はヘルスチェックが必要とするデータベース疎通インターフェース。
// *sql.DBがこれを満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// トークン発行
	Minter TokenMinter

	// プロフィール
	ProfileStore   session.ProfileStore
	StreamInterval time.Duration

	// 観測
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	DB       Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → (保護ルートのみ) Session → RateLimit → CSRF
//
// Loggingを最外周に置くことで、panicで終わったリクエストも500として記録される。
//
// トークン発行・診断・認証フローはセッション不要のため保護チェーンの外に置く。
// トークン発行はワイヤ契約上メソッド不一致も自前の405 JSONで返すため、
// 全メソッドをハンドラーに通すHandleFuncでマウントする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// Collectorが未指定の場合にnilポインタ入りインターフェースを
	// ハンドラーへ渡さないための変換
	var tokenMetrics TokenMetrics
	var profileMetrics ProfileMetrics
	if deps.Metrics != nil {
		tokenMetrics = deps.Metrics
		profileMetrics = deps.Metrics
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	tokenHandler := NewTokenHandler(deps.Minter, tokenMetrics)
	diagHandler := NewDiagHandler(deps.Minter)
	profileHandler := NewProfileHandler(deps.ProfileStore, profileMetrics, deps.StreamInterval)

	// --- 認証不要のルート ---

	// トークン発行（IP単位のレート制限つき）
	r.With(deps.RateLimiter.TokenMintMiddleware()).
		HandleFunc("/api/getCustomToken", tokenHandler.MintToken)

	// 診断
	r.Get("/api/hello", diagHandler.Hello)
	r.HandleFunc("/api/test", diagHandler.Echo)
	r.Get("/api/env-test", diagHandler.EnvTest)
	r.Get("/api/firebase-test", diagHandler.FirebaseTest)

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// ヘルスチェックとメトリクス
	r.Get("/health", healthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Post("/increment", profileHandler.Increment)
			r.Get("/stream", profileHandler.Stream)
		})
	})

	return r
}

// healthHandler はデータベース疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
