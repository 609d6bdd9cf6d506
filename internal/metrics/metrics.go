// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやブリッジ層から利用する。
type MetricsCollector interface {
	RecordTokenMinted()
	RecordTokenMintFailure(reason string)
	RecordTokenMintLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordHandshake(outcome string)
	RecordValidation(outcome string)
	RecordForeignDrop()
	RecordProfileIncrement(category string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokenMinted      prometheus.Counter
	tokenMintFail    *prometheus.CounterVec
	tokenMintLatency prometheus.Histogram
	httpStatus       *prometheus.CounterVec
	handshake        *prometheus.CounterVec
	validation       *prometheus.CounterVec
	foreignDrop      prometheus.Counter
	profileIncrement *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracko_token_minted_total",
			Help: "発行されたカスタムトークンの合計数",
		}),
		tokenMintFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_token_mint_fail_total",
			Help: "カスタムトークン発行失敗の合計数（理由別）",
		}, []string{"reason"}),
		tokenMintLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracko_token_mint_latency_seconds",
			Help:    "カスタムトークン発行のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		handshake: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_bridge_handshake_total",
			Help: "拡張機能ハンドシェイクの合計数（結果別）",
		}, []string{"outcome"}),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_bridge_validation_total",
			Help: "拡張機能接続検証の合計数（結果別）",
		}, []string{"outcome"}),
		foreignDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracko_bridge_foreign_drop_total",
			Help: "期待外オリジンから破棄したブリッジメッセージの合計数",
		}),
		profileIncrement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_profile_increment_total",
			Help: "プロフィール加算操作の合計数（カテゴリ別）",
		}, []string{"category"}),
	}

	reg.MustRegister(
		c.tokenMinted,
		c.tokenMintFail,
		c.tokenMintLatency,
		c.httpStatus,
		c.handshake,
		c.validation,
		c.foreignDrop,
		c.profileIncrement,
	)

	return c
}

// RecordTokenMinted はカスタムトークン発行成功を記録する。
func (c *Collector) RecordTokenMinted() {
	c.tokenMinted.Inc()
}

// RecordTokenMintFailure はカスタムトークン発行失敗を理由別に記録する。
func (c *Collector) RecordTokenMintFailure(reason string) {
	c.tokenMintFail.WithLabelValues(reason).Inc()
}

// RecordTokenMintLatency はトークン発行のレイテンシを記録する。
func (c *Collector) RecordTokenMintLatency(duration time.Duration) {
	c.tokenMintLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHandshake はハンドシェイクの結果を記録する。
func (c *Collector) RecordHandshake(outcome string) {
	c.handshake.WithLabelValues(outcome).Inc()
}

// RecordValidation は接続検証の結果を記録する。
func (c *Collector) RecordValidation(outcome string) {
	c.validation.WithLabelValues(outcome).Inc()
}

// RecordForeignDrop は期待外オリジンからのメッセージ破棄を記録する。
func (c *Collector) RecordForeignDrop() {
	c.foreignDrop.Inc()
}

// RecordProfileIncrement はプロフィール加算操作をカテゴリ別に記録する。
func (c *Collector) RecordProfileIncrement(category string) {
	c.profileIncrement.WithLabelValues(category).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
