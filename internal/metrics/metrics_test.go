package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定メトリクスのカウンタ値を取得するヘルパー。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			total := 0.0
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordTokenMinted_IncrementsCounter はトークン発行カウンタが増加することを検証する。
func TestRecordTokenMinted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenMinted()
	c.RecordTokenMinted()

	if got := counterValue(t, reg, "tracko_token_minted_total"); got != 2 {
		t.Errorf("token_minted_total = %v, want 2", got)
	}
}

// TestRecordTokenMintFailure_IncrementsByReason は発行失敗カウンタが理由別に増加することを検証する。
func TestRecordTokenMintFailure_IncrementsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenMintFailure("CREDENTIAL_INIT_FAILED")
	c.RecordTokenMintFailure("TOKEN_SIGN_FAILED")
	c.RecordTokenMintFailure("TOKEN_SIGN_FAILED")

	if got := counterValue(t, reg, "tracko_token_mint_fail_total"); got != 3 {
		t.Errorf("token_mint_fail_total = %v, want 3", got)
	}
}

// TestRecordHandshakeAndValidation はブリッジ計測カウンタが増加することを検証する。
func TestRecordHandshakeAndValidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHandshake("connected")
	c.RecordHandshake("rejected")
	c.RecordValidation("valid")
	c.RecordForeignDrop()

	if got := counterValue(t, reg, "tracko_bridge_handshake_total"); got != 2 {
		t.Errorf("handshake_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "tracko_bridge_validation_total"); got != 1 {
		t.Errorf("validation_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "tracko_bridge_foreign_drop_total"); got != 1 {
		t.Errorf("foreign_drop_total = %v, want 1", got)
	}
}

// TestRecordHTTPStatus_LabelsByCode はステータスコード別カウンタを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(500)

	if got := counterValue(t, reg, "tracko_http_status_total"); got != 3 {
		t.Errorf("http_status_total = %v, want 3", got)
	}
}

// TestRecordProfileIncrement はカテゴリ別加算カウンタを検証する。
func TestRecordProfileIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProfileIncrement("academic")
	c.RecordProfileIncrement("entertainment")

	if got := counterValue(t, reg, "tracko_profile_increment_total"); got != 2 {
		t.Errorf("profile_increment_total = %v, want 2", got)
	}
}

// TestHandler_ServesMetrics は/metricsエンドポイントがPrometheus形式で応答することを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenMinted()
	c.RecordTokenMintLatency(50 * time.Millisecond)

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "tracko_token_minted_total 1") {
		t.Error("scrape output should contain tracko_token_minted_total")
	}
	if !strings.Contains(string(body), "tracko_token_mint_latency_seconds") {
		t.Error("scrape output should contain latency histogram")
	}
}
