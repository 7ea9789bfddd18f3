// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeSuccess は成功を表すoutcomeラベル値。失敗時はエラーコードを使う。
const OutcomeSuccess = "success"

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスとミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(strategy, outcome string)
	RecordTokensIssued(reason string)
	RecordOAuthResolution(provider, outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts     *prometheus.CounterVec
	tokensIssued     *prometheus.CounterVec
	oauthResolutions *prometheus.CounterVec
	httpResponses    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moamoa_auth_attempts_total",
			Help: "認証戦略・結果別の認証試行数",
		}, []string{"strategy", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moamoa_tokens_issued_total",
			Help: "発行理由別のトークンペア発行数",
		}, []string{"reason"}),
		oauthResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moamoa_oauth_resolutions_total",
			Help: "プロバイダー・解決経路別のOAuthアイデンティティ解決数",
		}, []string{"provider", "outcome"}),
		httpResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moamoa_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.tokensIssued,
		c.oauthResolutions,
		c.httpResponses,
	)

	return c
}

// RecordAuthAttempt は認証試行を記録する。
func (c *Collector) RecordAuthAttempt(strategy, outcome string) {
	c.authAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordTokensIssued はトークンペアの発行を記録する。
func (c *Collector) RecordTokensIssued(reason string) {
	c.tokensIssued.WithLabelValues(reason).Inc()
}

// RecordOAuthResolution はOAuthアイデンティティ解決の経路を記録する。
func (c *Collector) RecordOAuthResolution(provider, outcome string) {
	c.oauthResolutions.WithLabelValues(provider, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpResponses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)     {}
func (Nop) RecordTokensIssued(string)            {}
func (Nop) RecordOAuthResolution(string, string) {}
func (Nop) RecordHTTPStatus(int)                 {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
