// Package monitoring 提供 Prometheus 指标。
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// SMTP 会话指标
	SMTPConnectionsTotal  prometheus.Counter
	SMTPConnectionsActive prometheus.Gauge
	SMTPCommandsTotal     *prometheus.CounterVec
	SMTPSessionFaults     prometheus.Counter

	// 邮件指标
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec

	// 邮箱指标
	MailboxesCreated prometheus.Counter
	MailboxesDeleted prometheus.Counter
	MailboxesExpired prometheus.Counter
}

// NewMetrics 创建监控指标。promauto 会自动完成注册。
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SMTPConnectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempbox_smtp_connections_total",
				Help: "Total number of accepted SMTP connections",
			},
		),

		SMTPConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempbox_smtp_connections_active",
				Help: "Number of currently open SMTP connections",
			},
		),

		SMTPCommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempbox_smtp_commands_total",
				Help: "Total number of SMTP commands processed",
			},
			[]string{"command"},
		),

		SMTPSessionFaults: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempbox_smtp_session_faults_total",
				Help: "Total number of recovered per-command session faults",
			},
		),

		MessagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempbox_messages_received_total",
				Help: "Total number of messages persisted",
			},
		),

		MessagesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempbox_messages_dropped_total",
				Help: "Total number of inbound messages dropped",
			},
			[]string{"reason"},
		),

		MailboxesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempbox_mailboxes_created_total",
				Help: "Total number of mailboxes created",
			},
		),

		MailboxesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempbox_mailboxes_deleted_total",
				Help: "Total number of mailboxes deleted",
			},
		),

		MailboxesExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tempbox_mailboxes_expired_total",
				Help: "Total number of mailboxes removed by the cleanup task",
			},
		),
	}
}

// HTTPHandler 返回 Prometheus 指标端点处理器。
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
