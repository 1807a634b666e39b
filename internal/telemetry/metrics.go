// Package telemetry provides application-level observability for Volunteer Hub.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<VH_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Team approval outcomes and per-member provisioning outcomes
//   - Welcome email delivery counters
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/team-applications/:id/approve),
// never the raw URL, to keep cardinality bounded.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Approval workflow metrics.
//
// ApprovalsTotal counts every approval invocation by outcome: "approved",
// "forbidden", "not_found", "already_processed", "invalid_state",
// "provisioning_failed" or "error".
//
// MemberProvisioningTotal counts per-member results: "created" (new identity
// account), "reused" (existing account found by email), "failed" or "skipped"
// (member entry without a name or email).
//
// LinkageWriteErrorsTotal counts failed best-effort upserts by table
// ("team_memberships", "signup_sources").
//
// Example PromQL queries:
//   - Approval failure ratio:  sum(rate(team_approvals_total{outcome!="approved"}[1d])) / sum(rate(team_approvals_total[1d]))
//   - Alert on linkage drift:  increase(approval_linkage_write_errors_total[1h]) > 0
var (
	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "team_approvals_total",
			Help: "Total number of team application approval attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	ApprovalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "team_approval_duration_seconds",
			Help:    "Duration of a complete team approval workflow run.",
			Buckets: prometheus.DefBuckets,
		},
	)

	MemberProvisioningTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "member_provisioning_total",
			Help: "Total number of team members processed during approval, by result.",
		},
		[]string{"result"},
	)

	LinkageWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_linkage_write_errors_total",
			Help: "Total number of failed membership or signup-source upserts, by table.",
		},
		[]string{"table"},
	)
)

// WelcomeEmailsTotal counts welcome notifications by result ("sent" or "failed").
// A rising failed count with a flat sent count usually means SMTP is down.
var WelcomeEmailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "welcome_emails_total",
		Help: "Total number of welcome emails attempted for newly provisioned accounts, by result.",
	},
	[]string{"result"},
)

// DBOpenConnections tracks the number of open connections held by the
// sql.DB pool, sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens on shutdown.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
