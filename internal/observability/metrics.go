package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	validationRuns   *CounterVec
	validationIssues *CounterVec
	recoveries       *CounterVec
	retryEscalations *CounterVec
	policyViolations *CounterVec
	attemptsAppended *Counter
	qaDecisions      *CounterVec
	jobEvents        *CounterVec
	notifications    *CounterVec
	artifactResolves *CounterVec
	sseClients       *Gauge
	dbStats          *GaugeVec
	redisUp          *Gauge
	redisPing        *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init installs the process-wide registry when METRICS_ENABLED is set. A nil
// *Metrics is valid everywhere and records nothing.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("tf_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"tf_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		apiInflight:      NewGauge("tf_api_inflight_requests", "In-flight API requests."),
		validationRuns:   NewCounterVec("tf_pipeline_validations_total", "Pipeline validations by result.", []string{"result"}),
		validationIssues: NewCounterVec("tf_validation_issues_total", "Illegal pipeline states detected by code/severity.", []string{"code", "severity"}),
		recoveries:       NewCounterVec("tf_pipeline_recoveries_total", "Recoveries applied by issue code.", []string{"code"}),
		retryEscalations: NewCounterVec("tf_retry_escalations_total", "Steps escalated to blocked_for_human.", []string{"step"}),
		policyViolations: NewCounterVec("tf_policy_violations_total", "Rejected caller operations by op.", []string{"op"}),
		attemptsAppended: NewCounter("tf_attempts_appended_total", "QA attempts appended."),
		qaDecisions:      NewCounterVec("tf_qa_decisions_total", "QA decisions recorded.", []string{"decision"}),
		jobEvents:        NewCounterVec("tf_job_events_total", "Job events appended by class.", []string{"class"}),
		notifications:    NewCounterVec("tf_notifications_total", "Notifications routed by type.", []string{"type"}),
		artifactResolves: NewCounterVec("tf_artifact_resolves_total", "Artifact URL resolutions by status.", []string{"status"}),
		sseClients:       NewGauge("tf_sse_clients", "Connected SSE clients."),
		dbStats:          NewGaugeVec("tf_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:          NewGauge("tf_redis_up", "Redis reachable (1/0)."),
		redisPing:        NewGauge("tf_redis_ping_seconds", "Redis ping latency."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.validationRuns, m.validationIssues, m.recoveries,
		m.retryEscalations, m.policyViolations,
		m.attemptsAppended, m.qaDecisions,
		m.jobEvents, m.notifications, m.artifactResolves,
		m.sseClients, m.dbStats, m.redisUp, m.redisPing,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAPI counts a request; a negative dur skips the latency histogram.
func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	if dur >= 0 {
		m.apiLatency.Observe(dur.Seconds(), method, route, status)
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveValidation records one validator run and each issue it found.
func (m *Metrics) ObserveValidation(valid bool, issues map[string]string) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.validationRuns.Inc(result)
	for code, severity := range issues {
		m.validationIssues.Inc(code, severity)
	}
}

func (m *Metrics) IncRecovery(code string) {
	if m == nil {
		return
	}
	m.recoveries.Inc(code)
}

func (m *Metrics) IncRetryEscalation(step string) {
	if m == nil {
		return
	}
	m.retryEscalations.Inc(step)
}

func (m *Metrics) IncPolicyViolation(op string) {
	if m == nil {
		return
	}
	m.policyViolations.Inc(op)
}

func (m *Metrics) IncAttemptAppended() {
	if m == nil {
		return
	}
	m.attemptsAppended.Inc()
}

func (m *Metrics) IncQADecision(decision string) {
	if m == nil {
		return
	}
	m.qaDecisions.Inc(decision)
}

func (m *Metrics) IncJobEvent(class string) {
	if m == nil {
		return
	}
	m.jobEvents.Inc(class)
}

func (m *Metrics) IncNotification(typ string) {
	if m == nil {
		return
	}
	m.notifications.Inc(typ)
}

func (m *Metrics) IncArtifactResolve(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.artifactResolves.Inc("ok")
		return
	}
	m.artifactResolves.Inc("error")
}

func (m *Metrics) SSEClientConnected() {
	if m == nil {
		return
	}
	m.sseClients.Inc()
}

func (m *Metrics) SSEClientDisconnected() {
	if m == nil {
		return
	}
	m.sseClients.Dec()
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
