package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportai_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sportai_lockouts_total",
		Help: "Accounts locked after repeated failed logins.",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sportai_active_sessions",
		Help: "Sessions currently held by the session store.",
	})

	toolsLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sportai_tools",
			Help: "Tool modules by load state.",
		},
		[]string{"state"},
	)

	licenseValid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sportai_license_valid",
		Help: "1 while the installed license validates, 0 otherwise.",
	})

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			loginsTotal, lockoutsTotal, activeSessions, toolsLoaded, licenseValid,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts a login attempt. result is one of success, failure, locked.
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// ObserveLockout counts an account transitioning into lockout.
func ObserveLockout() {
	lockoutsTotal.Inc()
}

// SetActiveSessions records the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// SetToolsLoaded records the module loader outcome.
func SetToolsLoaded(loaded, failed int) {
	toolsLoaded.WithLabelValues("loaded").Set(float64(loaded))
	toolsLoaded.WithLabelValues("failed").Set(float64(failed))
}

// SetLicenseValid records the last license validation result.
func SetLicenseValid(ok bool) {
	if ok {
		licenseValid.Set(1)
		return
	}
	licenseValid.Set(0)
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-resource path segments so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	for _, prefix := range []string{"/v1/tools/", "/v1/features/"} {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) && !strings.Contains(p[len(prefix):], "/") {
			return prefix + ":id"
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
