package metrics

import (
	"regexp"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LoginTotal counts login attempts by result (success, not_found, bad_password, error).
	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// RegistrationTotal counts registration attempts by result (created, duplicate, error).
	RegistrationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts by result",
		},
		[]string{"result"},
	)

	// UsersTotal is the number of user rows, refreshed by the stats collector.
	UsersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "users_total",
			Help: "Number of user accounts",
		},
	)

	// UsersActive is the number of users with is_active set, refreshed by the stats collector.
	UsersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "users_active",
			Help: "Number of active user accounts",
		},
	)
)

var numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)

func init() {
	prometheus.MustRegister(RequestDuration, RequestTotal, LoginTotal, RegistrationTotal, UsersTotal, UsersActive)
}

// NormalizePath reduces label cardinality by replacing numeric path segments
// with {id}, e.g. /users/123 -> /users/{id}.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLogin increments the login counter for the given result.
func RecordLogin(result string) {
	LoginTotal.WithLabelValues(result).Inc()
}

// RecordRegistration increments the registration counter for the given result.
func RecordRegistration(result string) {
	RegistrationTotal.WithLabelValues(result).Inc()
}

// SetUserCounts updates the user gauges. Called by the stats collector.
func SetUserCounts(total, active int) {
	UsersTotal.Set(float64(total))
	UsersActive.Set(float64(active))
}
