package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records authentication outcomes for Prometheus.
type Collector struct {
	logins          *prometheus.CounterVec
	reissues        *prometheus.CounterVec
	resetCodeIssued prometheus.Counter
	resetCodeChecks *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "member_logins_total",
			Help: "Login attempts by method and result.",
		}, []string{"method", "result"}),
		reissues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "member_token_reissues_total",
			Help: "Refresh token reissue attempts by outcome.",
		}, []string{"outcome"}),
		resetCodeIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "member_reset_codes_issued_total",
			Help: "Password reset codes issued and dispatched.",
		}),
		resetCodeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "member_reset_code_checks_total",
			Help: "Password reset code checks by result.",
		}, []string{"verified"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "member_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.logins,
		c.reissues,
		c.resetCodeIssued,
		c.resetCodeChecks,
		c.rateLimited,
	)

	return c
}

func (c *Collector) ObserveLogin(method string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(method, result).Inc()
}

func (c *Collector) ObserveReissue(outcome string) {
	c.reissues.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveResetCodeIssued() {
	c.resetCodeIssued.Inc()
}

func (c *Collector) ObserveResetCodeCheck(verified bool) {
	c.resetCodeChecks.WithLabelValues(strconv.FormatBool(verified)).Inc()
}

func (c *Collector) ObserveRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
