package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the auth counters.
const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeInactive    = "inactive"
	outcomeMatched     = "matched"
	outcomeLinked      = "linked"
	outcomeCreated     = "created"
	outcomeExchangeErr = "exchange_error"
)

// Metrics counts authentication outcomes. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	oauthLogins   *prometheus.CounterVec
	tokenChecks   *prometheus.CounterVec
}

// NewMetrics creates the auth counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealbuddy",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Password login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mealbuddy",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Accounts created through registration.",
		}),
		oauthLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealbuddy",
			Subsystem: "auth",
			Name:      "oauth_logins_total",
			Help:      "Google logins by outcome (matched, linked, created, exchange_error).",
		}, []string{"outcome"}),
		tokenChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealbuddy",
			Subsystem: "auth",
			Name:      "token_checks_total",
			Help:      "Current-user resolutions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.logins, m.registrations, m.oauthLogins, m.tokenChecks)
	return m
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) registered() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Metrics) oauthLogin(outcome string) {
	if m == nil {
		return
	}
	m.oauthLogins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) tokenCheck(outcome string) {
	if m == nil {
		return
	}
	m.tokenChecks.WithLabelValues(outcome).Inc()
}
