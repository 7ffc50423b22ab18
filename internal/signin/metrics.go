package signin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	signinStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signin_started_total",
		Help: "Sign-in flows started, by provider.",
	}, []string{"provider"})

	signinCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signin_completed_total",
		Help: "Sign-in callbacks handled, by provider and outcome (success, unauthorized, error).",
	}, []string{"provider", "outcome"})
)
