package gokea

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keagw",
		Name:      "kea_commands_total",
		Help:      "Control agent commands by command name and outcome.",
	}, []string{"command", "status"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keagw",
		Name:      "kea_command_retries_total",
		Help:      "Retried control agent round trips.",
	})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keagw",
		Name:      "kea_fallbacks_total",
		Help:      "Operations that fell back to a slower command tier.",
	}, []string{"operation"})
)
