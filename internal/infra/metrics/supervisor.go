package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(supervisorState, reconnectsTotal, restartsTotal, restartNoticesTotal)
}

var (
	supervisorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervisor_state",
			Help: "1 for the supervisor's current lifecycle state, 0 otherwise.",
		},
		[]string{"state"},
	)

	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_reconnects_total",
			Help: "Connection rebuilds by cause (error, restart).",
		},
		[]string{"cause"},
	)

	restartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supervisor_restart_requests_total",
			Help: "Operator-triggered restart requests.",
		},
	)

	restartNoticesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_restart_notices_total",
			Help: "Post-restart notices by outcome (sent, failed, abandoned).",
		},
		[]string{"outcome"},
	)
)

// SetSupervisorState marks current as the only active state among all.
func SetSupervisorState(current string, all ...string) {
	for _, s := range all {
		supervisorState.WithLabelValues(norm(s)).Set(0)
	}
	supervisorState.WithLabelValues(norm(current)).Set(1)
}

func IncReconnect(cause string) {
	reconnectsTotal.WithLabelValues(norm(cause)).Inc()
}

func IncRestartRequest() { restartsTotal.Inc() }

func IncRestartNotice(outcome string) {
	restartNoticesTotal.WithLabelValues(norm(outcome)).Inc()
}
