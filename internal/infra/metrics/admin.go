package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(adminCommandTotal, moderationActionsTotal)
}

var adminCommandTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_command_total",
		Help: "Tracks attempts to use admin commands.",
	},
	[]string{"command", "status"}, // status: 'authorized', 'unauthorized'
)

var moderationActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "moderation_actions_total",
		Help: "Applied moderation actions (ban, unban, resetmessages).",
	},
	[]string{"action"},
)

func IncAdminCommand(command, status string) {
	adminCommandTotal.WithLabelValues(norm(command), norm(status)).Inc()
}

func IncModeration(action string) {
	moderationActionsTotal.WithLabelValues(norm(action)).Inc()
}
