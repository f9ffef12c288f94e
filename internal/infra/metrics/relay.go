package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		eventsReceivedTotal,
		messagesRelayedTotal,
		messagesDroppedTotal,
		bannedBlockedTotal,
		sendFailuresTotal,
		usersCreatedTotal,
		storeErrorsTotal,
	)
}

var (
	eventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Inbound events by label (/command or message).",
		},
		[]string{"event"},
	)

	messagesRelayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "User messages accepted and relayed to admins.",
		},
	)

	messagesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "User messages dropped because the quota was exhausted.",
		},
	)

	bannedBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_banned_blocked_total",
			Help: "Events from banned users stopped at the ban gate.",
		},
	)

	sendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Outbound messages that could not be delivered.",
		},
	)

	usersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_users_created_total",
			Help: "Profiles created on first contact.",
		},
	)

	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_store_errors_total",
			Help: "User store failures by operation.",
		},
		[]string{"op"},
	)
)

func IncEvent(label string) {
	eventsReceivedTotal.WithLabelValues(norm(label)).Inc()
}

func IncRelayed() { messagesRelayedTotal.Inc() }

func IncDropped() { messagesDroppedTotal.Inc() }

func IncBannedBlocked() { bannedBlockedTotal.Inc() }

func IncSendFailure() { sendFailuresTotal.Inc() }

func IncUserCreated() { usersCreatedTotal.Inc() }

func IncStoreError(op string) {
	storeErrorsTotal.WithLabelValues(norm(op)).Inc()
}
