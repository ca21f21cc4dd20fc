package metrics

var (
	StoreOperations = NewCounterVec(Opts{
		Name: "calendar_store_operations_total",
		Help: "Event store calls by operation and result.",
	}, []string{"op", "result"})

	NotificationsShown = NewCounterVec(Opts{
		Name: "calendar_notifications_shown_total",
		Help: "Notifications displayed to users by severity.",
	}, []string{"severity"})

	ActiveSessions = NewGauge(Opts{
		Name: "calendar_active_sessions",
		Help: "Calendar sessions with an open stream.",
	})
)

// ObserveStore records the outcome of one store call.
func ObserveStore(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(op, result).Inc()
}
