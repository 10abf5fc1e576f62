package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	MConflictRetries      MetricKey = "inventory_conflict_retries_total"
	MLowStockAlerts       MetricKey = "inventory_low_stock_alerts_total"
	MReservationsExpired  MetricKey = "sweeper_reservations_expired_total"
	MReservationsPurged   MetricKey = "sweeper_reservations_purged_total"
	MCompensationFailures MetricKey = "saga_compensation_failures_total"
	MOutboxRelayed        MetricKey = "outbox_relayed_total"
)
