package observability

// MetricKey names an instrument independently of the backend that registers it.
type MetricKey string

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	// MSideEffectFailures counts best-effort steps that failed without failing the caller
	// (cart clear, notification, event publish, relay).
	MSideEffectFailures MetricKey = "side_effect_failures_total"
)
