package http

import "time"

// AckResponse is written once an alert is admitted.
type AckResponse struct {
	Status string `json:"status" example:"received"`
}

// ErrorResponse wraps rejected requests. Status mirrors the HTTP status so
// senders that only log the body still see it.
type ErrorResponse struct {
	Status  int         `json:"status" example:"400"`
	Message string      `json:"message" example:"Bad Request"`
	Data    []*AppError `json:"data,omitempty"`
}

// HealthResponse is served on /health.
type HealthResponse struct {
	Status         string    `json:"status" example:"healthy"`
	RedisConnected bool      `json:"redis_connected"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// ServiceInfo is served on /.
type ServiceInfo struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Webhook string `json:"webhook"`
}

// ValidationError is one failed validation rule.
type ValidationError struct {
	Code    string `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string `json:"field,omitempty" example:"ticker"`
	Message string `json:"message,omitempty" example:"ticker is required"`
}
