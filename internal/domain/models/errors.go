package models

import "errors"

var (
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInvalidStrategy     = errors.New("invalid strategy name")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrStoreUnavailable    = errors.New("state store unavailable")
	ErrDeliveryFailed      = errors.New("delivery failed")
	ErrRendererUnavailable = errors.New("chart renderer unavailable")
	ErrNoDestinations      = errors.New("no destinations for strategy")
)
