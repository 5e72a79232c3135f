package connector

import "errors"

var (
	// ErrNoCredentials is returned when a connector has no API
	// credentials configured. The orchestrator treats this as a skip
	// of that source, not a failure of the run.
	ErrNoCredentials = errors.New("no API credentials configured")

	// ErrRetriesExhausted is returned when every retry attempt failed
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrBadResponse is returned when the provider answers with a
	// payload that cannot be decoded
	ErrBadResponse = errors.New("malformed provider response")
)
