package model

import "fmt"

// ValidationError reports malformed input rejected at an ingestion boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnsupportedBrokerError is returned for broker names with no registered adapter.
type UnsupportedBrokerError struct {
	Broker string
}

func (e *UnsupportedBrokerError) Error() string {
	return fmt.Sprintf("unsupported broker: %s", e.Broker)
}

// UpstreamFetchError wraps a failure to retrieve data from a broker.
type UpstreamFetchError struct {
	Broker string
	Op     string // "authenticate", "holdings", "transactions", "health"
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Broker, e.Op, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }
