package enums

import (
	"fmt"
	"strings"
)

// OutboxDLQErrorReason records why the notifier gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable covers rows the notifier cannot decode or route.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUndeliverable covers messages the sink or the recipient refused, such
	// as an order without a customer email.
	OutboxDLQReasonUndeliverable OutboxDLQErrorReason = "undeliverable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUndeliverable:
		return true
	}
	return false
}

// Requeueable reports whether staff may send a dead-lettered row back to the notifier.
// Rows that failed to decode would fail the same way again.
func (r OutboxDLQErrorReason) Requeueable() bool {
	return r.IsValid() && r != OutboxDLQReasonNonRetryable
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	reason := OutboxDLQErrorReason(strings.ToLower(strings.TrimSpace(value)))
	if !reason.IsValid() {
		return "", fmt.Errorf("invalid dead letter reason %q", value)
	}
	return reason, nil
}
