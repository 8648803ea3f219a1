package domain

import (
	"context"
	"time"
)

// NotificationService defines the interface for notification services
type NotificationService interface {
	// SendSuccess sends the end-of-run summary
	SendSuccess(ctx context.Context, stats Statistics) error

	// SendPeriodFailure reports a period that produced no dataset because of an error
	SendPeriodFailure(ctx context.Context, failure PeriodFailure) error

	// SendError sends an error notification for a run that could not start
	SendError(ctx context.Context, err error) error
}

// PeriodFailure is one failed or aborted period.
type PeriodFailure struct {
	Period string
	Status RunStatus
	// Reason is the short cause recorded in the run history, e.g. "no evictable partition".
	Reason string
	Err    error
}

// Statistics holds the final statistics for the run
type Statistics struct {
	PeriodsGenerated int
	PeriodsEmpty     int
	PeriodsFailed    int
	PeriodsSkipped   int
	Records          int
	Uploads          int
	CacheHits        int
	Fallbacks        int
	ItemFailures     int
	Evictions        int
	Duration         time.Duration
}
