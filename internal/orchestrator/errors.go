package orchestrator

import "errors"

var (
	// ErrInvalidConfig is returned when a run config fails validation
	// at submit time; no run record is created
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrRunNotFound is returned when a run is not found
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyStarted is returned when starting a run that is
	// already running or terminal
	ErrRunAlreadyStarted = errors.New("run already started")

	// ErrRunNotRunning is returned when cancelling a run that is not
	// in progress
	ErrRunNotRunning = errors.New("run not running")

	// ErrNoDataExtracted is returned when every connector failed or
	// was skipped
	ErrNoDataExtracted = errors.New("no data extracted")

	// ErrNoValidData is returned when reconciliation rejects every
	// record
	ErrNoValidData = errors.New("no valid data after transform")
)
