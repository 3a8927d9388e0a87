// Package apperrors holds the sentinel errors shared across the client.
package apperrors

import "errors"

// Form errors represent rejected edits or submissions.
var (
	// ErrValidation indicates the form failed native constraints or vocabulary checks.
	ErrValidation = errors.New("form validation failed")

	// ErrEntryNotFound indicates an update or removal addressed an entry id that no longer exists.
	ErrEntryNotFound = errors.New("form entry not found")

	// ErrUnknownEntryKind indicates a collection name other than commodities, locations or restrictions.
	ErrUnknownEntryKind = errors.New("unknown form entry kind")
)

// Submission errors represent lifecycle violations of the coordinator.
var (
	// ErrSubmissionInFlight indicates a submit was attempted while another one is running.
	ErrSubmissionInFlight = errors.New("a submission is already in flight")

	// ErrNoPlan indicates an operation needs a plan but none has been received yet.
	ErrNoPlan = errors.New("no plan available")
)

// Settings errors represent failures reading or writing settings files.
var (
	// ErrSettingsParse indicates the settings payload could not be decoded.
	ErrSettingsParse = errors.New("failed to parse settings")

	// ErrUnknownFormat indicates a settings file extension that is neither JSON nor YAML.
	ErrUnknownFormat = errors.New("unknown settings format")
)
