package service

import "errors"

var (
	// ErrNotAuthenticated: no verified caller identity for an operation
	// that requires one.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidTransition: an attempt in a terminal status was asked to
	// transition again (grade an abandoned attempt, abandon a graded one).
	// Logged as a routing inconsistency; never escalated to the external
	// trigger, since redelivery must not cascade failures.
	ErrInvalidTransition = errors.New("invalid attempt transition")

	// ErrScenarioNotFound: the requested scenario id has no definition file.
	ErrScenarioNotFound = errors.New("scenario not found")
)
