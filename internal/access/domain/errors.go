package domain

import "errors"

var (
	// ErrCapacityExceeded indicates the active ceiling has been reached.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrSalesBlocked indicates the admission flag is closed.
	ErrSalesBlocked = errors.New("sales blocked")

	// ErrTrialUnavailable indicates the subject cannot start a trial.
	ErrTrialUnavailable = errors.New("trial unavailable")

	// ErrAlreadyActive indicates the subject already holds an active entitlement.
	ErrAlreadyActive = errors.New("entitlement already active")

	// ErrExpired indicates the entitlement has no remaining time.
	ErrExpired = errors.New("entitlement expired")

	// ErrNotFound indicates no entitlement record exists for the subject.
	ErrNotFound = errors.New("entitlement not found")

	// ErrGrantedNotConverged indicates the entitlement was persisted but the
	// proxy has not picked it up yet.
	ErrGrantedNotConverged = errors.New("entitlement granted but proxy not converged")

	// ErrDuplicateCredential indicates a credential collision in storage.
	ErrDuplicateCredential = errors.New("duplicate credential")

	// ErrInvalidGrant indicates a malformed grant request.
	ErrInvalidGrant = errors.New("invalid grant request")
)
