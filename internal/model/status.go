package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a work item is asked to move to a
// status that the lifecycle does not allow from its current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the processing state of a work item.
//
// Statuses are stored as text in the database. The zero value is not a
// valid status; new items always start as StatusPending.
type Status string

const (
	// StatusPending marks an item discovered by the list spider and not yet fetched.
	StatusPending Status = "pending"

	// StatusSuccess marks an item whose detail record has been persisted.
	// It is terminal.
	StatusSuccess Status = "success"

	// StatusFailed marks an item whose fetch failed. Failed items are not
	// retried automatically; an operator requeues them.
	StatusFailed Status = "failed"
)

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusPending: {StatusSuccess, StatusFailed},
	StatusFailed:  {StatusPending},
}

// String returns the status as stored.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an item may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status from which next is reachable.
// The database layer uses this to guard updates in a single statement.
func SourcesOf(next Status) []Status {
	var sources []Status
	for _, from := range []Status{StatusPending, StatusSuccess, StatusFailed} {
		if from.CanTransitionTo(next) {
			sources = append(sources, from)
		}
	}
	return sources
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}
