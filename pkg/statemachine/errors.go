package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: from, to and event are required")
	ErrInvalidEvent      = errors.New("statemachine: event is required")
	ErrInvalidState      = errors.New("statemachine: state is required")
)

// ErrNoTransitionAvailable means the table defines nothing for the state and event.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("statemachine: no transition from %q on %q", e.StateName, e.EventName)
}

// ErrTransitionRejected means transitions exist but every one was vetoed by a guard.
type ErrTransitionRejected struct {
	StateName string
	EventName string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("statemachine: transition from %q on %q rejected by guards", e.StateName, e.EventName)
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}
