package statemachine

import "context"

type State interface {
	Name() string
}

type Event interface {
	Name() string
}

// Guard vetoes a transition by returning false.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Action runs after the guards pass and before the state changes. An error
// aborts the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// allows reports whether every guard of t passes.
func (t Transition) allows(ctx context.Context, from State, event Event, data any) bool {
	for _, guard := range t.Guards {
		if !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}

// StringState is a State backed by its name.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event backed by its name.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }
