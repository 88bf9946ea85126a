package statemachine

import "fmt"

// Option adds transitions while a table is built.
type Option func(*Table) error

// TransitionOption attaches guards or actions to one transition.
type TransitionOption func(*Transition)

// TransitionDef is a transition given as data, for tables generated in a loop.
type TransitionDef struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(t *Table) error {
		tr := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&tr)
		}
		return t.add(tr)
	}
}

func WithTransitions(defs []TransitionDef) Option {
	return func(t *Table) error {
		for i, d := range defs {
			err := t.add(Transition{From: d.From, To: d.To, Event: d.Event, Guards: d.Guards, Actions: d.Actions})
			if err != nil {
				return fmt.Errorf("transition %d %s -> %s on %s: %w", i, name(d.From), name(d.To), name(d.Event), err)
			}
		}
		return nil
	}
}

// WithGuard ignores nil guards.
func WithGuard(guards ...Guard) TransitionOption {
	return func(tr *Transition) {
		for _, g := range guards {
			if g != nil {
				tr.Guards = append(tr.Guards, g)
			}
		}
	}
}

// WithAction ignores nil actions.
func WithAction(actions ...Action) TransitionOption {
	return func(tr *Transition) {
		for _, a := range actions {
			if a != nil {
				tr.Actions = append(tr.Actions, a)
			}
		}
	}
}

func name(v interface{ Name() string }) string {
	if v == nil {
		return "<nil>"
	}
	return v.Name()
}
