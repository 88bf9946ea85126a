package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Table is an immutable transition table, safe for concurrent use.
type Table struct {
	// from state name -> event name -> candidates in definition order
	transitions map[string]map[string][]Transition
}

func NewTable(opts ...Option) (*Table, error) {
	t := &Table{transitions: make(map[string]map[string][]Transition)}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNewTable panics when an option fails. Meant for package-level tables.
func MustNewTable(opts ...Option) *Table {
	t, err := NewTable(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: build table: %v", err))
	}
	return t
}

func (t *Table) add(tr Transition) error {
	if tr.From == nil || tr.To == nil || tr.Event == nil {
		return ErrInvalidTransition
	}
	byEvent, ok := t.transitions[tr.From.Name()]
	if !ok {
		byEvent = make(map[string][]Transition)
		t.transitions[tr.From.Name()] = byEvent
	}
	byEvent[tr.Event.Name()] = append(byEvent[tr.Event.Name()], tr)
	return nil
}

// Defined reports whether any transition leaves from on event, guards aside.
func (t *Table) Defined(from State, event Event) bool {
	if from == nil || event == nil {
		return false
	}
	return len(t.transitions[from.Name()][event.Name()]) > 0
}

// Machine returns a machine over t positioned at current.
func (t *Table) Machine(current State) *Machine {
	if current == nil {
		panic(ErrInvalidState)
	}
	return &Machine{table: t, initial: current, current: current}
}

// lookup returns the first transition whose guards pass.
func (t *Table) lookup(ctx context.Context, from State, event Event, data any) (Transition, error) {
	candidates := t.transitions[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return Transition{}, &ErrNoTransitionAvailable{StateName: from.Name(), EventName: event.Name()}
	}
	for _, tr := range candidates {
		if tr.allows(ctx, from, event, data) {
			return tr, nil
		}
	}
	return Transition{}, &ErrTransitionRejected{StateName: from.Name(), EventName: event.Name()}
}

// Machine tracks one record's state over a shared Table.
type Machine struct {
	table   *Table
	initial State

	mu      sync.RWMutex
	current State
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire takes the first transition for event whose guards pass, runs its
// actions and moves to its target state.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tr, err := m.table.lookup(ctx, m.current, event, data)
	if err != nil {
		return err
	}
	for _, action := range tr.Actions {
		if err := action(ctx, m.current, tr.To, event, data); err != nil {
			return fmt.Errorf("statemachine: action on %s -> %s: %w", m.current.Name(), tr.To.Name(), err)
		}
	}
	m.current = tr.To
	return nil
}

// CanFire runs the guards without the actions.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := m.table.lookup(ctx, m.current, event, data)
	return err == nil
}

// Reset moves the machine back to the state it was created at.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}
