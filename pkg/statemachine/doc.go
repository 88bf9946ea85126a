// Package statemachine implements guarded finite state machines whose
// transition tables are shared between many records.
//
// A Table is built once from options and never changes afterwards. Machines
// are cheap views over a table that only carry a current state, so a record
// loaded from storage gets its own machine positioned at the stored state:
//
//	table := statemachine.MustNewTable(
//		statemachine.WithTransition(Pending, Running, Start),
//		statemachine.WithTransition(Running, Done, Finish,
//			statemachine.WithGuard(hasResult),
//			statemachine.WithAction(storeResult),
//		),
//	)
//
//	m := table.Machine(record.State)
//	if err := m.Fire(ctx, Finish, record); err != nil {
//		// IsNoTransitionAvailableError or IsTransitionRejectedError
//	}
//
// Several transitions may share a from state and event; the first one whose
// guards all pass is taken. Actions run in order before the state changes and
// any action error aborts the transition.
package statemachine
