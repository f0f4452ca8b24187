// Package workflows is the per-board status registry and transition table.
//
// Statuses are never deleted; they are deactivated. Transitions are directed
// edges between two statuses of one board, unique per ordered pair, and carry
// ordered guards and automations evaluated by the state machine.
//
// Snapshot returns a private deep copy of a board's workflow. Engines load one
// snapshot per operation and never re-query it mid-operation.
//
// Every write requires the admin role on the board.
package workflows
