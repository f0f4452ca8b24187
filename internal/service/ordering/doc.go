// Package ordering keeps the tasks of every list densely positioned.
//
// The non-archived tasks of a list always occupy positions 0..k-1. Moves
// shift the affected range by one and then place the task:
//   - Within a list, moving down shifts (old, new] up by -1; moving up shifts
//     [new, old) by +1. A position past the end is clamped to k-1.
//   - Across lists, the gap in the source closes and a slot opens in the
//     destination. A position past the end is clamped to k.
//   - A batch move appends tasks to the destination in input order.
//
// Every call takes the per-list locks of the lists it touches, in sorted
// order, before opening its unit of work, and locks the list rows again
// inside it. All lists of one call belong to one board.
package ordering
