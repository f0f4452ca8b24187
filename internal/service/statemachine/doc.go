// Package statemachine applies status changes to tasks.
//
// States are the board's workflow statuses; edges are its transitions. A call
// names a target status and optionally the transition to take:
//   - With a transition id, the transition must lead from the task's current
//     status to the target.
//   - Without one, the edge current->target is looked up and its guards apply.
//   - When no edge exists the call is an unguarded set, governed by Policy.
//   - A task whose status never resolved to a workflow status (legacy text)
//     is an untyped origin: an editor may move it into any active status.
//
// Every guard is evaluated; any failure rejects the call with a
// GuardViolation naming each failed guard, and nothing is written.
//
// Auditing:
//   - A successful change writes exactly one history row in the same unit of
//     work as the status update.
//   - Setting the current status again is a no-op and writes nothing.
//
// Automations run after commit in a fixed order (assign_creator, move_to_list,
// notify_assignees). Their failures are logged and never returned.
package statemachine
