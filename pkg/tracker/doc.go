// Package tracker defines the Instance Tracker collaborator the
// controller consults for the authoritative view of instance state, and
// ships an in-memory reference implementation for tests and the demo CLI.
//
// The tracker is deliberately outside the controller's write path: the
// controller only ever proposes a Goal via SetGoal, and learns whether
// that stuck by watching events on the bus. Until that event arrives the
// controller's own shadow map holds an optimistic copy of the goal it
// wrote; see pkg/rollout's optimistic shadow map for why.
package tracker
