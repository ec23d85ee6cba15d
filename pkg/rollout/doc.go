/*
Package rollout implements the replacement controller: the single-threaded
cooperative state machine that drives one RunSpec's instances from their
current version to a target version while honouring the ignition strategy's
capacity bounds and the runSpec's health/readiness gates.

The controller owns a buffered message channel (its mailbox) and a FIFO
stash. Exactly one phase handler runs at a time — updating, checking,
killing, or launching — and a message the current phase does not expect is
appended to the stash and redelivered once the controller returns to
updating. Everything that would block (tracker calls, kill-service calls,
launch-queue calls, readiness streams) runs on a background goroutine whose
completion re-enters the controller as a self-sent mailbox message; the
controller goroutine itself never performs blocking I/O.

See pkg/ignition for the pure calculator this package uses (pkg/proposition's
scaling proposition is a separate calculator that this package does not
call), pkg/tracker/pkg/killer/pkg/launchqueue/pkg/readiness for the
collaborators it drives, and pkg/events for the instance-event feed it
consumes.
*/
package rollout
