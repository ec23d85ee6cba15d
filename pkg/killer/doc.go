// Package killer defines the Kill Service collaborator: the thing that
// actually terminates an instance once the controller has decided it
// must go. The controller never retries a kill itself — spec.md §7
// leaves idempotency to the tracker/kill-service pair.
package killer
