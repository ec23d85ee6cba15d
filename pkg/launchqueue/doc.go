// Package launchqueue defines the Launch Queue collaborator: it accepts
// a request for n new instances of a RunSpec and returns the newly
// scheduled instance records once placement has happened. Placement
// itself is out of scope here — see spec.md §1's Non-goals — the queue
// only mints the records the controller needs to fold into its shadow.
package launchqueue
