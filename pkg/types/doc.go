/*
Package types defines the data model shared by glide's rolling-replacement
controller and its external collaborators.

A RunSpec describes one version of a workload: a target instance count and
an upgrade strategy. An Instance is one running (or dying, or dead) copy of
a RunSpec, carrying a Goal (what the operator wants) separate from its
Condition (what has actually been observed). The controller in pkg/rollout
never mutates an Instance directly — it only proposes goals through the
Instance Tracker and reacts to Instance/health events reported back.
*/
package types
