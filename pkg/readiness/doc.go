/*
Package readiness provides the per-instance subscription registry of
spec.md §4.3 and a Readiness Check Executor implementation that speaks
the standard gRPC health-checking protocol.

A registry entry is keyed by (taskID, checkName); its value is the
cancellation handle for the running probe stream. Completion of a stream
delivers exactly one onStreamDone callback, logged but never fatal on
error — readiness is best-effort evidence, compensated for by the health
check and by eventual re-selection in the controller's ScheduleReadiness
step.
*/
package readiness
