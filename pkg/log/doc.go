/*
Package log wraps github.com/rs/zerolog for glide's structured logging.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	rolloutLog := log.WithComponent("rollout")
	rolloutLog.Info().Str("run_spec", spec.Version).Msg("phase transition")

WithRunSpec and WithInstance attach the identifiers a reader most often
needs to correlate a rollout's log lines: the (pathID, version) pair and
the instanceID a given line concerns.
*/
package log
