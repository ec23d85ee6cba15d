package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/glide/pkg/events"
	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/metrics"
	"github.com/cuemby/glide/pkg/readiness"
	"github.com/cuemby/glide/pkg/rollout"
	"github.com/cuemby/glide/pkg/tracker"
	"github.com/cuemby/glide/pkg/types"
	"github.com/spf13/cobra"
)

var rolloutRunCmd = &cobra.Command{
	Use:   "run -f RUNSPEC.yaml",
	Short: "Run a replacement controller against an in-memory demo cluster",
	Long: `run seeds an in-memory instance tracker with the requested number of
instances on an older version, then drives a replacement controller to the
RunSpec's target version using in-memory stand-ins for the kill service and
launch queue, and the gRPC health-protocol readiness executor for any
readiness checks. It prints one log line per phase
transition, kill, launch and readiness result until the rollout reaches a
terminal condition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		specPath, _ := cmd.Flags().GetString("file")
		seedOld, _ := cmd.Flags().GetInt("seed-old")
		seedVersion, _ := cmd.Flags().GetString("seed-old-version")
		jsonLogs, _ := cmd.Flags().GetBool("json")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		if specPath == "" {
			return fmt.Errorf("-f/--file is required")
		}

		log.Init(log.Config{Level: log.InfoLevel, JSONOutput: jsonLogs})

		runSpec, err := loadRunSpec(specPath)
		if err != nil {
			return err
		}

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Logger.Error().Err(err).Msg("metrics server stopped")
				}
			}()
			defer srv.Close()
			log.Logger.Info().Str("addr", metricsAddr).Msg("metrics listening")
		}

		instanceTracker := tracker.NewInMemory()
		for i := 0; i < seedOld; i++ {
			now := time.Now()
			instanceTracker.Seed(runSpec.PathID, types.Instance{
				InstanceID:     fmt.Sprintf("seed-%s-%d", seedVersion, i),
				RunSpecVersion: seedVersion,
				State: types.InstanceState{
					Goal:        types.GoalRunning,
					Condition:   types.ConditionRunning,
					ActiveSince: now,
					Since:       now,
				},
			})
		}

		bus := events.NewBroker()
		bus.Start()
		defer bus.Stop()

		infra := demoInfra{tracker: instanceTracker, bus: bus, pathID: runSpec.PathID}

		done := make(chan error, 1)
		ctrl := rollout.NewController(
			loggingDeploymentManager{},
			loggingStatusReporter{pathID: runSpec.PathID},
			infra,
			infra,
			instanceTracker,
			bus,
			readiness.NewGRPCExecutor(),
			runSpec,
			done,
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		ctrl.Start(ctx)
		log.Logger.Info().Str("path_id", runSpec.PathID).Str("target_version", runSpec.Version).
			Int("target_instances", runSpec.TargetInstances).Msg("rollout started")

		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("rollout did not complete: %w", err)
			}
			fmt.Println("rollout complete")
			return nil
		case <-sigCh:
			cancel()
			<-done
			return fmt.Errorf("rollout interrupted")
		}
	},
}

func init() {
	rolloutRunCmd.Flags().StringP("file", "f", "", "path to a RunSpec YAML file")
	rolloutRunCmd.Flags().Int("seed-old", 0, "number of Running instances to seed on seed-old-version before starting")
	rolloutRunCmd.Flags().String("seed-old-version", "v1", "version string to seed the pre-existing instances with")
	rolloutRunCmd.Flags().Bool("json", false, "emit structured JSON logs instead of console output")
	rolloutRunCmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
}

// loggingStatusReporter prints every phase transition as it happens, in
// addition to feeding the glide_rollout_phase gauge.
type loggingStatusReporter struct {
	pathID string
}

func (r loggingStatusReporter) PhaseChanged(pathID, phase string) {
	rollout.MetricsStatusReporter{}.PhaseChanged(pathID, phase)
	log.Logger.Info().Str("path_id", pathID).Str("phase", phase).Msg("phase changed")
}

// loggingDeploymentManager logs every readiness result the controller
// observes; a real deployment manager would instead update traffic routing.
type loggingDeploymentManager struct{}

func (loggingDeploymentManager) ReadinessCheckUpdate(pathID string, result readiness.Result) {
	log.Logger.Info().Str("path_id", pathID).Bool("ready", result.Ready).
		Str("message", result.Message).Msg("readiness result")
}
