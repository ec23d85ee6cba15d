package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/glide/pkg/types"
	"gopkg.in/yaml.v3"
)

// runSpecFile is the on-disk YAML envelope for a RunSpec. It mirrors
// types.RunSpec field for field, in snake_case, so the demo driver never
// needs to carry a second copy of the domain's invariants.
type runSpecFile struct {
	PathID          string             `yaml:"path_id"`
	Version         string             `yaml:"version"`
	TargetInstances int                `yaml:"target_instances"`
	IsResident      bool               `yaml:"is_resident"`
	UpgradeStrategy upgradeStrategyDTO `yaml:"upgrade_strategy"`
	HealthCheck     *healthCheckDTO    `yaml:"health_check"`
	ReadinessChecks []readinessDTO     `yaml:"readiness_checks"`
}

type upgradeStrategyDTO struct {
	MinimumHealthCapacity float64 `yaml:"minimum_health_capacity"`
	MaximumOverCapacity   float64 `yaml:"maximum_over_capacity"`
}

type healthCheckDTO struct {
	Name     string        `yaml:"name"`
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

type readinessDTO struct {
	Name    string `yaml:"name"`
	Target  string `yaml:"target"`
	Service string `yaml:"service"`
}

func loadRunSpec(path string) (types.RunSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.RunSpec{}, fmt.Errorf("reading run spec: %w", err)
	}

	var file runSpecFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return types.RunSpec{}, fmt.Errorf("parsing run spec: %w", err)
	}

	if file.PathID == "" {
		return types.RunSpec{}, fmt.Errorf("run spec: path_id is required")
	}
	if file.Version == "" {
		return types.RunSpec{}, fmt.Errorf("run spec: version is required")
	}
	if file.TargetInstances <= 0 {
		return types.RunSpec{}, fmt.Errorf("run spec: target_instances must be > 0")
	}

	runSpec := types.RunSpec{
		PathID:          file.PathID,
		Version:         file.Version,
		TargetInstances: file.TargetInstances,
		IsResident:      file.IsResident,
		UpgradeStrategy: types.UpgradeStrategy{
			MinimumHealthCapacity: file.UpgradeStrategy.MinimumHealthCapacity,
			MaximumOverCapacity:   file.UpgradeStrategy.MaximumOverCapacity,
		},
	}

	if file.HealthCheck != nil {
		runSpec.HealthCheck = &types.HealthCheckSpec{
			Name:     file.HealthCheck.Name,
			Timeout:  file.HealthCheck.Timeout,
			Interval: file.HealthCheck.Interval,
		}
	}

	for _, r := range file.ReadinessChecks {
		runSpec.ReadinessChecks = append(runSpec.ReadinessChecks, types.ReadinessCheckSpec{
			Name:    r.Name,
			Target:  r.Target,
			Service: r.Service,
		})
	}

	return runSpec, nil
}
