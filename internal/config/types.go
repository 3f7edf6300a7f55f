// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/wiki-ci/wiki-ci/internal/container"
	"github.com/wiki-ci/wiki-ci/internal/runner"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// Config holds the resolved wiki-ci settings.
	Config struct {
		// RunID scopes image tags and database names. Generated when empty.
		RunID string `json:"run_id" mapstructure:"run_id"`
		// HostCwd is the working tree as the container engine sees it.
		HostCwd         string               `json:"host_cwd" mapstructure:"host_cwd"`
		Runner          runner.Backend       `json:"runner" mapstructure:"runner"`
		ContainerEngine container.EngineType `json:"container_engine" mapstructure:"container_engine"`
		Container       ContainerConfig      `json:"container" mapstructure:"container"`
		ResultsDir      string               `json:"results_dir" mapstructure:"results_dir"`
		E2E             E2EConfig            `json:"e2e" mapstructure:"e2e"`
		Readiness       ReadinessConfig      `json:"readiness" mapstructure:"readiness"`
		Release         ReleaseConfig        `json:"release" mapstructure:"release"`
		UI              UIConfig             `json:"ui" mapstructure:"ui"`
	}

	// ContainerConfig configures the container backend.
	ContainerConfig struct {
		User            string `json:"user" mapstructure:"user"`
		DatabaseImage   string `json:"database_image" mapstructure:"database_image"`
		ImageRepository string `json:"image_repository" mapstructure:"image_repository"`
	}

	// E2EConfig configures the Dev_E2E stage.
	E2EConfig struct {
		Browsers []string `json:"browsers" mapstructure:"browsers"`
		// Expiration is the token lifetime in seconds.
		Expiration int `json:"expiration" mapstructure:"expiration"`
	}

	// ReadinessConfig bounds polling of background services.
	ReadinessConfig struct {
		Attempts int           `json:"attempts" mapstructure:"attempts"`
		Backoff  time.Duration `json:"backoff" mapstructure:"backoff"`
	}

	// ReleaseConfig configures background server teardown.
	ReleaseConfig struct {
		Grace time.Duration `json:"grace" mapstructure:"grace"`
	}

	// UIConfig holds the defaults of the output flags.
	UIConfig struct {
		Verbose  bool `json:"verbose" mapstructure:"verbose"`
		Group    bool `json:"group" mapstructure:"group"`
		FailFast bool `json:"fail_fast" mapstructure:"fail_fast"`
		Headed   bool `json:"headed" mapstructure:"headed"`
	}

	// InvalidConfigError lists every field that failed validation.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Runner:          runner.BackendContainer,
		ContainerEngine: container.EngineTypeDocker,
		Container: ContainerConfig{
			DatabaseImage:   "postgres:16-alpine",
			ImageRepository: "wiki-ci",
		},
		ResultsDir: "test_results",
		E2E: E2EConfig{
			Browsers:   []string{"firefox", "chrome"},
			Expiration: 1000,
		},
		Readiness: ReadinessConfig{
			Attempts: runner.DefaultReadiness.Attempts,
			Backoff:  runner.DefaultReadiness.Backoff,
		},
		Release: ReleaseConfig{Grace: runner.DefaultReleaseGrace},
	}
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks constraints the schema cannot see, such as values that
// arrived through the environment.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Runner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ResultsDir == "" {
		errs = append(errs, errors.New("results_dir must not be empty"))
	}
	if c.E2E.Expiration <= 0 {
		errs = append(errs, fmt.Errorf("e2e.expiration must be positive, got %d", c.E2E.Expiration))
	}
	if c.Readiness.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("readiness.attempts must be positive, got %d", c.Readiness.Attempts))
	}
	if c.Readiness.Backoff <= 0 {
		errs = append(errs, fmt.Errorf("readiness.backoff must be positive, got %s", c.Readiness.Backoff))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// ReadinessPolicy converts the readiness settings for the runner package.
func (c *Config) ReadinessPolicy() runner.Readiness {
	return runner.Readiness{Attempts: c.Readiness.Attempts, Backoff: c.Readiness.Backoff}
}
