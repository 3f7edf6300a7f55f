// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wiki-ci/wiki-ci/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "wiki-ci"
	// ConfigFileName is the name of the config file looked up in the working directory.
	ConfigFileName = "wiki-ci.cue"
	// EnvPrefix prefixes every environment override, e.g. WIKI_CI_RESULTS_DIR.
	EnvPrefix = "WIKI_CI"
	// DotEnvFileName is loaded from the working directory when present.
	DotEnvFileName = ".env"

	runIDLength = 8
	// maxConfigFileSize guards against feeding huge files to the CUE evaluator.
	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

type (
	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath forces loading from a specific config file when set.
		ConfigFilePath string
		// Dir is searched for wiki-ci.cue and .env. Defaults to the working directory.
		Dir string
	}

	// Provider resolves the configuration of one run.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderFunc adapts a function to Provider.
	ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, error)
)

// FileProvider reads wiki-ci.cue, .env and WIKI_CI_* variables.
var FileProvider Provider = ProviderFunc(Load)

// Load implements Provider.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return f(ctx, opts)
}

// Load reads the configuration for opts.Dir: defaults, then the config
// file, then the environment.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadWithOptions performs option-driven config loading. It returns the
// resolved config file path, empty when only defaults and the environment
// were used.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	if err := loadDotEnv(filepath.Join(dir, DotEnvFileName)); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("load environment file").
			WithResource(filepath.Join(dir, DotEnvFileName)).
			WithSuggestion("Use KEY=value lines; quote values containing spaces").
			Wrap(err).
			BuildError()
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	// --config is used exclusively; a missing file is an error there but not
	// for the implicit lookup.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else if local := filepath.Join(dir, ConfigFileName); fileExists(local) {
		resolvedPath = local
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.RunID == "" {
		cfg.RunID = NewRunID()
	}
	if cfg.HostCwd == "" {
		cfg.HostCwd = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check WIKI_CI_* environment variables for typos").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// NewRunID returns a short random identifier for image tags and database names.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:runIDLength]
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("run_id", defaults.RunID)
	v.SetDefault("host_cwd", defaults.HostCwd)
	v.SetDefault("runner", string(defaults.Runner))
	v.SetDefault("container_engine", string(defaults.ContainerEngine))
	v.SetDefault("container.user", defaults.Container.User)
	v.SetDefault("container.database_image", defaults.Container.DatabaseImage)
	v.SetDefault("container.image_repository", defaults.Container.ImageRepository)
	v.SetDefault("results_dir", defaults.ResultsDir)
	v.SetDefault("e2e.browsers", defaults.E2E.Browsers)
	v.SetDefault("e2e.expiration", defaults.E2E.Expiration)
	v.SetDefault("readiness.attempts", defaults.Readiness.Attempts)
	v.SetDefault("readiness.backoff", defaults.Readiness.Backoff)
	v.SetDefault("release.grace", defaults.Release.Grace)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.group", defaults.UI.Group)
	v.SetDefault("ui.fail_fast", defaults.UI.FailFast)
	v.SetDefault("ui.headed", defaults.UI.Headed)
}

// loadDotEnv exports the variables of path that are not already set.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d exceeds limit of %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	// Concrete(false) because every field is optional.
	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	// Merging keeps defaults and lets the environment win.
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
