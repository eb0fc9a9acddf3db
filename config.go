package testengine

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testengine/flags"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	ManifestFile string
	Profile      string
	Filter       []string
	Tags         []string
	ExcludeTags  []string

	Serial      bool
	Concurrency int // 0 = auto-determine

	Repetitions int
	RepeatUntil types.StopCondition

	DefaultTimeLimit       time.Duration
	MaxTimeLimit           time.Duration
	TraitPhaseCancellation types.TraitPhaseCancellation
	ExpectationChecked     bool

	RunInterval time.Duration // Interval between test runs
	RunOnce     bool          // Indicates if the service should exit after one test run

	ShowProgress     bool
	ProgressInterval time.Duration
	ReportDir        string // Run records and stability reports land here; empty disables them

	List bool // Print the plan and exit

	// Source overrides test discovery, mainly for tests.
	Source iter.Seq[registry.Record]
	// Output receives the results table; defaults to stdout.
	Output io.Writer

	Log log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	var manifest string
	if m := ctx.String(flags.Manifest.Name); m != "" {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", m, err)
		}
		manifest = abs
	}

	stop, err := types.ParseStopCondition(ctx.String(flags.RepeatUntil.Name))
	if err != nil {
		return nil, err
	}
	phase := types.SkipOnTraitCancellation
	if ctx.String(flags.TraitPhaseCancellation.Name) == "cancel" {
		phase = types.CancelOnTraitCancellation
	}

	var reportDir string
	if d := ctx.String(flags.ReportDir.Name); d != "" {
		reportDir, err = filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", d, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	cfg := &Config{
		ManifestFile:           manifest,
		Profile:                ctx.String(flags.Profile.Name),
		Filter:                 ctx.StringSlice(flags.Filter.Name),
		Tags:                   ctx.StringSlice(flags.Tags.Name),
		ExcludeTags:            ctx.StringSlice(flags.ExcludeTags.Name),
		Serial:                 ctx.Bool(flags.Serial.Name),
		Concurrency:            ctx.Int(flags.Concurrency.Name),
		Repetitions:            ctx.Int(flags.Repetitions.Name),
		RepeatUntil:            stop,
		DefaultTimeLimit:       ctx.Duration(flags.DefaultTimeLimit.Name),
		MaxTimeLimit:           ctx.Duration(flags.MaxTimeLimit.Name),
		TraitPhaseCancellation: phase,
		ExpectationChecked:     ctx.Bool(flags.ExpectationChecked.Name),
		RunInterval:            runInterval,
		RunOnce:                runInterval == 0,
		ShowProgress:           ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval:       ctx.Duration(flags.ProgressInterval.Name),
		ReportDir:              reportDir,
		List:                   ctx.Bool(flags.List.Name),
		Log:                    log,
	}
	if _, err := cfg.Configuration(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Configuration derives the per-run configuration value.
func (c *Config) Configuration() (types.Configuration, error) {
	conf := types.DefaultConfiguration()
	conf.Parallel = !c.Serial
	conf.MaxParallelism = c.Concurrency
	repetitions := c.Repetitions
	if repetitions == 0 {
		repetitions = 1
	}
	conf.Repetition = types.Repeating(c.RepeatUntil, repetitions)
	conf.DefaultTimeLimit = c.DefaultTimeLimit
	conf.MaxTimeLimit = c.MaxTimeLimit
	conf.TraitPhaseCancellation = c.TraitPhaseCancellation
	conf.DeliverExpectationChecked = c.ExpectationChecked
	if err := conf.Validate(); err != nil {
		return types.Configuration{}, err
	}
	return conf, nil
}

func (c *Config) output() io.Writer {
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}
