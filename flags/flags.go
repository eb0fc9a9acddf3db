package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testengine/types"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTENGINE"

var (
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:   "Path to a manifest file with run profiles (eg. 'manifest.yaml')",
	}
	Profile = &cli.StringFlag{
		Name:    "profile",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROFILE"),
		Usage:   "Manifest profile to run. Requires --manifest.",
	}
	Filter = &cli.StringSliceFlag{
		Name:    "filter",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTER"),
		Usage:   "Test or suite IDs to run (eg. 'module/suite/test'). Repeatable.",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tag",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TAG"),
		Usage:   "Run tests carrying any of these tags. Repeatable.",
	}
	ExcludeTags = &cli.StringSliceFlag{
		Name:    "exclude-tag",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXCLUDE_TAG"),
		Usage:   "Skip tests carrying any of these tags. Repeatable.",
	}
	Serial = &cli.BoolFlag{
		Name:    "serial",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERIAL"),
		Usage:   "Run all tests and cases one at a time",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Maximum number of cases running at once. 0 picks a value from the CPU count.",
	}
	Repetitions = &cli.IntFlag{
		Name:    "repetitions",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPETITIONS"),
		Usage:   "Maximum number of iterations over the plan",
	}
	RepeatUntil = &cli.StringFlag{
		Name:    "repeat-until",
		Value:   "unconditional",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPEAT_UNTIL"),
		Usage:   "When repeating ends early: 'unconditional', 'until-issue' or 'while-issue'",
		Action: func(_ *cli.Context, v string) error {
			return validateRepeatUntil(v)
		},
	}
	DefaultTimeLimit = &cli.DurationFlag{
		Name:    "default-time-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIME_LIMIT"),
		Usage:   "Time limit for cases without a time limit trait. 0 means none.",
	}
	MaxTimeLimit = &cli.DurationFlag{
		Name:    "max-time-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_TIME_LIMIT"),
		Usage:   "Upper bound for every case time limit. 0 means none.",
	}
	TraitPhaseCancellation = &cli.StringFlag{
		Name:    "trait-phase-cancellation",
		Value:   "skip",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TRAIT_PHASE_CANCELLATION"),
		Usage:   "Outcome of a test cancelled before its cases start: 'skip' or 'cancel'",
		Action: func(_ *cli.Context, v string) error {
			return validateTraitPhaseCancellation(v)
		},
	}
	ExpectationChecked = &cli.BoolFlag{
		Name:    "expectation-events",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXPECTATION_EVENTS"),
		Usage:   "Deliver expectationChecked events to handlers",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress while tests run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory for run records and the stability report of repeated runs. Empty disables both.",
	}
	List = &cli.BoolFlag{
		Name:    "list",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIST"),
		Usage:   "Print the planned test tree and exit without running anything",
	}
)

func validateRepeatUntil(v string) error {
	if _, err := types.ParseStopCondition(v); err != nil {
		return fmt.Errorf("repeat-until must be one of unconditional, until-issue, while-issue: %w", err)
	}
	return nil
}

func validateTraitPhaseCancellation(v string) error {
	if v != "skip" && v != "cancel" {
		return fmt.Errorf("trait-phase-cancellation must be one of skip, cancel, got %q", v)
	}
	return nil
}

var optionalFlags = []cli.Flag{
	Manifest,
	Profile,
	Filter,
	Tags,
	ExcludeTags,
	Serial,
	Concurrency,
	Repetitions,
	RepeatUntil,
	DefaultTimeLimit,
	MaxTimeLimit,
	TraitPhaseCancellation,
	ExpectationChecked,
	RunInterval,
	ShowProgress,
	ProgressInterval,
	ReportDir,
	List,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}

// CheckRequired validates flag combinations.
func CheckRequired(ctx *cli.Context) error {
	if ctx.IsSet(Profile.Name) && !ctx.IsSet(Manifest.Name) {
		return fmt.Errorf("flag %s requires %s", Profile.Name, Manifest.Name)
	}
	if ctx.IsSet(Profile.Name) && (ctx.IsSet(Filter.Name) || ctx.IsSet(Tags.Name) || ctx.IsSet(ExcludeTags.Name)) {
		return fmt.Errorf("flag %s cannot be combined with %s, %s or %s", Profile.Name, Filter.Name, Tags.Name, ExcludeTags.Name)
	}
	return opflags.CheckRequiredXor(ctx)
}
