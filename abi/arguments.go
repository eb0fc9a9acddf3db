package abi

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-testengine/plan"
	"github.com/ethereum-optimism/infra/op-testengine/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed arguments.schema.json
var argumentsSchemaJSON string

const argumentsSchemaURL = "arguments.schema.json"

var (
	argumentsSchemaOnce sync.Once
	argumentsSchema     *jsonschema.Schema
	argumentsSchemaErr  error
)

func compiledArgumentsSchema() (*jsonschema.Schema, error) {
	argumentsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(argumentsSchemaURL, strings.NewReader(argumentsSchemaJSON)); err != nil {
			argumentsSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		argumentsSchema, argumentsSchemaErr = compiler.Compile(argumentsSchemaURL)
		if argumentsSchemaErr != nil {
			argumentsSchemaErr = fmt.Errorf("compile schema: %w", argumentsSchemaErr)
		}
	})
	return argumentsSchema, argumentsSchemaErr
}

// Arguments is the command payload a tool sends to start a run.
type Arguments struct {
	Version                 string   `json:"version"`
	Filter                  []string `json:"filter,omitempty"`
	Tags                    []string `json:"tags,omitempty"`
	ExcludeTags             []string `json:"excludeTags,omitempty"`
	Parallel                *bool    `json:"parallel,omitempty"`
	MaxParallelism          int      `json:"maxParallelism,omitempty"`
	Repetitions             int      `json:"repetitions,omitempty"`
	RepeatUntil             string   `json:"repeatUntil,omitempty"`
	DefaultTimeLimitSeconds float64  `json:"defaultTimeLimitSeconds,omitempty"`
	MaxTimeLimitSeconds     float64  `json:"maxTimeLimitSeconds,omitempty"`
	ExpectationChecked      bool     `json:"expectationChecked,omitempty"`
	TraitPhaseCancellation  string   `json:"traitPhaseCancellation,omitempty"`
}

// DecodeArguments checks the payload's version first, so a payload from a
// newer or incompatible tool fails with a *VersionMismatchError instead of
// a schema error. The payload is then validated against the embedded
// schema and decoded strictly.
func DecodeArguments(data []byte) (*Arguments, error) {
	version, err := peekVersion(data)
	if err != nil {
		return nil, err
	}
	if err := CheckVersion(version); err != nil {
		return nil, err
	}

	schema, err := compiledArgumentsSchema()
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	var args Arguments
	if err := strictUnmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return &args, nil
}

// Configuration converts the arguments into a validated run configuration.
func (a *Arguments) Configuration() (types.Configuration, error) {
	cfg := types.DefaultConfiguration()
	if a.Parallel != nil {
		cfg.Parallel = *a.Parallel
	}
	cfg.MaxParallelism = a.MaxParallelism

	if a.Repetitions != 0 || a.RepeatUntil != "" {
		stop, err := types.ParseStopCondition(a.RepeatUntil)
		if err != nil {
			return types.Configuration{}, &types.ConfigError{Field: "repeatUntil", Reason: err.Error()}
		}
		n := a.Repetitions
		if n == 0 {
			n = 1
		}
		cfg.Repetition = types.Repeating(stop, n)
	}

	cfg.DefaultTimeLimit = seconds(a.DefaultTimeLimitSeconds)
	cfg.MaxTimeLimit = seconds(a.MaxTimeLimitSeconds)
	cfg.DeliverExpectationChecked = a.ExpectationChecked

	switch a.TraitPhaseCancellation {
	case "", "skip":
		cfg.TraitPhaseCancellation = types.SkipOnTraitCancellation
	case "cancel":
		cfg.TraitPhaseCancellation = types.CancelOnTraitCancellation
	default:
		return types.Configuration{}, &types.ConfigError{Field: "traitPhaseCancellation", Reason: fmt.Sprintf("unknown policy %q", a.TraitPhaseCancellation)}
	}

	if err := cfg.Validate(); err != nil {
		return types.Configuration{}, err
	}
	return cfg, nil
}

// Selection converts the filters into a plan selection.
func (a *Arguments) Selection() (plan.Selection, error) {
	return plan.ParseSelection(a.Filter, a.Tags, a.ExcludeTags)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
