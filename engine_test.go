package testengine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testengine/abi"
	"github.com/ethereum-optimism/infra/op-testengine/flags"
	"github.com/ethereum-optimism/infra/op-testengine/registry"
	"github.com/ethereum-optimism/infra/op-testengine/types"
)

func records(failing bool) []registry.Record {
	recs := []registry.Record{
		{Kind: registry.KindSuite, Module: "mod", Names: []string{"suite"}},
		{Kind: registry.KindTest, Module: "mod", Names: []string{"suite", "ok"}, Body: func(*types.T, []any) error { return nil }},
	}
	if failing {
		recs = append(recs, registry.Record{
			Kind: registry.KindTest, Module: "mod", Names: []string{"suite", "bad"},
			Traits: []types.Trait{types.Tags("flaky")},
			Body: func(t *types.T, _ []any) error {
				t.Errorf("nope")
				return nil
			},
		})
	}
	return recs
}

func testConfig(recs []registry.Record) *Config {
	return &Config{
		Repetitions: 1,
		RunOnce:     true,
		Source:      slices.Values(recs),
		Output:      &bytes.Buffer{},
		Log:         testLogger(),
	}
}

func TestEngine_RunOncePasses(t *testing.T) {
	cfg := testConfig(records(false))
	shutdown := make(chan error, 1)
	e, err := New(cfg, "test", func(err error) { shutdown <- err })
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not invoked")
	}

	res := e.Result()
	require.NotNil(t, res)
	assert.True(t, res.Success())
	assert.True(t, e.Stopped())
	assert.Contains(t, cfg.Output.(*bytes.Buffer).String(), "TOTAL")
}

func TestEngine_RunOnceFails(t *testing.T) {
	e, err := New(testConfig(records(true)), "test", nil)
	require.NoError(t, err)

	err = e.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))
}

func TestEngine_ExcludeTags(t *testing.T) {
	cfg := testConfig(records(true))
	cfg.ExcludeTags = []string{"flaky"}
	e, err := New(cfg, "test", nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.Result().Success())
}

func TestEngine_Profiles(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
profiles:
  - id: base
    include: ["mod/suite/ok"]
  - id: smoke
    inherits: [base]
    overrides:
      - id: mod/suite/ok
        time_limit: 5s
`), 0o644))

	t.Run("known profile", func(t *testing.T) {
		cfg := testConfig(records(true))
		cfg.ManifestFile = manifest
		cfg.Profile = "smoke"
		e, err := New(cfg, "test", nil)
		require.NoError(t, err)
		require.NoError(t, e.Start(context.Background()))
		assert.True(t, e.Result().Success())
	})

	t.Run("unknown profile", func(t *testing.T) {
		cfg := testConfig(records(true))
		cfg.ManifestFile = manifest
		cfg.Profile = "missing"
		_, err := New(cfg, "test", nil)
		require.Error(t, err)
		assert.True(t, IsRuntimeError(err))
	})
}

func TestEngine_MalformedSelection(t *testing.T) {
	cfg := testConfig(records(false))
	cfg.Filter = []string{"mod//x"}
	_, err := New(cfg, "test", nil)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestEngine_InvalidRepetition(t *testing.T) {
	cfg := testConfig(records(false))
	cfg.Repetitions = -2
	e, err := New(cfg, "test", nil)
	require.NoError(t, err)
	err = e.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, types.IsConfigError(err))
}

func TestEngine_StabilityReport(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(records(true))
	cfg.Repetitions = 3
	cfg.ReportDir = dir
	e, err := New(cfg, "test", nil)
	require.NoError(t, err)

	require.True(t, IsTestFailureError(e.Start(context.Background())))
	assert.Len(t, e.Result().Iterations, 3)
	assert.FileExists(t, filepath.Join(dir, "stability-report.json"))

	data, err := os.ReadFile(filepath.Join(dir, e.Result().RunID, "records.jsonl"))
	require.NoError(t, err)
	kinds := map[abi.RecordKind]int{}
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		rec, err := abi.DecodeRecord(line)
		require.NoError(t, err)
		kinds[rec.Kind]++
	}
	assert.Equal(t, 3, kinds[abi.KindTest], "one record per planned step")
	assert.NotZero(t, kinds[abi.KindEvent])
}

func TestEngine_List(t *testing.T) {
	var out bytes.Buffer
	ran := false
	recs := []registry.Record{
		{Kind: registry.KindSuite, Module: "mod", Names: []string{"suite"}},
		{Kind: registry.KindTest, Module: "mod", Names: []string{"suite", "ok"}, Body: func(*types.T, []any) error {
			ran = true
			return nil
		}},
	}
	cfg := testConfig(recs)
	cfg.Output = &out
	cfg.List = true
	shutdown := make(chan error, 1)
	e, err := New(cfg, "test", func(err error) { shutdown <- err })
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not invoked")
	}
	assert.False(t, ran)
	assert.Nil(t, e.Result())
	assert.Equal(t, "mod/suite\n└── ok\n1 test(s) planned\n", out.String())
}

func TestEngine_Continuous(t *testing.T) {
	cfg := testConfig(records(false))
	cfg.RunOnce = false
	cfg.RunInterval = 10 * time.Millisecond
	e, err := New(cfg, "test", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx))
	assert.False(t, e.Stopped())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, e.Stop(stopCtx))
	assert.True(t, e.Stopped())
	assert.NoError(t, e.Stop(stopCtx))
}

func TestNewConfig(t *testing.T) {
	run := func(args ...string) (*Config, error) {
		var cfg *Config
		var cfgErr error
		app := &cli.App{
			Flags: flags.Flags,
			Action: func(ctx *cli.Context) error {
				cfg, cfgErr = NewConfig(ctx, testLogger())
				return nil
			},
		}
		require.NoError(t, app.Run(append([]string{"app"}, args...)))
		return cfg, cfgErr
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := run()
		require.NoError(t, err)
		assert.True(t, cfg.RunOnce)
		assert.Equal(t, 1, cfg.Repetitions)
		assert.Equal(t, types.StopUnconditional, cfg.RepeatUntil)
		assert.Equal(t, types.SkipOnTraitCancellation, cfg.TraitPhaseCancellation)

		conf, err := cfg.Configuration()
		require.NoError(t, err)
		assert.True(t, conf.Parallel)
		assert.Equal(t, types.Once(), conf.Repetition)
	})

	t.Run("all options", func(t *testing.T) {
		cfg, err := run(
			"--serial",
			"--repetitions", "5",
			"--repeat-until", "while-issue",
			"--default-time-limit", "2s",
			"--trait-phase-cancellation", "cancel",
			"--filter", "mod/a",
			"--tag", "smoke",
			"--run-interval", "1m",
		)
		require.NoError(t, err)
		assert.False(t, cfg.RunOnce)
		assert.Equal(t, []string{"mod/a"}, cfg.Filter)
		assert.Equal(t, []string{"smoke"}, cfg.Tags)

		conf, err := cfg.Configuration()
		require.NoError(t, err)
		assert.True(t, conf.Serial())
		assert.Equal(t, types.Repeating(types.StopWhileIssueRecorded, 5), conf.Repetition)
		assert.Equal(t, 2*time.Second, conf.DefaultTimeLimit)
		assert.Equal(t, types.CancelOnTraitCancellation, conf.TraitPhaseCancellation)
	})

	t.Run("invalid repetitions", func(t *testing.T) {
		_, err := run("--repetitions", "-1")
		require.Error(t, err)
		assert.True(t, types.IsConfigError(err))
	})

	t.Run("profile requires manifest", func(t *testing.T) {
		_, err := run("--profile", "smoke")
		require.Error(t, err)
	})
}
