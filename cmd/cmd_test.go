package cmd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lambda-feedback/procpool/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func parseRunFlags(t *testing.T, args ...string) config.Config {
	t.Helper()

	var cfg config.Config

	app := &cli.App{
		Name: "test",
		Commands: []*cli.Command{{
			Name:  "run",
			Flags: runCmd.Flags,
			Action: func(ctx *cli.Context) (err error) {
				cfg, err = loadConfig(ctx, zap.NewNop())
				return err
			},
		}},
	}

	require.NoError(t, app.Run(append([]string{"test", "run"}, args...)))

	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := parseRunFlags(t)

	assert.Equal(t, 4, cfg.Supervisor.Capacity)
	assert.Equal(t, ".procpool.pid", cfg.Supervisor.PidFile)
	assert.Equal(t, 5*time.Minute, cfg.DrainTimeout)
	assert.Empty(t, cfg.Source.File)
}

func TestLoadConfig_FlagsMapToKeys(t *testing.T) {
	cfg := parseRunFlags(t,
		"-n", "3",
		"--source", "commands.jsonl",
		"--rlimit-cpu", "2",
		"--rlimit-as", "0",
		"--pid-file", "pool.pid",
		"--control-socket", "pool.sock",
		"--status",
		"--status-port", "9090",
		"--trace-output", "stdout",
		"--drain-timeout", "30s",
	)

	assert.Equal(t, 3, cfg.Supervisor.Capacity)
	assert.Equal(t, "commands.jsonl", cfg.Source.File)
	assert.Equal(t, uint64(2), cfg.Supervisor.Limits.CPUSeconds)
	assert.Zero(t, cfg.Supervisor.Limits.AddressSpace)
	assert.Equal(t, "pool.pid", cfg.Supervisor.PidFile)
	assert.Equal(t, "pool.sock", cfg.Supervisor.Control.Socket)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, 9090, cfg.Status.Port)
	assert.Equal(t, "stdout", cfg.Tracing.Output)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
}

func TestRun_WorkerRequiresSupervisor(t *testing.T) {
	code := run(context.Background(), []string{"procpool", "worker"})

	assert.Equal(t, 1, code)
}

func TestRunFlags_HelpShowsEffectiveDefaults(t *testing.T) {
	cfg := parseRunFlags(t)

	defaultText := map[string]string{}
	for _, flag := range runCmd.Flags {
		if f, ok := flag.(interface{ GetDefaultText() string }); ok {
			defaultText[flag.Names()[0]] = f.GetDefaultText()
		}
	}

	assert.Equal(t, fmt.Sprint(cfg.Supervisor.Capacity), defaultText["capacity"])
	assert.Equal(t, fmt.Sprint(cfg.Supervisor.Limits.CPUSeconds), defaultText["rlimit-cpu"])
	assert.Equal(t, fmt.Sprint(cfg.Supervisor.Limits.AddressSpace), defaultText["rlimit-as"])
	assert.Equal(t, fmt.Sprint(cfg.Status.Port), defaultText["status-port"])
	assert.Equal(t, cfg.Status.Host, defaultText["status-host"])

	for name, want := range map[string]time.Duration{
		"poll-interval": cfg.Supervisor.PollInterval,
		"drain-timeout": cfg.DrainTimeout,
	} {
		got, err := time.ParseDuration(defaultText[name])
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}
