package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lambda-feedback/procpool/app"
	"github.com/lambda-feedback/procpool/config"
	"github.com/lambda-feedback/procpool/util/conf"
	"github.com/lambda-feedback/procpool/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func defaultConfig(t *testing.T) config.Config {
	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.Defaults(),
		EnvPrefix: config.EnvPrefix,
	})
	require.NoError(t, err)

	return cfg
}

func validate(cfg config.Config) error {
	level := zap.NewAtomicLevel()

	options := []fx.Option{
		fx.Supply(cfg),
		fx.Supply(app.Version("test")),
		fx.Supply(&level),
		fx.Supply(fx.Annotate(context.Background(), fx.As(new(context.Context)))),
		fx.Supply(zap.NewNop()),
	}

	return fx.ValidateApp(append(options, app.Modules(cfg)...)...)
}

func TestModules_Default(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Len(t, app.Modules(cfg), 2)
	assert.NoError(t, validate(cfg))
}

func TestModules_All(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Status.Enabled = true

	assert.Len(t, app.Modules(cfg), 3)
	assert.NoError(t, validate(cfg))
}

func TestModules_SupervisorOnly(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Supervisor.Control.Socket = ""

	assert.Len(t, app.Modules(cfg), 1)
	assert.NoError(t, validate(cfg))
}

func TestNew_RunsUntilDrained(t *testing.T) {
	dir := t.TempDir()

	// unix socket paths are short, t.TempDir may exceed the limit
	sockDir, err := os.MkdirTemp("", "pp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })

	commands := filepath.Join(dir, "commands.jsonl")
	require.NoError(t, os.WriteFile(commands, nil, 0o600))

	cfg := defaultConfig(t)
	cfg.Source.File = commands
	cfg.Supervisor.PidFile = filepath.Join(dir, "pool.pid")
	cfg.Supervisor.Control.File = filepath.Join(dir, "pool.cmd")
	cfg.Supervisor.Control.Socket = filepath.Join(sockDir, "admin.sock")

	cliCtx := cli.NewContext(&cli.App{Version: "test"}, nil, nil)
	cliCtx.Context = logging.ContextWithLogger(context.Background(), zap.NewNop())

	shell, err := app.New(cliCtx, cfg)
	require.NoError(t, err)

	// an empty source drains right away and shuts the app down
	err = shell.Run(context.Background(), app.Modules(cfg)...)
	assert.NoError(t, err)

	assert.NoFileExists(t, cfg.Supervisor.PidFile)
}
