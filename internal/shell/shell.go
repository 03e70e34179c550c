// Package shell runs an fx app until it is shut down, by a signal or by
// one of its components, and turns the outcome into an exit code.
package shell

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type Shell struct {
	log     *zap.Logger
	fxApp   *fx.App
	options []fx.Option
}

// New creates a shell. options are passed to every app the shell runs,
// so they may include top-level options like fx.StopTimeout.
func New(log *zap.Logger, options ...fx.Option) *Shell {
	return &Shell{
		log:     log,
		options: options,
	}
}

// Run starts an app from the shell options plus options, waits for it
// to be shut down and stops it. It returns nil for exit code 0 and an
// *ExitError otherwise; a failed start or stop exits with 1.
func (s *Shell) Run(ctx context.Context, options ...fx.Option) error {
	defer func() {
		_ = s.log.Sync()
	}()

	// components observe appCtx, hooks get their own timeouts
	appCtx, cancelApp := context.WithCancel(ctx)
	defer cancelApp()

	fxApp := s.createFxApp(appCtx, options...)
	s.fxApp = fxApp

	startCtx, cancelStart := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancelStart()

	if err := fxApp.Start(startCtx); err != nil {
		s.log.Error("failed to start", zap.Error(err))
		return NewExitError(1)
	}

	sig := <-fxApp.Wait()

	s.log.Debug("shutting down",
		zap.Any("signal", sig.Signal),
		zap.Int("exit_code", sig.ExitCode))

	stopCtx, cancelStop := context.WithTimeout(ctx, fxApp.StopTimeout())
	defer cancelStop()

	if err := fxApp.Stop(stopCtx); err != nil {
		s.log.Error("failed to stop", zap.Error(err))
		return NewExitError(1)
	}

	if sig.ExitCode != 0 {
		return NewExitError(sig.ExitCode)
	}

	return nil
}

func (s *Shell) createFxApp(ctx context.Context, options ...fx.Option) *fx.App {
	return fx.New(
		// app-wide context, cancelled once Run returns
		fx.Supply(fx.Annotate(ctx, fx.As(new(context.Context)))),
		fx.Supply(s.log),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: s.log.Named("fx")}
		}),
		fx.Options(s.options...),
		fx.Options(options...),
	)
}
