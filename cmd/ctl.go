package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lambda-feedback/procpool/internal/execution/control"
	"github.com/lambda-feedback/procpool/util/logging"
	"github.com/urfave/cli/v2"
)

var errNoCommand = errors.New("no administrative command given")

var (
	ctlCmdDescription = `The ctl command sends an administrative command to a
running supervisor, e.g. "procpool ctl capacity 8". Without
arguments, it prints the current capacity.

By default, the command is sent to the admin endpoint on the
control socket. With --signal, it is written to the control
file instead and the supervisor is notified with SIGUSR1.

Commands: capacity <n>, tune_num_of_workers <n>, rlimit_cpu
<seconds>, rlimit_as <bytes>, log_level <level>, dump.`
	ctlCmd = &cli.Command{
		Name:        "ctl",
		Usage:       "Control a running supervisor.",
		ArgsUsage:   "[command] [args...]",
		Description: ctlCmdDescription,
		Action:      ctlAction,
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "signal",
				Usage: "deliver the command via control file and signal.",
			},
			&cli.BoolFlag{
				Name:  "workers",
				Usage: "print the running workers.",
			},
			&cli.BoolFlag{
				Name:  "history",
				Usage: "print the recent lifecycle events.",
			},
		}, controlFlags...),
	}
)

func ctlAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, log)
	if err != nil {
		return err
	}

	line := strings.Join(ctx.Args().Slice(), " ")

	if ctx.Bool("signal") {
		if line == "" {
			return errNoCommand
		}

		return control.Send(cfg.Supervisor.PidFile, cfg.Supervisor.Control.File, line)
	}

	client, err := control.Dial(ctx.Context, cfg.Supervisor.Control.Socket)
	if err != nil {
		return err
	}
	defer client.Close()

	enc := json.NewEncoder(ctx.App.Writer)
	enc.SetIndent("", "  ")

	switch {
	case ctx.Bool("workers"):
		workers, err := client.Workers(ctx.Context)
		if err != nil {
			return err
		}
		return enc.Encode(workers)
	case ctx.Bool("history"):
		history, err := client.History(ctx.Context)
		if err != nil {
			return err
		}
		return enc.Encode(history)
	case line == "":
		capacity, err := client.Capacity(ctx.Context)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(ctx.App.Writer, capacity)
		return err
	}

	res, err := client.Exec(ctx.Context, line)
	if err != nil {
		return err
	}

	switch {
	case res.Error != "":
		return cli.Exit(res.Error, 1)
	case !res.Applied:
		return cli.Exit(fmt.Sprintf("unknown command: %s", line), 1)
	}

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, ctlCmd)
}
