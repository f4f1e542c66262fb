package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
)

const pollInterval = 500 * time.Millisecond

func newRunCmd(configPath *string, stderr io.Writer) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run bots in the foreground without a control surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath, count, stderr)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", -1, "number of bots (defaults to bots.initial)")
	return cmd
}

// run はシグナルを受けるか、全ボットが離脱するまでブロックします。
func run(ctx context.Context, configPath string, count int, stderr io.Writer) error {
	rt, err := setup(ctx, configPath, stderr)
	if err != nil {
		return err
	}
	if count < 0 {
		count = rt.cfg.Bots.Initial
	}
	logger := rt.logger

	supCtx, supCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer supCancel()
	if err := rt.supervisor.Start(supCtx); err != nil {
		return err
	}
	if err := rt.addBots(ctx, count); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting bots", "count", count, "server", rt.cfg.Game.ServerURL)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			bots, err := rt.supervisor.List(ctx)
			if err != nil || len(bots) == 0 {
				break wait
			}
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Bots.StopTimeout+time.Second)
	defer cancel()
	rt.stopSupervisor(stopCtx, supCancel)
	if err := rt.telemetry.Shutdown(stopCtx); err != nil {
		logger.Warn("telemetry shutdown failed", "err", err)
	}
	logger.Info("all bots stopped")
	return nil
}
