package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/rso-iota/rso-bots/bot"
	"github.com/rso-iota/rso-bots/bot/handler"
)

func newServeCmd(configPath *string, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot supervisor with its gRPC and HTTP control surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath, stderr)
		},
	}
}

func serve(ctx context.Context, configPath string, stderr io.Writer) error {
	rt, err := setup(ctx, configPath, stderr)
	if err != nil {
		return err
	}
	cfg := rt.cfg
	sup := rt.supervisor
	logger := rt.logger

	otel.SetTracerProvider(rt.telemetry.TracerProvider)

	supCtx, supCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer supCancel()
	if err := sup.Start(supCtx); err != nil {
		return err
	}
	if err := rt.addBots(ctx, cfg.Bots.Initial); err != nil {
		logger.ErrorContext(ctx, "failed to add initial bots", "err", err)
	}

	defaults := handler.Defaults{
		GameID:     cfg.Game.GameID,
		Target:     cfg.Game.ServerURL,
		Policy:     cfg.Bots.Policy,
		NamePrefix: cfg.Bots.NamePrefix,
	}
	ready := func() bool {
		select {
		case <-sup.Done():
			return false
		default:
			return true
		}
	}
	srv := bot.NewServer(
		cfg.Server.HTTPAddr,
		cfg.Server.GRPCAddr,
		bot.Route(sup, defaults, ready, logger),
		handler.NewBotService(sup, defaults, logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ServeHTTP)
	g.Go(srv.ServeGRPC)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
			if err := srv.Close(); err != nil {
				logger.Error("forced close failed", "err", err)
			}
		}
		rt.stopSupervisor(shutdownCtx, supCancel)
		if err := rt.telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
		logger.Info("server shutdown complete")
		return nil
	})
	logger.InfoContext(ctx, "server listening",
		"http", srv.HTTPAddr(),
		"grpc", srv.GRPCAddr(),
		"initialBots", cfg.Bots.Initial,
	)
	return g.Wait()
}
