package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	adapterwebsocket "github.com/rso-iota/rso-bots/bot/adapter/websocket"
	"github.com/rso-iota/rso-bots/bot/application"
	"github.com/rso-iota/rso-bots/config"
	"github.com/rso-iota/rso-bots/logging"
	"github.com/rso-iota/rso-bots/telemetry"
	"github.com/rso-iota/rso-bots/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "rso-bots",
		Short:         "Game bot agents for the RSO arena server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", utils.GetEnvDefault("RSO_BOTS_CONFIG", ""), "path to a YAML or TOML config file")

	root.AddCommand(
		newServeCmd(&configPath, stderr),
		newRunCmd(&configPath, stderr),
		newBotsCmd(stdout),
	)
	return root
}

// runtime は serve と run が共有する起動済みコンポーネントです。
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	telemetry  *telemetry.Providers
	supervisor *application.Supervisor
}

func setup(ctx context.Context, configPath string, stderr io.Writer) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	logger := logging.New(logCfg, stderr)
	if tel.Enabled() {
		logger = logging.New(logCfg, stderr, tel.LogHandler)
	}

	sup, err := application.NewSupervisor(application.Deps{
		Dialer:         adapterwebsocket.NewDialer(),
		Credentials:    application.StaticCredentials(cfg.Game.AccessToken),
		Logger:         logger,
		TracerProvider: tel.TracerProvider,
		Session:        cfg.SessionConfig(),
		StopTimeout:    cfg.Bots.StopTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, telemetry: tel, supervisor: sup}, nil
}

func (rt *runtime) spec(name string) application.Spec {
	return application.Spec{
		GameID:      rt.cfg.Game.GameID,
		DisplayName: name,
		Policy:      rt.cfg.Bots.Policy,
		Target:      rt.cfg.Game.ServerURL,
	}
}

// addBots は name_prefix-n の名前で count 体のボットを登録します。
func (rt *runtime) addBots(ctx context.Context, count int) error {
	for n := range count {
		name := rt.cfg.BotName(n)
		if err := rt.supervisor.Add(ctx, name, rt.spec(name)); err != nil {
			return fmt.Errorf("adding bot %s: %w", name, err)
		}
	}
	return nil
}

// stopSupervisor は cancel 後、停止タイムアウトまで Done を待ちます。
func (rt *runtime) stopSupervisor(ctx context.Context, cancel context.CancelFunc) {
	cancel()
	select {
	case <-rt.supervisor.Done():
	case <-ctx.Done():
	}
}
