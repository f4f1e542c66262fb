package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rso-iota/rso-bots/bot/handler"
	"github.com/rso-iota/rso-bots/utils"
)

const rpcTimeout = 10 * time.Second

func newBotsCmd(stdout io.Writer) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "bots",
		Short: "Manage bots on a running server over gRPC",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", utils.GetEnvDefault("GRPC_ADDR", "localhost:50051"), "gRPC address of the bot server")

	withClient := func(ctx context.Context, fn func(context.Context, *handler.BotServiceClient) error) error {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", addr, err)
		}
		defer conn.Close()
		ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
		defer cancel()
		return fn(ctx, handler.NewBotServiceClient(conn))
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List bots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.BotServiceClient) error {
				bots, err := c.ListBots(ctx, &emptypb.Empty{})
				if err != nil {
					return err
				}
				printBotTable(stdout, bots)
				return nil
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.BotServiceClient) error {
				bot, err := c.GetBot(ctx, wrapperspb.String(args[0]))
				if err != nil {
					return err
				}
				printBot(stdout, bot)
				return nil
			})
		},
	}

	var req handler.CreateRequest
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields := map[string]any{}
			for key, value := range map[string]string{
				"bot_id":       req.BotID,
				"game_id":      req.GameID,
				"display_name": req.DisplayName,
				"policy":       req.Policy,
				"target":       req.Target,
				"token":        req.Token,
			} {
				if value != "" {
					fields[key] = value
				}
			}
			in, err := structpb.NewStruct(fields)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.BotServiceClient) error {
				bot, err := c.CreateBot(ctx, in)
				if err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintln(stdout, "Bot created")
				printBot(stdout, bot)
				return nil
			})
		},
	}
	add.Flags().StringVar(&req.BotID, "id", "", "bot id (generated when empty)")
	add.Flags().StringVar(&req.GameID, "game", "", "game id")
	add.Flags().StringVar(&req.DisplayName, "name", "", "display name")
	add.Flags().StringVar(&req.Policy, "policy", "", "movement policy: greedy or random")
	add.Flags().StringVar(&req.Target, "target", "", "game server URL")
	add.Flags().StringVar(&req.Token, "token", "", "game access token")

	remove := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a bot",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *handler.BotServiceClient) error {
				if _, err := c.DeleteBot(ctx, wrapperspb.String(args[0])); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(stdout, "Bot %s removed\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, get, add, remove)
	return cmd
}

var botFieldOrder = []string{
	"bot_id", "display_name", "game_id", "policy", "state", "target",
	"session_id", "started_at", "messages_received", "moves_sent", "rejoins", "decode_errors",
}

func printBot(w io.Writer, bot *structpb.Struct) {
	cyan := color.New(color.FgCyan)
	fields := bot.GetFields()
	for _, key := range botFieldOrder {
		v, ok := fields[key]
		if !ok {
			continue
		}
		cyan.Fprintf(w, "%-18s", key)
		fmt.Fprintln(w, formatValue(key, v))
	}
}

func printBotTable(w io.Writer, bots *structpb.ListValue) {
	if len(bots.GetValues()) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No bots")
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintf(w, "%-38s %-20s %-10s %-8s %s\n", "ID", "NAME", "STATE", "POLICY", "MOVES")
	for _, v := range bots.GetValues() {
		f := v.GetStructValue().GetFields()
		fmt.Fprintf(w, "%-38s %-20s %-10s %-8s %s\n",
			f["bot_id"].GetStringValue(),
			f["display_name"].GetStringValue(),
			formatValue("state", f["state"]),
			f["policy"].GetStringValue(),
			formatValue("moves_sent", f["moves_sent"]),
		)
	}
}

func formatValue(key string, v *structpb.Value) string {
	switch v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return fmt.Sprintf("%.0f", v.GetNumberValue())
	}
	s := v.GetStringValue()
	if key == "state" {
		if s == "running" {
			return color.GreenString(s)
		}
		return color.YellowString(s)
	}
	return s
}
