package handler_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rso-iota/rso-bots/bot/domain"
	"github.com/rso-iota/rso-bots/bot/handler"
)

var testDefaults = handler.Defaults{
	GameID:     "default-game",
	Target:     "ws://game.local:8080",
	Policy:     "greedy",
	NamePrefix: "bot",
}

func newBotClient(t *testing.T, control handler.BotControl) *handler.BotServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	handler.RegisterBotServiceServer(srv, handler.NewBotService(control, testDefaults, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return handler.NewBotServiceClient(conn)
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestBotService_CreateGetList(t *testing.T) {
	control := newFakeControl()
	client := newBotClient(t, control)
	ctx := t.Context()

	created, err := client.CreateBot(ctx, mustStruct(t, map[string]any{
		"bot_id":       "b1",
		"display_name": "Alice",
		"policy":       "random",
		"token":        "secret",
	}))
	require.NoError(t, err)
	assert.Equal(t, "b1", created.GetFields()["bot_id"].GetStringValue())
	assert.Equal(t, "running", created.GetFields()["state"].GetStringValue())

	spec := control.spec("b1")
	assert.Equal(t, "default-game", spec.GameID)
	assert.Equal(t, "ws://game.local:8080", spec.Target)
	assert.Equal(t, "random", spec.Policy)
	assert.Equal(t, "Alice", spec.DisplayName)
	assert.Equal(t, "secret", spec.Credential)

	got, err := client.GetBot(ctx, wrapperspb.String("b1"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.GetFields()["display_name"].GetStringValue())
	assert.InDelta(t, 2, got.GetFields()["moves_sent"].GetNumberValue(), 0)

	list, err := client.ListBots(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, list.GetValues(), 1)
	assert.Equal(t, "b1", list.GetValues()[0].GetStructValue().GetFields()["bot_id"].GetStringValue())
}

func TestBotService_CreateGeneratesID(t *testing.T) {
	control := newFakeControl()
	client := newBotClient(t, control)

	created, err := client.CreateBot(t.Context(), &structpb.Struct{})
	require.NoError(t, err)
	id := created.GetFields()["bot_id"].GetStringValue()
	require.Len(t, id, 36)
	assert.Equal(t, "bot-"+id[:8], control.spec(id).DisplayName)
}

func TestBotService_DefaultDisplayNameKeepsRunes(t *testing.T) {
	control := newFakeControl()
	client := newBotClient(t, control)

	_, err := client.CreateBot(t.Context(), mustStruct(t, map[string]any{"bot_id": "ボット一二三四五六七八"}))
	require.NoError(t, err)

	name := control.spec("ボット一二三四五六七八").DisplayName
	assert.Equal(t, "bot-ボット一二三四五", name)
	assert.True(t, utf8.ValidString(name))
}

func TestBotService_ErrorCodes(t *testing.T) {
	control := newFakeControl()
	client := newBotClient(t, control)
	ctx := t.Context()

	_, err := client.CreateBot(ctx, mustStruct(t, map[string]any{"bot_id": "b1"}))
	require.NoError(t, err)

	_, err = client.CreateBot(ctx, mustStruct(t, map[string]any{"bot_id": "b1"}))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = client.GetBot(ctx, wrapperspb.String("missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.DeleteBot(ctx, wrapperspb.String("missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.DeleteBot(ctx, wrapperspb.String("b1"))
	require.NoError(t, err)

	control.fail(fmt.Errorf("%w: target has no host", domain.ErrInvalidSpec))
	_, err = client.CreateBot(ctx, mustStruct(t, map[string]any{"bot_id": "b2"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	control.fail(domain.ErrSupervisorStopped)
	_, err = client.ListBots(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	control.fail(fmt.Errorf("boom"))
	_, err = client.ListBots(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.Internal, status.Code(err))
}
