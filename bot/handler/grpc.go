package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rso-iota/rso-bots/bot/domain"
)

const botServiceName = "rso.bots.v1.BotService"

// BotServiceServer は rso.bots.v1.BotService のサーバー側インターフェースです。
type BotServiceServer interface {
	CreateBot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteBot(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	GetBot(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListBots(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

var botServiceDesc = grpc.ServiceDesc{
	ServiceName: botServiceName,
	HandlerType: (*BotServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateBot", newMessage[structpb.Struct], BotServiceServer.CreateBot),
		unary("DeleteBot", newMessage[wrapperspb.StringValue], BotServiceServer.DeleteBot),
		unary("GetBot", newMessage[wrapperspb.StringValue], BotServiceServer.GetBot),
		unary("ListBots", newMessage[emptypb.Empty], BotServiceServer.ListBots),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rso/bots/v1/bots.proto",
}

func RegisterBotServiceServer(s grpc.ServiceRegistrar, srv BotServiceServer) {
	s.RegisterService(&botServiceDesc, srv)
}

func newMessage[T any]() *T { return new(T) }

func fullMethod(method string) string { return "/" + botServiceName + "/" + method }

func unary[Req, Resp any](method string, newReq func() Req, call func(BotServiceServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BotServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(BotServiceServer), ctx, req.(Req))
			})
		},
	}
}

// BotService は BotControl を gRPC に公開します。
type BotService struct {
	control  BotControl
	defaults Defaults
	logger   *slog.Logger
}

func NewBotService(control BotControl, defaults Defaults, logger *slog.Logger) *BotService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BotService{control: control, defaults: defaults, logger: logger}
}

func (s *BotService) CreateBot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }
	req := CreateRequest{
		BotID:       str("bot_id"),
		GameID:      str("game_id"),
		DisplayName: str("display_name"),
		Policy:      str("policy"),
		Target:      str("target"),
		Token:       str("token"),
	}
	if req.BotID == "" {
		req.BotID = uuid.NewString()
	}
	view, err := create(ctx, s.control, req.BotID, s.defaults.spec(req.BotID, req))
	if err != nil {
		s.logger.WarnContext(ctx, "create bot failed", "botID", req.BotID, "err", err)
		return nil, toStatus(err)
	}
	s.logger.InfoContext(ctx, "bot created", "botID", req.BotID)
	return structpb.NewStruct(view.fields())
}

func (s *BotService) DeleteBot(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.control.Remove(ctx, in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	s.logger.InfoContext(ctx, "bot deleted", "botID", in.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *BotService) GetBot(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	info, ok, err := s.control.Get(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "bot %q not found", in.GetValue())
	}
	return structpb.NewStruct(NewBotView(info).fields())
}

func (s *BotService) ListBots(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	infos, err := s.control.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	bots := make([]any, 0, len(infos))
	for _, info := range infos {
		bots = append(bots, NewBotView(info).fields())
	}
	return structpb.NewList(bots)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrAgentAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrAgentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case isClientError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrSupervisorStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// BotServiceClient は rso.bots.v1.BotService のクライアントです。
type BotServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBotServiceClient(cc grpc.ClientConnInterface) *BotServiceClient {
	return &BotServiceClient{cc: cc}
}

func (c *BotServiceClient) CreateBot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("CreateBot"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BotServiceClient) DeleteBot(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, fullMethod("DeleteBot"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BotServiceClient) GetBot(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetBot"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BotServiceClient) ListBots(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, fullMethod("ListBots"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
