package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/grpc"

	"github.com/rso-iota/rso-bots/bot/handler"
)

// Server は HTTP と gRPC のコントロールサーフェスをまとめて起動・停止します。
type Server struct {
	HTTP     *http.Server
	GRPC     *grpc.Server
	grpcAddr string
}

func NewServer(httpAddr, grpcAddr string, httpHandler http.Handler, bots handler.BotServiceServer, opts ...grpc.ServerOption) *Server {
	grpcServer := grpc.NewServer(opts...)
	handler.RegisterBotServiceServer(grpcServer, bots)
	return &Server{
		HTTP: &http.Server{
			Addr:    httpAddr,
			Handler: httpHandler,
		},
		GRPC:     grpcServer,
		grpcAddr: grpcAddr,
	}
}

func (s *Server) ServeHTTP() error {
	if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) ServeGRPC() error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.grpcAddr, err)
	}
	if err := s.GRPC.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

// Shutdown は進行中のリクエストを待って停止します。ctx が切れた場合は強制停止します。
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(stopped)
	}()
	httpErr := s.HTTP.Shutdown(ctx)
	select {
	case <-stopped:
	case <-ctx.Done():
		s.GRPC.Stop()
		<-stopped
	}
	return httpErr
}

func (s *Server) Close() error {
	s.GRPC.Stop()
	return s.HTTP.Close()
}

func (s *Server) HTTPAddr() string { return s.HTTP.Addr }
func (s *Server) GRPCAddr() string { return s.grpcAddr }
