package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"lottery/infrastructure/observability"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server hosts the lottery gRPC API and its health service
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer creates a server on an existing listener. metrics may be nil.
func NewServer(listener net.Listener, lotteryServer *LotteryServer, metrics *observability.MetricsProvider) *Server {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogging(metrics)))
	healthServer := health.NewServer()

	RegisterLotteryHostServer(grpcServer, lotteryServer)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
	}
}

// Listen opens a TCP listener on addr and creates a server on it
func Listen(addr string, lotteryServer *LotteryServer, metrics *observability.MetricsProvider) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewServer(listener, lotteryServer, metrics), nil
}

// Addr returns the listener address for the server
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve starts the gRPC server and blocks until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}

	log.WithField("addr", s.Addr()).Info("Lottery gRPC server listening")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

func unaryLogging(metrics *observability.MetricsProvider) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		metrics.RecordGRPCRequest(info.FullMethod, code.String(), elapsed)

		entry := log.WithFields(log.Fields{
			"method":   info.FullMethod,
			"caller":   callerFromContext(ctx),
			"code":     code.String(),
			"duration": elapsed,
		})
		if err != nil {
			entry.WithError(err).Info("gRPC request failed")
		} else {
			entry.Debug("gRPC request handled")
		}
		return resp, err
	}
}
