package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"orderflow/api/pb"
	appconfig "orderflow/config"
	"orderflow/logger"
	"orderflow/processor"
)

// ErrBind is returned when the listen address cannot be bound.
var ErrBind = errors.New("grpc transport bind failure")

// Subscriber is the distributor surface the endpoint needs.
type Subscriber interface {
	Subscribe(ctx context.Context) *processor.Subscription
}

// Server exposes the Summary stream and the standard health service.
type Server struct {
	pb.UnimplementedOrderbookAggregatorServer

	config  *appconfig.Config
	dist    Subscriber
	srv     *grpc.Server
	health  *health.Server
	lis     net.Listener
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

func New(dist Subscriber, cfg *appconfig.Config) *Server {
	s := &Server{
		config: cfg,
		dist:   dist,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		log:    logger.GetLogger(),
	}
	pb.RegisterOrderbookAggregatorServer(s.srv, s)
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Listen binds the configured address. Errors wrap ErrBind.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.config.GRPC.Address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBind, s.config.GRPC.Address, err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Serve listens if needed and serves until ctx is cancelled, then stops
// gracefully within grpc.shutdown_timeout.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	return s.ServeListener(ctx, s.lis)
}

// ServeListener serves on an existing listener.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("grpc server already running")
	}
	s.running = true
	s.lis = lis
	s.mu.Unlock()

	log := s.log.WithComponent("grpc_server").WithFields(logger.Fields{"address": lis.Addr().String()})

	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.Serve(lis)
	}()
	s.health.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	log.Info("grpc server listening")

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.stop(log)
	return nil
}

func (s *Server) stop(log *logger.Entry) {
	timeout := s.config.GRPC.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-time.After(timeout):
		log.WithFields(logger.Fields{"timeout": timeout.String()}).Warn("graceful stop timed out, forcing stop")
		s.srv.Stop()
		<-done
	}
}

// Summary streams every merged book to the caller until it disconnects or
// the server shuts down.
func (s *Server) Summary(_ *pb.Empty, stream grpc.ServerStreamingServer[pb.Orderbook]) error {
	ctx := stream.Context()
	sub := s.dist.Subscribe(ctx)
	defer sub.Close()

	log := s.log.WithComponent("grpc_server").WithFields(logger.Fields{"subscription_id": sub.ID()})
	log.Info("summary stream opened")

	for {
		select {
		case <-ctx.Done():
			log.Info("summary client disconnected")
			return ctx.Err()
		case book, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Info("summary stream ended by shutdown")
				return status.Error(codes.Unavailable, "server shutting down")
			}
			if err := stream.Send(pb.FromModel(book)); err != nil {
				log.WithError(err).Info("summary send failed, closing subscription")
				return err
			}
		}
	}
}
