// Package nodecontrol implements the small node-side admin surface
// SPEC_FULL.md §3 supplements spec.md's external-collaborator boundary
// with: an operator-facing gRPC endpoint exposing the dispatcher, comm
// and replication components' liveness, grounded on the teacher's
// services/kafka and services/bifrost admin server idiom (a grpc.Server
// wrapping a standard grpc_health_v1 health service, registered per
// component rather than the single ""-keyed status most of the teacher's
// servers use).
package nodecontrol

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Component names the node reports health for under the standard gRPC
// health checking protocol.
const (
	ComponentDispatcher  = "dispatcher"
	ComponentComm        = "comm"
	ComponentReplication = "replication"
	ComponentSectionTree = "section_tree"
)

// Server wraps a grpc.Server exposing grpc_health_v1 health status per
// node component, the way services/kafka/cmd/server/main.go wires
// health.NewServer() into its own grpc.Server.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	port       int
}

// NewServer creates an admin server listening on port. Every component
// name starts NOT_SERVING until the caller reports it up via SetServing.
func NewServer(port int, reflectionEnabled bool, components ...string) *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	for _, c := range components {
		healthServer.SetServingStatus(c, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	if reflectionEnabled {
		reflection.Register(grpcServer)
	}

	return &Server{grpcServer: grpcServer, health: healthServer, port: port}
}

// SetServing marks component as SERVING or NOT_SERVING. Node startup
// calls this once per component as each collaborator (Dispatcher, comm
// layer, replication queue drainer) finishes initializing; shutdown
// calls it again to flip every component back to NOT_SERVING before the
// gRPC server stops accepting connections.
func (s *Server) SetServing(component string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(component, status)
}

// Start begins listening for gRPC connections; it blocks until Stop is
// called or the listener fails.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("nodecontrol: failed to listen on port %d: %w", s.port, err)
	}
	logrus.WithField("port", s.port).Info("nodecontrol: admin gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	logrus.Info("nodecontrol: stopping admin gRPC server")
	s.grpcServer.GracefulStop()
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}
