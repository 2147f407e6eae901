package api

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/cuemby/fleet/pkg/cluster"
	"github.com/cuemby/fleet/pkg/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Server is the mTLS-secured gRPC front door for a manager node. It carries
// only the standard gRPC health-checking service: the desired-state and
// workload-state-report surface is exposed over the plain HTTP mux in
// HealthServer instead, since no wire format for those operations is
// mandated and a hand-maintained generated-code path would be fragile to
// keep in sync with cluster.Manager as it grows.
type Server struct {
	manager *cluster.Manager
	grpc    *grpc.Server
	health  *health.Server
}

// NewServer creates a Server secured with the manager's mTLS certificate,
// issued by the cluster CA the same way pkg/security issues every other
// node certificate.
func NewServer(mgr *cluster.Manager) (*Server, error) {
	certDir, err := security.GetCertDir("manager", mgr.NodeID())
	if err != nil {
		return nil, fmt.Errorf("failed to get cert directory: %w", err)
	}

	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("manager certificate not found at %s - ensure cluster is initialized", certDir)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load manager certificate: %w", err)
	}

	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequestClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}

	creds := credentials.NewTLS(tlsConfig)
	grpcServer := grpc.NewServer(grpc.Creds(creds))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		manager: mgr,
		grpc:    grpcServer,
		health:  healthServer,
	}, nil
}

// Start starts the gRPC server. It blocks until the listener is closed.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}

// SetServing flips the reported health-check status, used by callers that
// track Raft leadership and want followers to still answer Check/Watch
// (a follower is a healthy process even when it isn't the leader).
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}
