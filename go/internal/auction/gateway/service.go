package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/rs/zerolog/log"
)

// Service is the auction gateway: WebSocket connections, event fan-out and
// the REST routes.
type Service struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new gateway service. The coordinator is attached with
// Bind because it needs the service as its broadcaster.
func NewService(config Config) *Service {
	dispatcher := &Dispatcher{}
	connectionManager := NewConnectionManager(config.ConnectionConfig, dispatcher)
	dispatcher.manager = connectionManager

	return &Service{
		connectionManager: connectionManager,
		dispatcher:        dispatcher,
		stateHandler:      NewStateHandler(nil, connectionManager),
	}
}

// Bind attaches the coordinator. It must be called before routes are served.
func (s *Service) Bind(coordinator Coordinator) {
	s.dispatcher.coordinator = coordinator
	s.stateHandler.coordinator = coordinator
}

// Serve runs the connection manager until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	log.Info().Msg("starting auction gateway service")
	err := s.connectionManager.Serve(ctx)
	log.Info().Msg("auction gateway service stopped")
	return err
}

// Broadcast implements auction.Broadcaster.
func (s *Service) Broadcast(event auction.Event) {
	s.connectionManager.Broadcast(event)
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.stateHandler.RegisterRoutes(mux)
	log.Info().Msg("auction gateway routes registered")
}

// Stats returns statistics about active connections.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
