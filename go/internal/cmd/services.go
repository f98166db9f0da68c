package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/auction/eventbus"
	"github.com/mcdev12/teamauction/go/internal/auction/gateway"
	"github.com/mcdev12/teamauction/go/internal/config"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Coordinator *auction.Coordinator
	Scheduler   *auction.Scheduler
	Gateway     *gateway.Service
	Bus         *eventbus.Bus // nil when NATS is not configured
}

func setupServices(ctx context.Context, cfg *config.Config, store auction.Store) (*Services, error) {
	// Gateway and bus are broadcasters of the coordinator, which in turn
	// serves their inbound requests.
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	gatewayConfig.ConnectionConfig.MessagesPerSecond = cfg.WebSocket.MessagesPerSecond
	gatewayConfig.ConnectionConfig.MessageBurst = cfg.WebSocket.MessageBurst
	gatewayService := gateway.NewService(gatewayConfig)

	broadcasters := auction.Broadcasters{gatewayService}

	var bus *eventbus.Bus
	if cfg.NATS.URL != "" {
		busConfig := eventbus.DefaultConfig()
		busConfig.URL = cfg.NATS.URL
		busConfig.StreamName = cfg.NATS.StreamName
		busConfig.SubjectPrefix = cfg.NATS.SubjectPrefix

		var err error
		bus, err = eventbus.Connect(ctx, busConfig, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event bus: %w", err)
		}
		broadcasters = append(broadcasters, bus)
		log.Info().Str("url", busConfig.URL).Str("stream", busConfig.StreamName).Msg("event bus connected")
	} else {
		log.Info().Msg("NATS_URL not set, event bus disabled")
	}

	coordinator := auction.NewCoordinator(store, broadcasters, nil, cfg.AuctionConfig())
	gatewayService.Bind(coordinator)
	if bus != nil {
		bus.SetPauser(coordinator)
	}

	return &Services{
		Coordinator: coordinator,
		Scheduler:   auction.NewScheduler(coordinator, store),
		Gateway:     gatewayService,
		Bus:         bus,
	}, nil
}

func (s *Services) Close() {
	s.Coordinator.Close()
	if s.Bus != nil {
		s.Bus.Close()
	}
}
