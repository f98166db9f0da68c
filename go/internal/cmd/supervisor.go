package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"
)

// named gives a supervised component a stable name in supervisor events.
type named struct {
	name  string
	serve func(ctx context.Context) error
}

func (n named) Serve(ctx context.Context) error { return n.serve(ctx) }
func (n named) String() string                  { return n.name }

func setupSupervisor(services *Services, server *http.Server) *suture.Supervisor {
	supervisor := suture.New("teamauction", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	supervisor.Add(named{"coordinator", services.Coordinator.Serve})
	supervisor.Add(named{"scheduler", services.Scheduler.Serve})
	supervisor.Add(named{"gateway", services.Gateway.Serve})
	if services.Bus != nil {
		supervisor.Add(named{"event-bus", services.Bus.Serve})
	}
	supervisor.Add(&httpServerService{server: server, shutdownTimeout: 10 * time.Second})
	return supervisor
}
