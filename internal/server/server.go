package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/healthrecorder/internal/config"
	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/service"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the part of the recorder facade the HTTP surface drives.
type Recorder interface {
	Machines() ([]domain.Machine, error)
	Start(cfg domain.SessionConfig) (string, error)
	Stop() (bool, error)
	Reconfigure(cfg domain.SessionConfig) error
	Status() (domain.SessionStatus, error)
	Health() (domain.ActorHealthResponse, error)
	Snapshot() (domain.Machine, bool)
	Series(kind domain.SensorKind) (domain.SensorChannel, []service.ChartPoint, bool)
}

type Server struct {
	port     uint
	httpLog  bool
	recorder Recorder
	gatherer prometheus.Gatherer
}

func NewServer(cfg config.Config, recorder Recorder, gatherer prometheus.Gatherer) *http.Server {
	NewServer := &Server{
		port:     cfg.Port,
		httpLog:  cfg.HttpLog,
		recorder: recorder,
		gatherer: gatherer,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
