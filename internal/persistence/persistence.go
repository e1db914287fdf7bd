package persistence

import (
	"context"
	"fmt"

	"github.com/berfenger/healthrecorder/internal/config"
	"github.com/berfenger/healthrecorder/internal/core/port"

	"go.uber.org/zap"
)

// NewMachineRepository builds the configured backend. The returned close func
// is never nil.
func NewMachineRepository(ctx context.Context, cfg config.PersistenceConfig, logger *zap.Logger) (port.MachineRepository, func() error, error) {
	switch cfg.Backend {
	case config.PERSISTENCE_BACKEND_SQLITE:
		repo, err := OpenSQLite(cfg.DBPath, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.SeedFile != "" {
			machines, err := LoadSeedFile(cfg.SeedFile)
			if err != nil {
				repo.Close()
				return nil, nil, err
			}
			if _, err := repo.Seed(ctx, machines); err != nil {
				repo.Close()
				return nil, nil, err
			}
		}
		return repo, repo.Close, nil
	case config.PERSISTENCE_BACKEND_REST:
		return NewRESTMachineRepository(cfg.BaseURL, cfg.Timeout(), logger), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}
