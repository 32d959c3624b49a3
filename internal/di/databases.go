package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/augur/internal/config"
	"github.com/aristath/augur/internal/database"
)

// CacheDBFile is the response cache inside the data directory
const CacheDBFile = "cache.db"

// InitializeDatabases opens cache.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	cacheDB, err := database.New(database.Config{
		Path:    cfg.Path(CacheDBFile),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}

	if err := cacheDB.Migrate(); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	container.CacheDB = cacheDB

	log.Info().Str("path", cacheDB.Path()).Msg("Cache database initialized")

	return container, nil
}
