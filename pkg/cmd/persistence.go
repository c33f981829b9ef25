package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/persistence/file"
	"github.com/dukex/followup/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL: postgres:// and
// postgresql:// URLs select PostgreSQL, anything else a directory of JSON files.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	default:
		p := file.NewPersistence(databaseURL)

		err := p.HealthCheck(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open file persistence: %w", err)
		}

		return p, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported && len(parts) > 1 {
			return provider
		}
	}

	return "file"
}

// NewDirectory returns the lead directory living next to the persistence:
// the leads table for PostgreSQL, a leads.json file otherwise. A non-empty
// redisURL adds a read-through cache in front of it.
func NewDirectory(
	ctx context.Context,
	logger *slog.Logger,
	databaseURL string,
	p persistence.Persistence,
	redisURL string,
) (leads.Directory, func() error, error) {
	var directory leads.Directory

	if pg, ok := p.(*postgresql.Persistence); ok {
		directory = leads.NewPostgresDirectory(pg.DB(), logger)
	} else {
		root := strings.Replace(databaseURL, "file://", "", 1)
		directory = leads.NewFileDirectory(filepath.Join(root, "leads.json"))
	}

	if redisURL == "" {
		return directory, func() error { return nil }, nil
	}

	client, err := leads.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	logger.InfoContext(ctx, "lead directory cache enabled")

	cached := leads.NewCachedDirectory(directory, leads.NewRedisCache(client), leads.DefaultCacheTTL, logger)

	return cached, client.Close, nil
}
