package repository

import (
	"context"
	"fmt"
)

// Open connects to the configured backend and brings its schema up to date.
func Open(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	var (
		repo *SQLRepository
		err  error
	)
	switch driver {
	case "sqlite":
		repo, err = NewSQLiteRepository(dsn)
	case "postgres":
		repo, err = NewPostgresRepository(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate %s registry: %w", driver, err)
	}
	return repo, nil
}
