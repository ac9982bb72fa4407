package repository

import (
	"context"
	"errors"

	"github.com/serenityjs/plugin-registry/internal/models"
)

var (
	// ErrPluginExists is returned by Insert when the id is already registered.
	ErrPluginExists = errors.New("plugin already registered")
	// ErrPluginNotFound is returned by writes that matched no row.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrDecode is returned when a stored row cannot be decoded into a StoredPlugin.
	ErrDecode = errors.New("decode stored plugin")
)

// PluginRepository is the durable registry of discovered plugins and their approval flag.
// Every method touches a single row and is atomic with respect to it.
type PluginRepository interface {
	Has(ctx context.Context, id int64) (bool, error)
	// Insert fails with ErrPluginExists when the id is already present.
	Insert(ctx context.Context, p *models.StoredPlugin) error
	// Get returns nil, nil for unknown ids.
	Get(ctx context.Context, id int64) (*models.StoredPlugin, error)
	// Update writes only the non-nil fields of u.
	Update(ctx context.Context, id int64, u models.StoredPluginUpdate) error
	// IsApproved is false for unknown ids.
	IsApproved(ctx context.Context, id int64) (bool, error)
	// SetApproval fails with ErrPluginNotFound when no row matched.
	SetApproval(ctx context.Context, id int64, approved bool) error
	List(ctx context.Context, approvedOnly bool) ([]models.StoredPlugin, error)
	Ping(ctx context.Context) error
	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error
	Close() error
}
