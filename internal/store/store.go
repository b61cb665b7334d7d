package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codeur-agent/codeur-responder/internal/lead"
)

// ErrNotFound is returned when an operation targets a reference that is not stored.
var ErrNotFound = errors.New("lead not found")

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// ListOptions narrows a listing. Zero values mean no limit and every status.
type ListOptions struct {
	Limit  int
	Status lead.Status
}

// Store persists leads keyed by reference. Every operation is atomic for a single record.
type Store interface {
	// Upsert inserts or replaces the lead and stamps its update time.
	Upsert(ctx context.Context, l *lead.Lead) error
	// Get returns nil without error when the reference is unknown.
	Get(ctx context.Context, reference string) (*lead.Lead, error)
	// List returns leads, most recently updated first.
	List(ctx context.Context, opts ListOptions) ([]*lead.Lead, error)
	Count(ctx context.Context, status lead.Status) (int64, error)
	UpdateStatus(ctx context.Context, reference string, status lead.Status) error
	Annotate(ctx context.Context, reference, note string) error
	Delete(ctx context.Context, reference string) error
	DeleteAll(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// Config selects and configures the backing database.
type Config struct {
	Driver string       `mapstructure:"driver"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// Open connects to the configured database and prepares its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverMongo:
		s, err := NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
