package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/oddsforge/propline/internal/domain"
)

// Config holds database connection configuration
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Enabled         bool          `yaml:"enabled"`
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
		Enabled:         false,
	}
}

// PropsRepo is the durable store for canonical props
type PropsRepo interface {
	Upsert(ctx context.Context, prop *domain.CanonicalProp) error
	MarkSuperseded(ctx context.Context, hash domain.LineHash) error
	GetByHash(ctx context.Context, hash domain.LineHash) (*domain.CanonicalProp, error)
	ListBySport(ctx context.Context, sport domain.Sport, limit int) ([]domain.CanonicalProp, error)
	ListByGame(ctx context.Context, gameID string, limit int) ([]domain.CanonicalProp, error)
	DeleteByGame(ctx context.Context, gameID string) (int64, error)
	Ping(ctx context.Context) error
}

// Manager owns the database connection and the repository instance
type Manager struct {
	db     *sqlx.DB
	config Config
	props  PropsRepo
}

// NewManager opens the database connection pool and wires the repository.
// With persistence disabled the manager carries a nil repository and the
// pipeline runs cache-only.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Manager{
		db:     db,
		config: config,
		props:  NewPropsRepo(db, config.QueryTimeout),
	}, nil
}

// Props returns the props repository, or nil when persistence is disabled
func (m *Manager) Props() PropsRepo {
	return m.props
}

// IsEnabled reports whether durable persistence is active
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// DB exposes the pool for migrations
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Close closes the connection pool
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
