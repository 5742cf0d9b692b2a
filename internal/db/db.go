package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/core/internal/reliability"
)

// databaseBreakerFailureThreshold/RecoveryTimeout mirror the defaults the
// reliability layer uses elsewhere (§4.1); the database breaker is its own
// named entry in a shared reliability.Registry.
const (
	databaseBreakerFailureThreshold = 5
	databaseBreakerRecoveryTimeout  = 30 * time.Second
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	pool           *pgxpool.Pool
	circuitBreaker *reliability.Breaker
}

// New creates a new database connection pool against dsn. If dsn is
// empty, it falls back to the DATABASE_URL environment variable; Vault
// secret loading happens once at startup into config.Config (see
// config.LoadSecretsFromVault), not per-connection here, so this package
// has no Vault dependency of its own.
func New(ctx context.Context, dsn string) (*DB, error) {
	databaseURL := dsn
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set and no dsn provided")
	}

	// Configure connection pool
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Set pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Database connection pool created successfully")

	return &DB{
		pool:           pool,
		circuitBreaker: reliability.NewBreaker("database", databaseBreakerFailureThreshold, databaseBreakerRecoveryTimeout),
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return fmt.Errorf("database connection pool is nil")
	}
	return db.pool.Ping(ctx)
}

// Pool returns the underlying connection pool
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// SetPool sets the connection pool (used by tests)
func (db *DB) SetPool(pool *pgxpool.Pool) {
	db.pool = pool
}

// ExecuteWithCircuitBreaker executes a database operation with circuit breaker protection
// This wraps database calls to prevent cascading failures during database outages
func (db *DB) ExecuteWithCircuitBreaker(operation func() (interface{}, error)) (interface{}, error) {
	if db.circuitBreaker == nil {
		// Fallback if circuit breaker is not initialized
		return operation()
	}

	result, err := db.circuitBreaker.Execute(operation)
	if err != nil {
		if err == reliability.ErrCircuitOpen {
			return nil, fmt.Errorf("database circuit breaker is open, service unavailable")
		}
		return nil, err
	}

	return result, nil
}

// GetCircuitBreaker returns the circuit breaker for this database
// This allows external code to use the same circuit breaker instance
func (db *DB) GetCircuitBreaker() *reliability.Breaker {
	return db.circuitBreaker
}

// SetCircuitBreaker sets a custom circuit breaker
// This is useful for sharing circuit breakers across components
func (db *DB) SetCircuitBreaker(cb *reliability.Breaker) {
	db.circuitBreaker = cb
}
