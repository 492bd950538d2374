// Package postgres provides a Postgres-backed output pipeline.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawlkit/internal/id/uuid"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for flushed output.
type Config struct {
	DSN             string
	EntityTable     string
	ErrorTable      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Pipeline writes flushed entities and extraction errors into Postgres.
// Entities are stored as JSONB rows so the pipeline stays agnostic of
// the caller-defined record type.
type Pipeline[E any] struct {
	pool        execCloser
	entityTable string
	errorTable  string
	idGen       *uuid.Generator
}

// New creates a Postgres-backed pipeline using the provided config.
func New[E any](ctx context.Context, cfg Config) (*Pipeline[E], error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pipeline.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool[E](pool, cfg.EntityTable, cfg.ErrorTable)
}

// NewWithPool constructs a pipeline from an existing pool (primarily for
// testing).
func NewWithPool[E any](pool execCloser, entityTable, errorTable string) (*Pipeline[E], error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if entityTable == "" {
		entityTable = "crawl_entities"
	}
	if errorTable == "" {
		errorTable = "crawl_errors"
	}
	for _, table := range []string{entityTable, errorTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Pipeline[E]{
		pool:        pool,
		entityTable: entityTable,
		errorTable:  errorTable,
		idGen:       uuid.New(),
	}, nil
}

// Close releases the underlying pool resources.
func (p *Pipeline[E]) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// FlushEntities inserts one JSONB row per entity.
func (p *Pipeline[E]) FlushEntities(ctx context.Context, es []E) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, payload, flushed_at) VALUES ($1, $2, $3)`,
		p.entityTable,
	)
	now := time.Now().UTC()
	for _, e := range es {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entity: %w", err)
		}
		id, err := p.idGen.NewID()
		if err != nil {
			return fmt.Errorf("entity row id: %w", err)
		}
		if _, err := p.pool.Exec(ctx, query, id, payload, now); err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
	}
	return nil
}

// FlushErrors inserts one row per extraction error message.
func (p *Pipeline[E]) FlushErrors(ctx context.Context, msgs []string) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, message, flushed_at) VALUES ($1, $2, $3)`,
		p.errorTable,
	)
	now := time.Now().UTC()
	for _, msg := range msgs {
		id, err := p.idGen.NewID()
		if err != nil {
			return fmt.Errorf("error row id: %w", err)
		}
		if _, err := p.pool.Exec(ctx, query, id, msg, now); err != nil {
			return fmt.Errorf("insert error: %w", err)
		}
	}
	return nil
}
