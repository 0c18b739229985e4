// Package store persists registry records in PostgreSQL.
//
// Records are JSONB documents addressed by (collection, composite path key).
// The path key is the sole coordination point of the pipeline: callers are
// responsible for running at most one sync pass per key at a time; the store
// itself only guarantees atomic per-record reads and writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
)

// ErrNotFound is returned when no record exists at the requested path.
var ErrNotFound = errors.New("record not found")

const (
	collectionRepos = "repos"
	collectionCogs  = "cogs"

	opTimeout = 10 * time.Second
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Manager manages the PostgreSQL-backed record store.
type Manager struct {
	dbpool dbPool
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// Connect creates a record store with a PostgreSQL connection pool using the
// provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func Connect(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %v", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool}, nil
}

// GetRepository returns the repository stored at path, or ErrNotFound.
func (s Manager) GetRepository(ctx context.Context, path string) (*models.Repository, error) {
	var repo models.Repository
	if err := s.get(ctx, collectionRepos, path, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// PutRepository inserts or replaces the repository record at its path.
func (s Manager) PutRepository(ctx context.Context, repo *models.Repository) error {
	return s.put(ctx, collectionRepos, repo.Path, repo.AuthorName, repo)
}

// GetCog returns the cog stored at path, or ErrNotFound.
func (s Manager) GetCog(ctx context.Context, path string) (*models.Cog, error) {
	var cog models.Cog
	if err := s.get(ctx, collectionCogs, path, &cog); err != nil {
		return nil, err
	}
	return &cog, nil
}

// PutCog inserts or replaces the cog record at its path.
func (s Manager) PutCog(ctx context.Context, cog *models.Cog) error {
	return s.put(ctx, collectionCogs, cog.Path, cog.AuthorName, cog)
}

// DeleteCog removes the cog record at path. Deleting an absent record is not
// an error.
func (s Manager) DeleteCog(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.dbpool.Exec(ctx,
		`DELETE FROM registry_records WHERE collection = $1 AND path = $2`,
		collectionCogs, path)
	if err != nil {
		return fmt.Errorf("failed to delete cog %q: %v", path, err)
	}
	return nil
}

// CogsByPrefix returns every cog of owner whose path starts with prefix, in
// path order.
func (s Manager) CogsByPrefix(ctx context.Context, owner, prefix string) ([]models.Cog, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.dbpool.Query(ctx,
		`SELECT doc FROM registry_records
		 WHERE collection = $1 AND owner = $2 AND path LIKE $3 || '%'
		 ORDER BY path`,
		collectionCogs, owner, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query cogs by prefix %q: %v", prefix, err)
	}
	defer rows.Close()

	var cogs []models.Cog
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan cog record: %v", err)
		}
		var cog models.Cog
		if err := json.Unmarshal(doc, &cog); err != nil {
			return nil, fmt.Errorf("failed to decode cog record: %v", err)
		}
		cogs = append(cogs, cog)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cog records: %v", err)
	}
	return cogs, nil
}

func (s Manager) get(ctx context.Context, collection, path string, dest any) error {
	if s.dbpool == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc []byte
	err := s.dbpool.QueryRow(ctx,
		`SELECT doc FROM registry_records WHERE collection = $1 AND path = $2`,
		collection, path).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get record %q: %v", path, err)
	}

	if err := json.Unmarshal(doc, dest); err != nil {
		return fmt.Errorf("failed to decode record %q: %v", path, err)
	}
	return nil
}

func (s Manager) put(ctx context.Context, collection, path, owner string, record any) error {
	if s.dbpool == nil {
		return fmt.Errorf("database not initialized")
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %v", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = s.dbpool.Exec(ctx,
		`INSERT INTO registry_records (collection, path, owner, doc)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, path) DO UPDATE SET owner = $3, doc = $4`,
		collection, path, owner, doc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("put canceled: %v", err)
		}
		return fmt.Errorf("failed to put record %q: %v", path, err)
	}
	return nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (s *Manager) Close() error {
	if s.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dbpool.Close()
	}()

	select {
	case <-done:
		s.dbpool = nil
		return nil
	case <-time.After(opTimeout):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
