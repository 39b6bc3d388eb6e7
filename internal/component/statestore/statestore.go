// Package statestore implements the state.{read,write,delete} host
// import's backing storage, scoped by environment/tenant/team/user plus
// a caller-supplied key prefix. The in-memory backend is the default for
// tests and local development; redis, postgres, and sqlite backends are
// provided behind the same interface for deployments that need
// durability, grounded on the connection-pool conventions already used
// elsewhere in this module's storage-adjacent packages.
package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Scope identifies the namespace a state key lives in.
type Scope struct {
	Env    string
	Tenant string
	Team   string
	User   string
	Prefix string
}

func (s Scope) namespace() string {
	return fmt.Sprintf("%s::%s::%s::%s::%s", s.Env, s.Tenant, s.Team, s.User, s.Prefix)
}

// Store is the backend-agnostic state key/value contract.
type Store interface {
	Read(ctx context.Context, scope Scope, key string) ([]byte, bool, error)
	Write(ctx context.Context, scope Scope, key string, value []byte) error
	Delete(ctx context.Context, scope Scope, key string) error
}

// MemoryStore is an in-process map-backed Store, the default for tests
// and for components that declare host.state without a durable backend
// configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) fullKey(scope Scope, key string) string {
	return scope.namespace() + "::" + key
}

func (m *MemoryStore) Read(_ context.Context, scope Scope, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[m.fullKey(scope, key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Write(_ context.Context, scope Scope, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[m.fullKey(scope, key)] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, scope Scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.fullKey(scope, key))
	return nil
}

// RedisStore persists state keys in Redis, namespacing by scope.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Read(ctx context.Context, scope Scope, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.fullKey(scope, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statestore: redis get: %w", err)
	}
	return val, true, nil
}

func (r *RedisStore) Write(ctx context.Context, scope Scope, key string, value []byte) error {
	if err := r.client.Set(ctx, r.fullKey(scope, key), value, 0).Err(); err != nil {
		return fmt.Errorf("statestore: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := r.client.Del(ctx, r.fullKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("statestore: redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) fullKey(scope Scope, key string) string {
	return "compstate:" + scope.namespace() + ":" + key
}

// PostgresStore persists state keys in a Postgres table
// (namespace, key, value), upserting on write.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB (expected to be opened with
// the lib/pq driver); the caller is responsible for the schema:
//
//	CREATE TABLE IF NOT EXISTS component_state (
//	    namespace TEXT NOT NULL, key TEXT NOT NULL, value BYTEA NOT NULL,
//	    PRIMARY KEY (namespace, key))
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a *sql.DB against dsn using the lib/pq driver
// and wraps it as a PostgresStore.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: opening postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func (p *PostgresStore) Read(ctx context.Context, scope Scope, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM component_state WHERE namespace = $1 AND key = $2`,
		scope.namespace(), key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statestore: postgres select: %w", err)
	}
	return value, true, nil
}

func (p *PostgresStore) Write(ctx context.Context, scope Scope, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO component_state (namespace, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`,
		scope.namespace(), key, value)
	if err != nil {
		return fmt.Errorf("statestore: postgres upsert: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, scope Scope, key string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM component_state WHERE namespace = $1 AND key = $2`,
		scope.namespace(), key)
	if err != nil {
		return fmt.Errorf("statestore: postgres delete: %w", err)
	}
	return nil
}

// SQLiteStore persists state keys in an embedded modernc.org/sqlite
// database, for durable single-node local/dev deployments that don't
// want a separate Postgres or Redis instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB opened with the modernc.org
// sqlite driver; schema is identical to PostgresStore's.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenSQLiteStore opens a *sql.DB against path using the modernc.org
// sqlite driver and wraps it as a SQLiteStore.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statestore: opening sqlite: %w", err)
	}
	return NewSQLiteStore(db), nil
}

func (s *SQLiteStore) Read(ctx context.Context, scope Scope, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM component_state WHERE namespace = ? AND key = ?`,
		scope.namespace(), key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statestore: sqlite select: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, scope Scope, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO component_state (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		scope.namespace(), key, value)
	if err != nil {
		return fmt.Errorf("statestore: sqlite upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, scope Scope, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM component_state WHERE namespace = ? AND key = ?`,
		scope.namespace(), key)
	if err != nil {
		return fmt.Errorf("statestore: sqlite delete: %w", err)
	}
	return nil
}
