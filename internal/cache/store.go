package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pdvlite/go-pos-sync.git/internal/pos"
)

// Snapshot keys. One row per entity set; values are JSON blobs.
const (
	KeyOrders    = "transactions"
	KeyProducts  = "products"
	KeyCustomers = "customers"
)

// Store is the durable local mirror of the remote entity sets, used only to
// serve reads and queue writes while the remote store is unreachable.
// Per-client; never shared between terminals.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the cache database. Use ":memory:" in tests.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv(
		  key        TEXT PRIMARY KEY,
		  value      TEXT NOT NULL,
		  updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the raw value for key; ok=false when the key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var v string
	err := s.db.Get(&v, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, string(value))
	return err
}

func (s *Store) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) setJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache %s: %w", key, err)
	}
	return s.Set(key, b)
}

func getJSON[T any](s *Store, key string) ([]T, error) {
	b, ok, err := s.Get(key)
	if err != nil || !ok {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("cache %s: %w", key, err)
	}
	return out, nil
}

func (s *Store) SaveOrders(orders []pos.Order) error       { return s.setJSON(KeyOrders, orders) }
func (s *Store) LoadOrders() ([]pos.Order, error)          { return getJSON[pos.Order](s, KeyOrders) }
func (s *Store) SaveProducts(products []pos.Product) error { return s.setJSON(KeyProducts, products) }
func (s *Store) LoadProducts() ([]pos.Product, error)      { return getJSON[pos.Product](s, KeyProducts) }
func (s *Store) SaveCustomers(cs []pos.Customer) error     { return s.setJSON(KeyCustomers, cs) }
func (s *Store) LoadCustomers() ([]pos.Customer, error)    { return getJSON[pos.Customer](s, KeyCustomers) }
