// Package sqlite implements the durable cart snapshot store on a local
// SQLite database. The store is a key-value pass-through: every save writes
// the full serialized cart, and loads tolerate absent keys.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	domain "github.com/optima-bank/loyalty/internal/domain"
	"github.com/optima-bank/loyalty/internal/repositories"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cart_snapshots (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Error implements repositories.RepositoryError for the snapshot store.
type Error struct {
	op  string
	err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound always reports false; absent keys are not errors for this store.
func (e *Error) IsNotFound() bool { return false }

// IsConflict always reports false.
func (e *Error) IsConflict() bool { return false }

// IsUnavailable reports whether the error stems from the database layer.
func (e *Error) IsUnavailable() bool {
	return e != nil && !errors.Is(e.err, repositories.ErrCorruptSnapshot)
}

type cartPayload struct {
	Items []cartItemPayload `json:"items"`
}

type cartItemPayload struct {
	VoucherID string `json:"voucher_id"`
	Title     string `json:"title"`
	Points    int64  `json:"points"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url"`
}

// CartStore persists cart snapshots in a local SQLite database.
type CartStore struct {
	db        *sql.DB
	namespace string
}

var _ repositories.CartSnapshotStore = (*CartStore)(nil)

// StoreOption customises CartStore construction.
type StoreOption func(*CartStore)

// WithNamespace prefixes every stored key, keeping snapshots from different
// deployments apart when they share a database file.
func WithNamespace(namespace string) StoreOption {
	return func(s *CartStore) {
		s.namespace = namespace
	}
}

// Open creates or opens the snapshot database at the given path, applying
// pragmas and the schema. Safe to call repeatedly.
func Open(path string, opts ...StoreOption) (*CartStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cart store: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cart store: connect: %w", err)
	}

	// SQLite supports a single writer; restrict the pool accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cart store: execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cart store: apply schema: %w", err)
	}

	store := &CartStore{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// storageKey namespaces the caller's key for persistence. Loaded carts keep
// the caller's key; the namespace never leaves the database.
func (s *CartStore) storageKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Close releases the underlying database handle.
func (s *CartStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies database connectivity for readiness probes.
func (s *CartStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("cart store: not initialised")
	}
	return s.db.PingContext(ctx)
}

// Load returns the snapshot for the key, reporting found=false when absent.
func (s *CartStore) Load(ctx context.Context, key string) (domain.Cart, bool, error) {
	var (
		raw       string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, updated_at FROM cart_snapshots WHERE key = ?`, s.storageKey(key),
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{Key: key}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, &Error{op: "cart store: load", err: err}
	}

	var payload cartPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.Cart{}, false, &Error{op: "cart store: load", err: fmt.Errorf("%w: %v", repositories.ErrCorruptSnapshot, err)}
	}

	cart := domain.Cart{Key: key, UpdatedAt: updatedAt}
	for _, item := range payload.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			VoucherID: item.VoucherID,
			Title:     item.Title,
			Points:    item.Points,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}
	return cart, true, nil
}

// Save writes the full snapshot, replacing any previous value for the key.
func (s *CartStore) Save(ctx context.Context, cart domain.Cart) error {
	if cart.Key == "" {
		return &Error{op: "cart store: save", err: errors.New("cart key is required")}
	}

	payload := cartPayload{Items: make([]cartItemPayload, 0, len(cart.Items))}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			VoucherID: item.VoucherID,
			Title:     item.Title,
			Points:    item.Points,
			Quantity:  item.Quantity,
			ImageURL:  item.ImageURL,
		})
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return &Error{op: "cart store: save", err: err}
	}

	updatedAt := cart.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cart_snapshots (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.storageKey(cart.Key), string(encoded), updatedAt,
	)
	if err != nil {
		return &Error{op: "cart store: save", err: err}
	}
	return nil
}

// Delete removes the snapshot for the key. Absent keys are not an error.
func (s *CartStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_snapshots WHERE key = ?`, s.storageKey(key)); err != nil {
		return &Error{op: "cart store: delete", err: err}
	}
	return nil
}
