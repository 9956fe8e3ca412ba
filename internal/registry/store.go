package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/rewatch/pkg/models"
)

// ErrSubscriptionNotFound is returned when no row matches the endpoint
var ErrSubscriptionNotFound = errors.New("registry: subscription not found")

// Store keeps one row per device/browser subscription: endpoint identity,
// serialized push credentials, delivery timezone, preferred time and the
// per-subscription dedup marker
type Store struct {
	db *sqlx.DB
}

// Connect opens the subscription database. A DATABASE_URL selects
// PostgreSQL; otherwise a SQLite file under dataDir is used.
func Connect(databaseURL, dataDir string) (*Store, error) {
	var db *sqlx.DB
	var err error

	if databaseURL != "" {
		db, err = sqlx.Connect("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("registry: connect to postgres: %w", err)
		}
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("registry: create data directory: %w", err)
		}
		db, err = sqlx.Connect("sqlite3", filepath.Join(dataDir, "subscriptions.db"))
		if err != nil {
			return nil, fmt.Errorf("registry: connect to sqlite: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s := &Store{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initializeSchema creates the subscriptions table if it doesn't exist
func (s *Store) initializeSchema() error {
	// Разные запросы для разных СУБД
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.db.DriverName() == "postgres" {
		idColumn = "id SERIAL PRIMARY KEY"
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS subscriptions (
			%s,
			endpoint TEXT UNIQUE NOT NULL,
			subscription_json TEXT NOT NULL,
			timezone TEXT NOT NULL,
			hhmm TEXT NOT NULL,
			last_sent_date TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, idColumn))
	if err != nil {
		return fmt.Errorf("registry: create subscriptions table: %w", err)
	}
	return nil
}

// Upsert creates or replaces a subscription keyed by endpoint. An existing
// row keeps its dedup marker; only credentials, timezone and preferred time
// are refreshed.
func (s *Store) Upsert(endpoint, subscriptionJSON, timezone, hhmm string) error {
	query := s.db.Rebind(`
		INSERT INTO subscriptions (endpoint, subscription_json, timezone, hhmm, last_sent_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (endpoint) DO UPDATE SET
			subscription_json = excluded.subscription_json,
			timezone = excluded.timezone,
			hhmm = excluded.hhmm,
			updated_at = CURRENT_TIMESTAMP
	`)
	if _, err := s.db.Exec(query, endpoint, subscriptionJSON, timezone, hhmm); err != nil {
		return fmt.Errorf("registry: upsert subscription: %w", err)
	}
	return nil
}

// UpdateSettings changes the timezone and preferred time of an existing
// subscription
func (s *Store) UpdateSettings(endpoint, timezone, hhmm string) error {
	query := s.db.Rebind(`
		UPDATE subscriptions
		SET timezone = ?, hhmm = ?, updated_at = CURRENT_TIMESTAMP
		WHERE endpoint = ?
	`)
	res, err := s.db.Exec(query, timezone, hhmm, endpoint)
	if err != nil {
		return fmt.Errorf("registry: update settings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Delete removes a subscription by endpoint. Deleting a missing endpoint is
// not an error.
func (s *Store) Delete(endpoint string) error {
	query := s.db.Rebind(`DELETE FROM subscriptions WHERE endpoint = ?`)
	if _, err := s.db.Exec(query, endpoint); err != nil {
		return fmt.Errorf("registry: delete subscription: %w", err)
	}
	return nil
}

// MarkSent sets the dedup marker to the given local-date string
func (s *Store) MarkSent(id int64, localDate string) error {
	query := s.db.Rebind(`
		UPDATE subscriptions
		SET last_sent_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`)
	if _, err := s.db.Exec(query, localDate, id); err != nil {
		return fmt.Errorf("registry: mark sent: %w", err)
	}
	return nil
}

// All returns every stored subscription
func (s *Store) All() ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.Select(&subs, `
		SELECT id, endpoint, subscription_json, timezone, hhmm, last_sent_date, created_at, updated_at
		FROM subscriptions
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: list subscriptions: %w", err)
	}
	return subs, nil
}

// GetByEndpoint returns one subscription
func (s *Store) GetByEndpoint(endpoint string) (*models.Subscription, error) {
	var sub models.Subscription
	query := s.db.Rebind(`
		SELECT id, endpoint, subscription_json, timezone, hhmm, last_sent_date, created_at, updated_at
		FROM subscriptions
		WHERE endpoint = ?
	`)
	err := s.db.Get(&sub, query, endpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get subscription: %w", err)
	}
	return &sub, nil
}
