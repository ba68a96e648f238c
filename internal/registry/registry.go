// Package registry reads person metadata from the external access
// control database. The registry is owned by another system; this
// client is strictly read-only and tolerates the registry being absent.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// ErrNotFound indicates the identity key has no registry entry.
var ErrNotFound = errors.New("person not found in registry")

// Person is one registry entry keyed by the numeric identity used for
// enrollment and matching.
type Person struct {
	Identity  int64
	Name      string
	DOB       string
	Address   string
	CreatedAt time.Time
}

// Client manages a read-only MariaDB connection to the registry.
type Client struct {
	db *sql.DB
}

// NewClient creates a new registry client.
func NewClient(dsn string) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("registry DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	return &Client{db: db}, nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("closing registry connection: %w", err)
		}
	}
	return nil
}

// Lookup returns the person registered under the given identity key.
func (c *Client) Lookup(ctx context.Context, identity int64) (*Person, error) {
	const query = `
		SELECT id, name, dob, address, created_at
		FROM persons
		WHERE id = ?
	`
	var p Person
	err := c.db.QueryRowContext(ctx, query, identity).Scan(
		&p.Identity, &p.Name, &p.DOB, &p.Address, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return &p, nil
}

// FindByName returns every person whose normalized name matches the
// query. Names are compared lowercase, without diacritics and with
// dashes treated as spaces, so "jan-novak" matches "Jan Novák".
func (c *Client) FindByName(ctx context.Context, name string) ([]Person, error) {
	const query = `
		SELECT id, name, dob, address, created_at
		FROM persons
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	// MariaDB collations differ per deployment; normalize in Go instead
	// of relying on the server's accent handling.
	want := NormalizePersonName(name)

	var persons []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.Identity, &p.Name, &p.DOB, &p.Address, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		if NormalizePersonName(p.Name) == want {
			persons = append(persons, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}
