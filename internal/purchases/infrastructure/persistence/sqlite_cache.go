package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/google/uuid"
)

// DefaultCacheKey keys the launch result row when a database is shared by
// several projects and none is configured.
const DefaultCacheKey = "default"

// SQLiteLaunchCache implements domain.EntitlementCache with SQLite.
type SQLiteLaunchCache struct {
	dbConn *sql.DB
	key    string
}

// NewSQLiteLaunchCache creates a cache stored under key in launch_results.
func NewSQLiteLaunchCache(dbConn *sql.DB, key string) *SQLiteLaunchCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &SQLiteLaunchCache{dbConn: dbConn, key: key}
}

// Load returns the stored result, or nil, nil if nothing was stored yet.
func (c *SQLiteLaunchCache) Load(ctx context.Context) (*domain.SessionResult, error) {
	var payload string
	err := c.dbConn.QueryRowContext(ctx,
		`SELECT payload FROM launch_results WHERE cache_key = ?`, c.key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeResult([]byte(payload))
}

// Save upserts the stored result.
func (c *SQLiteLaunchCache) Save(ctx context.Context, result *domain.SessionResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO launch_results (cache_key, uid, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			uid = excluded.uid,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`
	_, err = c.dbConn.ExecContext(ctx, query, c.key, result.UID, string(data), time.Now().UTC().Format(time.RFC3339))
	return err
}

// Clear removes the stored result.
func (c *SQLiteLaunchCache) Clear(ctx context.Context) error {
	_, err := c.dbConn.ExecContext(ctx, `DELETE FROM launch_results WHERE cache_key = ?`, c.key)
	return err
}

// SQLitePendingStore implements domain.PendingPurchaseStore with SQLite.
type SQLitePendingStore struct {
	dbConn *sql.DB
}

// NewSQLitePendingStore creates a new store.
func NewSQLitePendingStore(dbConn *sql.DB) *SQLitePendingStore {
	return &SQLitePendingStore{dbConn: dbConn}
}

// LoadAll returns every record, oldest first.
func (s *SQLitePendingStore) LoadAll(ctx context.Context) ([]*domain.PendingPurchase, error) {
	query := `
		SELECT id, payload, attempts, next_attempt_at, last_error, created_at
		FROM pending_purchases
		ORDER BY created_at, id
	`
	rows, err := s.dbConn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.PendingPurchase, 0)
	for rows.Next() {
		var (
			id          string
			payload     string
			attempts    int
			nextAttempt sql.NullString
			lastError   string
			createdAt   string
		)
		if err := rows.Scan(&id, &payload, &attempts, &nextAttempt, &lastError, &createdAt); err != nil {
			return nil, err
		}

		record := &domain.PendingPurchase{Attempts: attempts, LastError: lastError}
		if record.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if record.Purchase, err = decodePurchase([]byte(payload)); err != nil {
			return nil, err
		}
		if record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		if nextAttempt.Valid {
			next, err := time.Parse(time.RFC3339Nano, nextAttempt.String)
			if err != nil {
				return nil, err
			}
			record.NextAttemptAt = &next
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// Save inserts or replaces a record.
func (s *SQLitePendingStore) Save(ctx context.Context, record *domain.PendingPurchase) error {
	payload, err := encodePurchase(record.Purchase)
	if err != nil {
		return err
	}
	var nextAttempt any
	if record.NextAttemptAt != nil {
		nextAttempt = record.NextAttemptAt.UTC().Format(time.RFC3339Nano)
	}

	query := `
		INSERT INTO pending_purchases (id, store_id, purchase_token, payload, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			attempts = excluded.attempts,
			next_attempt_at = excluded.next_attempt_at,
			last_error = excluded.last_error
	`
	_, err = s.dbConn.ExecContext(ctx, query,
		record.ID.String(),
		record.Purchase.ProductID,
		record.Purchase.PurchaseToken,
		string(payload),
		record.Attempts,
		nextAttempt,
		record.LastError,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Remove deletes a record.
func (s *SQLitePendingStore) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbConn.ExecContext(ctx, `DELETE FROM pending_purchases WHERE id = ?`, id.String())
	return err
}

var (
	_ domain.EntitlementCache     = (*SQLiteLaunchCache)(nil)
	_ domain.PendingPurchaseStore = (*SQLitePendingStore)(nil)
)
