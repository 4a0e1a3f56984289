package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLaunchCache implements domain.EntitlementCache with PostgreSQL.
type PostgresLaunchCache struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgresLaunchCache creates a cache stored under key in launch_results.
func NewPostgresLaunchCache(pool *pgxpool.Pool, key string) *PostgresLaunchCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &PostgresLaunchCache{pool: pool, key: key}
}

// Load returns the stored result, or nil, nil if nothing was stored yet.
func (c *PostgresLaunchCache) Load(ctx context.Context) (*domain.SessionResult, error) {
	var payload []byte
	err := c.pool.QueryRow(ctx,
		`SELECT payload FROM launch_results WHERE cache_key = $1`, c.key,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeResult(payload)
}

// Save upserts the stored result.
func (c *PostgresLaunchCache) Save(ctx context.Context, result *domain.SessionResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO launch_results (cache_key, uid, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (cache_key) DO UPDATE SET
			uid = EXCLUDED.uid,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`
	_, err = c.pool.Exec(ctx, query, c.key, result.UID, data)
	return err
}

// Clear removes the stored result.
func (c *PostgresLaunchCache) Clear(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM launch_results WHERE cache_key = $1`, c.key)
	return err
}

// PostgresPendingStore implements domain.PendingPurchaseStore with PostgreSQL.
type PostgresPendingStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPendingStore creates a new store.
func NewPostgresPendingStore(pool *pgxpool.Pool) *PostgresPendingStore {
	return &PostgresPendingStore{pool: pool}
}

// LoadAll returns every record, oldest first.
func (s *PostgresPendingStore) LoadAll(ctx context.Context) ([]*domain.PendingPurchase, error) {
	query := `
		SELECT id, payload, attempts, next_attempt_at, last_error, created_at
		FROM pending_purchases
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.PendingPurchase, 0)
	for rows.Next() {
		var (
			record  domain.PendingPurchase
			payload []byte
		)
		if err := rows.Scan(&record.ID, &payload, &record.Attempts, &record.NextAttemptAt, &record.LastError, &record.CreatedAt); err != nil {
			return nil, err
		}
		if record.Purchase, err = decodePurchase(payload); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// Save inserts or replaces a record.
func (s *PostgresPendingStore) Save(ctx context.Context, record *domain.PendingPurchase) error {
	payload, err := encodePurchase(record.Purchase)
	if err != nil {
		return err
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pending_purchases (id, store_id, purchase_token, payload, attempts, next_attempt_at, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			attempts = EXCLUDED.attempts,
			next_attempt_at = EXCLUDED.next_attempt_at,
			last_error = EXCLUDED.last_error
	`
	_, err = s.pool.Exec(ctx, query,
		record.ID,
		record.Purchase.ProductID,
		record.Purchase.PurchaseToken,
		payload,
		record.Attempts,
		record.NextAttemptAt,
		record.LastError,
		createdAt,
	)
	return err
}

// Remove deletes a record.
func (s *PostgresPendingStore) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_purchases WHERE id = $1`, id)
	return err
}

var (
	_ domain.EntitlementCache     = (*PostgresLaunchCache)(nil)
	_ domain.PendingPurchaseStore = (*PostgresPendingStore)(nil)
)
