package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/crypto"
	"github.com/google/uuid"
)

const (
	launchResultFile    = "launch_result.json"
	pendingPurchaseFile = "pending_purchases.json"
	installDateFile     = "install_date"
)

// writeFile writes data through a temp file and rename so readers never see
// a partial document.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// FileLaunchCache implements domain.EntitlementCache with a JSON file.
// With an encrypter set, the file is sealed with AES-GCM.
type FileLaunchCache struct {
	filePath  string
	encrypter crypto.Encrypter
	mu        sync.RWMutex
}

// NewFileLaunchCache creates a cache stored as launch_result.json in dir.
func NewFileLaunchCache(dir string, encrypter crypto.Encrypter) *FileLaunchCache {
	return &FileLaunchCache{
		filePath:  filepath.Join(dir, launchResultFile),
		encrypter: encrypter,
	}
}

// Load returns the stored result, or nil, nil if nothing was stored yet.
func (c *FileLaunchCache) Load(ctx context.Context) (*domain.SessionResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := readFile(c.filePath)
	if err != nil || data == nil {
		return nil, err
	}
	if c.encrypter != nil {
		if data, err = c.encrypter.Decrypt(data); err != nil {
			return nil, fmt.Errorf("decrypt launch cache: %w", err)
		}
	}
	return decodeResult(data)
}

// Save replaces the stored result.
func (c *FileLaunchCache) Save(ctx context.Context, result *domain.SessionResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	if c.encrypter != nil {
		if data, err = c.encrypter.Encrypt(data); err != nil {
			return fmt.Errorf("encrypt launch cache: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFile(c.filePath, data)
}

// Clear removes the stored result.
func (c *FileLaunchCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// FilePath returns the path to the cache file.
func (c *FileLaunchCache) FilePath() string {
	return c.filePath
}

// FilePendingStore implements domain.PendingPurchaseStore with a JSON file
// holding every record.
type FilePendingStore struct {
	filePath string
	mu       sync.Mutex
}

// NewFilePendingStore creates a store kept as pending_purchases.json in dir.
func NewFilePendingStore(dir string) *FilePendingStore {
	return &FilePendingStore{filePath: filepath.Join(dir, pendingPurchaseFile)}
}

func (s *FilePendingStore) read() (map[uuid.UUID]*domain.PendingPurchase, error) {
	data, err := readFile(s.filePath)
	if err != nil {
		return nil, err
	}
	records := make(map[uuid.UUID]*domain.PendingPurchase)
	if data == nil {
		return records, nil
	}
	var list []*domain.PendingPurchase
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode pending purchases: %w", err)
	}
	for _, r := range list {
		records[r.ID] = r
	}
	return records, nil
}

func (s *FilePendingStore) write(records map[uuid.UUID]*domain.PendingPurchase) error {
	data, err := json.MarshalIndent(sortedRecords(records), "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.filePath, data)
}

// LoadAll returns every record, oldest first.
func (s *FilePendingStore) LoadAll(ctx context.Context) ([]*domain.PendingPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	return sortedRecords(records), nil
}

// Save inserts or replaces a record.
func (s *FilePendingStore) Save(ctx context.Context, record *domain.PendingPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	cp := *record
	records[record.ID] = &cp
	return s.write(records)
}

// Remove deletes a record. Removing an unknown id is not an error.
func (s *FilePendingStore) Remove(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)
	return s.write(records)
}

func sortedRecords(records map[uuid.UUID]*domain.PendingPurchase) []*domain.PendingPurchase {
	list := make([]*domain.PendingPurchase, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID.String() < list[j].ID.String()
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// InstallDate returns the unix time recorded in dir on first use, recording
// now if nothing is there yet.
func InstallDate(dir string, now time.Time) (int64, error) {
	path := filepath.Join(dir, installDateFile)
	data, err := readFile(path)
	if err != nil {
		return 0, err
	}
	if data != nil {
		ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err == nil {
			return ts, nil
		}
	}

	ts := now.Unix()
	if err := writeFile(path, []byte(strconv.FormatInt(ts, 10))); err != nil {
		return 0, err
	}
	return ts, nil
}

var (
	_ domain.EntitlementCache     = (*FileLaunchCache)(nil)
	_ domain.PendingPurchaseStore = (*FilePendingStore)(nil)
)
