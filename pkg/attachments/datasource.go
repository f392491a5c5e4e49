package attachments

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/forest6511/vaultsync/pkg/storage"
)

// Unlimited is reported by AvailableStorage when a datasource has no quota.
const Unlimited int64 = -1

// keyPrefix prefixes the storage keys of attachment blobs.
const keyPrefix = "attachment:"

// Datasource stores encrypted attachment blobs for vaults.
type Datasource interface {
	// AvailableStorage returns the free bytes, or Unlimited.
	AvailableStorage(ctx context.Context) (int64, error)
	PutAttachment(ctx context.Context, vaultID, attachmentID string, data []byte) error
	GetAttachment(ctx context.Context, vaultID, attachmentID string) ([]byte, error)
	RemoveAttachment(ctx context.Context, vaultID, attachmentID string) error
}

func blobKey(vaultID, attachmentID string) string {
	return keyPrefix + vaultID + ":" + attachmentID
}

// MemoryDatasource keeps blobs in memory.
type MemoryDatasource struct {
	mu       sync.Mutex
	capacity int64
	blobs    map[string][]byte
}

// NewMemoryDatasource creates an in-memory datasource.
// A capacity of zero or less means Unlimited.
func NewMemoryDatasource(capacity int64) *MemoryDatasource {
	if capacity <= 0 {
		capacity = Unlimited
	}
	return &MemoryDatasource{capacity: capacity, blobs: make(map[string][]byte)}
}

// AvailableStorage implements Datasource.
func (m *MemoryDatasource) AvailableStorage(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capacity == Unlimited {
		return Unlimited, nil
	}
	var used int64
	for _, b := range m.blobs {
		used += int64(len(b))
	}
	return max(m.capacity-used, 0), nil
}

// PutAttachment implements Datasource.
func (m *MemoryDatasource) PutAttachment(_ context.Context, vaultID, attachmentID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[blobKey(vaultID, attachmentID)] = append([]byte(nil), data...)
	return nil
}

// GetAttachment implements Datasource.
func (m *MemoryDatasource) GetAttachment(_ context.Context, vaultID, attachmentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[blobKey(vaultID, attachmentID)]
	if !ok {
		return nil, ErrAttachmentNotFound
	}
	return append([]byte(nil), b...), nil
}

// RemoveAttachment implements Datasource.
func (m *MemoryDatasource) RemoveAttachment(_ context.Context, vaultID, attachmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, blobKey(vaultID, attachmentID))
	return nil
}

// StorageDatasource keeps blobs as base64 values inside a storage.Interface.
// The quota counts raw blob bytes.
type StorageDatasource struct {
	store storage.Interface
	quota int64
}

// NewStorageDatasource wraps store. A quota of zero or less means Unlimited.
func NewStorageDatasource(store storage.Interface, quota int64) *StorageDatasource {
	if quota <= 0 {
		quota = Unlimited
	}
	return &StorageDatasource{store: store, quota: quota}
}

// AvailableStorage implements Datasource.
func (s *StorageDatasource) AvailableStorage(ctx context.Context) (int64, error) {
	if s.quota == Unlimited {
		return Unlimited, nil
	}
	keys, err := s.store.GetAllKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("attachments: failed to list blobs: %w", err)
	}
	var used int64
	for _, key := range keys {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		raw, err := s.store.GetValue(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("attachments: failed to read blob %s: %w", key, err)
		}
		used += int64(decodedSize(raw))
	}
	return max(s.quota-used, 0), nil
}

// PutAttachment implements Datasource.
func (s *StorageDatasource) PutAttachment(ctx context.Context, vaultID, attachmentID string, data []byte) error {
	if err := s.store.SetValue(ctx, blobKey(vaultID, attachmentID), base64.StdEncoding.EncodeToString(data)); err != nil {
		return fmt.Errorf("attachments: failed to store blob: %w", err)
	}
	return nil
}

// GetAttachment implements Datasource.
func (s *StorageDatasource) GetAttachment(ctx context.Context, vaultID, attachmentID string) ([]byte, error) {
	raw, err := s.store.GetValue(ctx, blobKey(vaultID, attachmentID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("attachments: failed to read blob: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("attachments: corrupt blob: %w", err)
	}
	return data, nil
}

// RemoveAttachment implements Datasource.
func (s *StorageDatasource) RemoveAttachment(ctx context.Context, vaultID, attachmentID string) error {
	if err := s.store.RemoveKey(ctx, blobKey(vaultID, attachmentID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("attachments: failed to remove blob: %w", err)
	}
	return nil
}

// decodedSize returns the exact byte length of a padded base64 string.
func decodedSize(raw string) int {
	n := base64.StdEncoding.DecodedLen(len(raw))
	return n - strings.Count(raw[max(len(raw)-2, 0):], "=")
}
