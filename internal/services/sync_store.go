package services

import (
	"context"

	"github.com/pocketledger/syncengine/internal/repository"
)

// SyncStore persists the device id and the pull watermark
type SyncStore struct {
	kv repository.KeyValueRepo
}

// NewSyncStore creates a new SyncStore
func NewSyncStore(kv repository.KeyValueRepo) *SyncStore {
	return &SyncStore{kv: kv}
}

// DeviceID returns the persisted device id, or nil if none was registered
func (s *SyncStore) DeviceID(ctx context.Context) (*string, error) {
	return s.get(ctx, repository.KeyDeviceID)
}

func (s *SyncStore) SetDeviceID(ctx context.Context, id string) error {
	return s.set(ctx, repository.KeyDeviceID, id)
}

// LastSyncedAt returns the watermark of the last committed cycle, or nil
// before the first one.
func (s *SyncStore) LastSyncedAt(ctx context.Context) (*string, error) {
	return s.get(ctx, repository.KeyLastSyncedAt)
}

func (s *SyncStore) SetLastSyncedAt(ctx context.Context, ts string) error {
	return s.set(ctx, repository.KeyLastSyncedAt, ts)
}

// Clear removes both keys
func (s *SyncStore) Clear(ctx context.Context) error {
	for _, key := range []string{repository.KeyDeviceID, repository.KeyLastSyncedAt} {
		if err := s.kv.Remove(ctx, key); err != nil {
			return &StorageError{Key: key, Err: err}
		}
	}
	return nil
}

func (s *SyncStore) get(ctx context.Context, key string) (*string, error) {
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, &StorageError{Key: key, Err: err}
	}
	if value == "" {
		return nil, nil
	}
	return &value, nil
}

func (s *SyncStore) set(ctx context.Context, key, value string) error {
	if err := s.kv.Set(ctx, key, value); err != nil {
		return &StorageError{Key: key, Err: err}
	}
	return nil
}
