package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// BlobStore keeps each collection in a single Redis string key, so a write
// is one atomic SET and the last writer wins. Bump maps to INCR, which
// doubles as the change marker watchers poll.
type BlobStore struct {
	client *redis.Client
}

func NewBlobStore(client *redis.Client) *BlobStore {
	return &BlobStore{client: client}
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *BlobStore) Bump(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}
