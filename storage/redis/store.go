package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/vpnkit/entitlements"
)

// Store keeps the entitlement ledger in a single Redis hash, one field per
// client ID holding the JSON-encoded record. Field writes are atomic, and
// HGetAll gives the sweeper a point-in-time view.
type Store struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Store {
	if key == "" {
		key = "vpn:entitlements"
	}
	return &Store{rdb: rdb, key: key}
}

func (s *Store) Get(ctx context.Context, clientID string) (*entitlements.Record, error) {
	val, err := s.rdb.HGet(ctx, s.key, clientID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: hget %s: %w", clientID, err)
	}
	var rec entitlements.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("redisstore: decode %s: %w", clientID, err)
	}
	return &rec, nil
}

func (s *Store) Upsert(ctx context.Context, rec entitlements.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s: %w", rec.ClientID, err)
	}
	if err := s.rdb.HSet(ctx, s.key, rec.ClientID, b).Err(); err != nil {
		return fmt.Errorf("redisstore: hset %s: %w", rec.ClientID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, clientID string) (bool, error) {
	n, err := s.rdb.HDel(ctx, s.key, clientID).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: hdel %s: %w", clientID, err)
	}
	return n > 0, nil
}

func (s *Store) Snapshot(ctx context.Context) ([]entitlements.Record, error) {
	all, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: hgetall: %w", err)
	}
	out := make([]entitlements.Record, 0, len(all))
	for clientID, val := range all {
		var rec entitlements.Record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("redisstore: decode %s: %w", clientID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
