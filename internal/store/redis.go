package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-portal/internal/config"
)

// maxMergeAttempts bounds optimistic retries of a merge write.
const maxMergeAttempts = 5

// RedisStore keeps each document as a JSON string and tracks the ids of a
// collection in a set so Query can scan it.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, collection, id string, dst any) error {
	raw, err := s.rdb.Get(ctx, config.CacheKey.DocumentKey(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Document{Collection: collection, ID: id, Data: raw}.Decode(dst)
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, data any, opts SetOptions) error {
	update, err := toFields(data)
	if err != nil {
		return err
	}
	key := config.CacheKey.DocumentKey(collection, id)
	indexKey := config.CacheKey.CollectionIndexKey(collection)

	write := func(pipe redis.Pipeliner, f fields) error {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		pipe.Set(ctx, key, raw, 0)
		pipe.SAdd(ctx, indexKey, id)
		return nil
	}

	if !opts.Merge {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return write(pipe, update)
		})
		if err != nil {
			return fmt.Errorf("set %s/%s: %w", collection, id, err)
		}
		return nil
	}

	// Optimistic read-merge-write; retried when another client touches the key.
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			merged := update
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				var existing fields
				if err := json.Unmarshal(raw, &existing); err != nil {
					return fmt.Errorf("decode existing %s/%s: %w", collection, id, err)
				}
				merged = existing.merge(update)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return write(pipe, merged)
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, config.CacheKey.DocumentKey(collection, id))
		pipe.SRem(ctx, config.CacheKey.CollectionIndexKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *RedisStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	ids, err := s.rdb.SMembers(ctx, config.CacheKey.CollectionIndexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.DocumentKey(collection, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", collection, err)
	}

	var docs []Document
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry outlived its document.
			continue
		}
		var f fields
		if err := json.Unmarshal([]byte(str), &f); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, ids[i], err)
		}
		match, err := f.matches(filters)
		if err != nil {
			return nil, err
		}
		if match {
			docs = append(docs, Document{Collection: collection, ID: ids[i], Data: json.RawMessage(str)})
		}
	}
	return docs, nil
}
