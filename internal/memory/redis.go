// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/deep-research/pkg/types"
)

// RedisPersister keeps the snapshot under a single Redis key.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister connects to addr and stores the snapshot under key.
func NewRedisPersister(addr, key string) (*RedisPersister, error) {
	if addr == "" {
		return nil, errors.New("redis backend requires an address")
	}
	if key == "" {
		key = "deep-research:memory"
	}
	return NewRedisPersisterWithClient(redis.NewClient(&redis.Options{Addr: addr}), key), nil
}

// NewRedisPersisterWithClient uses an existing client.
func NewRedisPersisterWithClient(client *redis.Client, key string) *RedisPersister {
	return &RedisPersister{client: client, key: key}
}

func (p *RedisPersister) Name() string { return string(types.MemoryRedis) }

func (p *RedisPersister) Save(ctx context.Context, data []byte) error {
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPersister) Load(ctx context.Context) ([]byte, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", p.key, err)
	}
	return data, nil
}

func (p *RedisPersister) Close() error {
	return p.client.Close()
}
