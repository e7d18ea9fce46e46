package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/repository"
)

const (
	// CacheVersion prefixes every key so the payload format can change safely.
	CacheVersion = "v1"

	DefaultKeyPrefix = CacheVersion + ":github-user:"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store keeps serialized profiles in Redis and relies on key expiry for TTL.
type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
}

func NewStore(cfg Config) *Store {
	return NewStoreWithClient(goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.KeyPrefix)
}

func NewStoreWithClient(client goredis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Init verifies the server is reachable.
func (s *Store) Init(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, username string) (*domain.Profile, bool, error) {
	data, err := s.client.Get(ctx, s.key(username)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	profile, err := repository.UnmarshalProfile(data)
	if err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

func (s *Store) Put(ctx context.Context, username string, profile *domain.Profile, ttl time.Duration) error {
	data, err := repository.MarshalProfile(profile)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(username), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(username string) string {
	return s.keyPrefix + username
}

var _ repository.ProfileRepository = (*Store)(nil)
