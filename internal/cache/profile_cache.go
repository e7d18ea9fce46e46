package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/metrics"
	"github-user-proxy/internal/repository"
	"github-user-proxy/internal/service"
)

const (
	DefaultTTL            = 5 * time.Minute
	DefaultComputeTimeout = 30 * time.Second
)

// Loader produces a fresh profile for a username on a cache miss.
type Loader func(ctx context.Context, username string) (*domain.Profile, error)

type Options struct {
	TTL            time.Duration
	ComputeTimeout time.Duration
	Logger         *logrus.Logger
	Metrics        *metrics.Collector
}

// ProfileCache serves profiles from a store and collapses concurrent misses
// for the same username into a single Loader call. Failed loads are never
// stored.
type ProfileCache struct {
	store          repository.ProfileRepository
	group          singleflight.Group
	ttl            time.Duration
	computeTimeout time.Duration
	logger         *logrus.Logger
	metrics        *metrics.Collector
}

func New(store repository.ProfileRepository, opts Options) *ProfileCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = DefaultComputeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &ProfileCache{
		store:          store,
		ttl:            opts.TTL,
		computeTimeout: opts.ComputeTimeout,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// GetOrCompute returns the cached profile for username, or runs compute at
// most once among all concurrent callers for that username and stores the
// result. The computation is detached from ctx: a caller that gives up gets
// ctx.Err(), while the shared computation still completes and fills the cache.
func (c *ProfileCache) GetOrCompute(ctx context.Context, username string, compute Loader) (*domain.Profile, error) {
	if profile, ok := c.lookup(ctx, username); ok {
		c.metrics.RecordCacheHit()
		return profile, nil
	}

	leader := false
	ch := c.group.DoChan(username, func() (any, error) {
		leader = true

		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()

		// a flight that finished between our lookup and DoChan already stored the value
		if profile, ok := c.lookup(flightCtx, username); ok {
			c.metrics.RecordCacheHit()
			return profile, nil
		}
		c.metrics.RecordCacheMiss()
		c.logger.WithField("username", username).Debug("cache miss, aggregating profile")

		profile, err := compute(flightCtx, username)
		if err != nil {
			return nil, err
		}
		if err := c.store.Put(flightCtx, username, profile, c.ttl); err != nil {
			c.metrics.RecordStoreError("put")
			c.logger.WithError(err).WithField("username", username).Warn("store profile in cache")
		}
		return profile, nil
	})

	select {
	case res := <-ch:
		if !leader {
			c.metrics.RecordSharedFlight()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Profile), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for profile %q: %w", username, ctx.Err())
	}
}

// Invalidate drops the cached profile for username. An in-flight computation
// is unaffected and will store its result when it finishes.
func (c *ProfileCache) Invalidate(ctx context.Context, username string) error {
	if err := c.store.Delete(ctx, username); err != nil {
		c.metrics.RecordStoreError("delete")
		return fmt.Errorf("invalidate %q: %w", username, err)
	}
	c.logger.WithField("username", username).Info("cache entry invalidated")
	return nil
}

// Wrap returns a ProfileService that serves next through the cache.
func (c *ProfileCache) Wrap(next service.ProfileService) service.ProfileService {
	return &cachingProfileService{cache: c, next: next}
}

// lookup treats store failures as a miss so a broken cache degrades to
// uncached behaviour instead of failing requests.
func (c *ProfileCache) lookup(ctx context.Context, username string) (*domain.Profile, bool) {
	profile, found, err := c.store.Get(ctx, username)
	if err != nil {
		c.metrics.RecordStoreError("get")
		c.logger.WithError(err).WithField("username", username).Warn("read profile from cache")
		return nil, false
	}
	return profile, found
}

type cachingProfileService struct {
	cache *ProfileCache
	next  service.ProfileService
}

func (s *cachingProfileService) GetProfile(ctx context.Context, username string) (*domain.Profile, error) {
	return s.cache.GetOrCompute(ctx, username, s.next.GetProfile)
}
