package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/repository"
)

const createProfileCacheTable = `
CREATE TABLE IF NOT EXISTS profile_cache (
	username TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profile_cache_expires_at ON profile_cache(expires_at);
`

// ProfileRepository persists profiles in sqlite so the cache survives restarts.
type ProfileRepository struct {
	db              *sql.DB
	cleanupInterval time.Duration
	logger          *logrus.Logger
	now             func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewProfileRepository(db *sql.DB, cleanupInterval time.Duration, logger *logrus.Logger) *ProfileRepository {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ProfileRepository{
		db:              db,
		cleanupInterval: cleanupInterval,
		logger:          logger,
		now:             time.Now,
	}
}

// Init creates the table and starts pruning expired rows in the background.
func (r *ProfileRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createProfileCacheTable); err != nil {
		return fmt.Errorf("create profile_cache table: %w", err)
	}
	if r.stop == nil {
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.janitor(ctx)
	}
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, username string) (*domain.Profile, bool, error) {
	var (
		payload   []byte
		expiresAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
SELECT payload, expires_at
FROM profile_cache
WHERE username = ?`,
		username,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query profile: %w", err)
	}
	if !r.now().UTC().Before(expiresAt.UTC()) {
		return nil, false, nil
	}

	profile, err := repository.UnmarshalProfile(payload)
	if err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

func (r *ProfileRepository) Put(ctx context.Context, username string, profile *domain.Profile, ttl time.Duration) error {
	payload, err := repository.MarshalProfile(profile)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO profile_cache (username, payload, created_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
	payload = excluded.payload,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at`,
		username,
		payload,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) Delete(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM profile_cache WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

// Prune removes expired rows and reports how many were deleted.
func (r *ProfileRepository) Prune(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profile_cache WHERE expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("prune profiles: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return aff, nil
}

// Close stops the janitor and closes the database.
func (r *ProfileRepository) Close() error {
	r.once.Do(func() {
		if r.stop != nil {
			close(r.stop)
			<-r.done
		}
	})
	return r.db.Close()
}

func (r *ProfileRepository) janitor(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.pruneExpired(ctx)
		}
	}
}

func (r *ProfileRepository) pruneExpired(ctx context.Context) {
	removed, err := r.Prune(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("prune expired profiles")
		return
	}
	if removed > 0 {
		r.logger.WithField("removed", removed).Debug("pruned expired profiles")
	}
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)
