package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github-user-proxy/internal/domain"
)

// ErrUnknownBackend is returned when the configured cache backend has no store.
var ErrUnknownBackend = errors.New("unknown cache backend")

// ProfileRepository stores aggregated profiles keyed by username with a TTL.
// Keys are the requested usernames, matched exactly and case-sensitively; they
// may differ from profile.Username. Get reports found=false for absent or expired entries.
type ProfileRepository interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, username string) (*domain.Profile, bool, error)
	Put(ctx context.Context, username string, profile *domain.Profile, ttl time.Duration) error
	Delete(ctx context.Context, username string) error
	Close() error
}

type storedProfile struct {
	Username    string       `json:"user_name"`
	DisplayName *string      `json:"display_name"`
	Avatar      *string      `json:"avatar"`
	Location    *string      `json:"geo_location"`
	Email       *string      `json:"email"`
	URL         *string      `json:"url"`
	CreatedAt   *string      `json:"created_at"`
	Repos       []storedRepo `json:"repos"`
}

type storedRepo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// MarshalProfile serializes a profile for external stores.
func MarshalProfile(profile *domain.Profile) ([]byte, error) {
	sp := storedProfile{
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		Avatar:      profile.Avatar,
		Location:    profile.Location,
		Email:       profile.Email,
		URL:         profile.URL,
		CreatedAt:   profile.CreatedAt,
		Repos:       make([]storedRepo, len(profile.Repos)),
	}
	for i, r := range profile.Repos {
		sp.Repos[i] = storedRepo{Name: r.Name, URL: r.URL}
	}
	data, err := json.Marshal(sp)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	return data, nil
}

// UnmarshalProfile is the inverse of MarshalProfile.
func UnmarshalProfile(data []byte) (*domain.Profile, error) {
	var sp storedProfile
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	profile := &domain.Profile{
		Username:    sp.Username,
		DisplayName: sp.DisplayName,
		Avatar:      sp.Avatar,
		Location:    sp.Location,
		Email:       sp.Email,
		URL:         sp.URL,
		CreatedAt:   sp.CreatedAt,
		Repos:       make([]domain.Repo, len(sp.Repos)),
	}
	for i, r := range sp.Repos {
		profile.Repos[i] = domain.Repo{Name: r.Name, URL: r.URL}
	}
	return profile, nil
}
