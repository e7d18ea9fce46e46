package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/upstream"
)

// ProfileService builds the aggregated profile for a GitHub user.
type ProfileService interface {
	GetProfile(ctx context.Context, username string) (*domain.Profile, error)
}

type profileService struct {
	client upstream.Client
	logger *logrus.Logger
}

// NewProfileService returns a ProfileService that hits the upstream on every
// call. Wrap it with the cache layer to avoid repeated fetches.
func NewProfileService(client upstream.Client, logger *logrus.Logger) ProfileService {
	if logger == nil {
		logger = logrus.New()
	}
	return &profileService{
		client: client,
		logger: logger,
	}
}

func (s *profileService) GetProfile(ctx context.Context, username string) (*domain.Profile, error) {
	s.logger.WithField("username", username).Info("fetching data for user")

	user, err := s.client.FetchUser(ctx, username)
	if err != nil {
		return nil, err
	}
	repos, err := s.client.FetchRepos(ctx, username)
	if err != nil {
		return nil, err
	}

	profile := &domain.Profile{
		Username:    user.Login,
		DisplayName: user.Name,
		Avatar:      user.AvatarURL,
		Location:    user.Location,
		Email:       user.Email,
		URL:         user.URL,
		CreatedAt:   s.formatCreatedAt(user.CreatedAt),
		Repos:       make([]domain.Repo, len(repos)),
	}
	for i := range repos {
		profile.Repos[i] = domain.Repo{Name: repos[i].Name, URL: repos[i].URL}
	}

	s.logger.WithFields(logrus.Fields{
		"username": username,
		"repos":    len(profile.Repos),
	}).Info("transformed data for user")
	return profile, nil
}

// formatCreatedAt renders an ISO-8601 timestamp in RFC 1123 form.
// Unparseable input is returned unchanged.
func (s *profileService) formatCreatedAt(raw *string) *string {
	if raw == nil || *raw == "" {
		return nil
	}
	formatted, ok := FormatTimestamp(*raw)
	if !ok {
		s.logger.WithField("created_at", *raw).Warn("failed to parse date, returning as-is")
	}
	return &formatted
}

const (
	rfc1123GMT    = "Mon, 2 Jan 2006 15:04:05 GMT"
	rfc1123Offset = "Mon, 2 Jan 2006 15:04:05 -0700"
)

// FormatTimestamp converts "2011-01-25T18:44:36Z" to "Tue, 25 Jan 2011 18:44:36 GMT".
// The day of month is not padded and a non-zero input offset is kept, as in
// "Wed, 5 Jan 2011 20:44:36 +0200". The second result is false when value is
// not RFC 3339, in which case value is returned as-is.
func FormatTimestamp(value string) (string, bool) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value, false
	}
	if _, offset := t.Zone(); offset == 0 {
		return t.Format(rfc1123GMT), true
	}
	return t.Format(rfc1123Offset), true
}
