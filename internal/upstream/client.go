package upstream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"resty.dev/v3"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.github.com"

	opFetchUser  = "fetch_user"
	opFetchRepos = "fetch_repos"
)

// Client reads user data from the GitHub REST API.
type Client interface {
	FetchUser(ctx context.Context, username string) (*domain.UpstreamUser, error)
	FetchRepos(ctx context.Context, username string) ([]domain.UpstreamRepo, error)
}

type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	Logger    *logrus.Logger
	Metrics   *metrics.Collector
}

type githubUser struct {
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Location  *string `json:"location"`
	Email     *string `json:"email"`
	URL       *string `json:"url"`
	CreatedAt *string `json:"created_at"`
}

type githubRepo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type client struct {
	rest    *resty.Client
	logger  *logrus.Logger
	metrics *metrics.Collector
}

// NewClient builds a Client on top of a resty client. The returned close
// function releases the underlying transport.
func NewClient(cfg Config) (Client, func() error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	rest := resty.New().
		SetLogger(cfg.Logger).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		rest.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Token != "" {
		rest.SetAuthToken(cfg.Token)
	}

	c := &client{
		rest:    rest,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	return c, rest.Close
}

func (c *client) FetchUser(ctx context.Context, username string) (*domain.UpstreamUser, error) {
	start := time.Now()
	var body githubUser
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("username", username).
		SetResult(&body).
		Get("/users/{username}")

	derr := classify(resp, err, username, true, "Failed to fetch user data from GitHub")
	if derr == nil && body.Login == "" {
		derr = domain.UpstreamFailure(resp.StatusCode(), "Unexpected response from GitHub API")
	}
	c.record(opFetchUser, username, derr, time.Since(start))
	if derr != nil {
		return nil, derr
	}

	return &domain.UpstreamUser{
		Login:     body.Login,
		Name:      body.Name,
		AvatarURL: body.AvatarURL,
		Location:  body.Location,
		Email:     body.Email,
		URL:       body.URL,
		CreatedAt: body.CreatedAt,
	}, nil
}

func (c *client) FetchRepos(ctx context.Context, username string) ([]domain.UpstreamRepo, error) {
	start := time.Now()
	var body []githubRepo
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("username", username).
		SetResult(&body).
		Get("/users/{username}/repos")

	derr := classify(resp, err, username, false, "Failed to fetch repositories from GitHub")
	c.record(opFetchRepos, username, derr, time.Since(start))
	if derr != nil {
		return nil, derr
	}

	repos := make([]domain.UpstreamRepo, len(body))
	for i, r := range body {
		repos[i] = domain.UpstreamRepo{Name: r.Name, URL: r.URL}
	}
	return repos, nil
}

// classify maps a resty outcome onto the proxy error taxonomy. Only the user
// lookup treats 404 as a missing user.
func classify(resp *resty.Response, err error, username string, notFoundIsMissing bool, reason string) *domain.Error {
	if err != nil {
		return domain.InternalFailure(reason, err)
	}
	if resp == nil {
		return domain.InternalFailure(reason, nil)
	}
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound && notFoundIsMissing {
		return domain.NotFound(username)
	}
	return domain.UpstreamFailure(resp.StatusCode(), "")
}

func (c *client) record(op, username string, derr *domain.Error, took time.Duration) {
	outcome := "ok"
	if derr != nil {
		outcome = derr.Kind.String()
	}
	c.metrics.RecordUpstream(op, outcome, took)

	entry := c.logger.WithFields(logrus.Fields{
		"operation": op,
		"username":  username,
		"took":      took,
	})
	switch {
	case derr == nil:
		entry.Debug("upstream request succeeded")
	case derr.Kind == domain.KindNotFound:
		entry.Warn("upstream user not found")
	default:
		entry.WithError(derr).Error("upstream request failed")
	}
}
