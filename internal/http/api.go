package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github-user-proxy/internal/domain"
	"github-user-proxy/internal/metrics"
	"github-user-proxy/internal/service"
)

const invalidEndpointMessage = "Invalid endpoint. Use /api/users/{username} to fetch user data."

// CacheInvalidator drops a cached profile. The invalidation route is only
// registered when one is supplied.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, username string) error
}

// Handler wires HTTP routes to the profile service.
type Handler struct {
	profiles    service.ProfileService
	invalidator CacheInvalidator
	logger      *logrus.Logger
	metrics     *metrics.Collector
}

func NewHandler(profiles service.ProfileService, invalidator CacheInvalidator, logger *logrus.Logger, collector *metrics.Collector) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		profiles:    profiles,
		invalidator: invalidator,
		logger:      logger,
		metrics:     collector,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(
		requestIDMiddleware(),
		h.accessLogMiddleware(),
		gin.CustomRecovery(h.recoverPanic),
		corsMiddleware(),
	)

	api := router.Group("/api")
	{
		api.GET("/users/:username", h.getUser)
		if h.invalidator != nil {
			api.DELETE("/users/:username/cache", h.invalidateUser)
		}
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, newErrorResponse(http.StatusNotFound, invalidEndpointMessage))
	})
}

func (h *Handler) getUser(c *gin.Context) {
	username := c.Param("username")

	profile, err := h.profiles.GetProfile(c.Request.Context(), username)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profileToResponse(profile))
}

func (h *Handler) invalidateUser(c *gin.Context) {
	username := c.Param("username")

	if err := h.invalidator.Invalidate(c.Request.Context(), username); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func newErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	}
}

// writeError maps a failure to its status code and the uniform error body.
// Internal details are logged, never returned.
func (h *Handler) writeError(c *gin.Context, err error) {
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": requestIDFrom(c),
		"path":       c.Request.URL.Path,
	})

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		entry.Warn("user not found")
		c.JSON(http.StatusNotFound, newErrorResponse(http.StatusNotFound, reasonOf(err)))
	case domain.KindUpstream:
		entry.Error("upstream failure")
		c.JSON(http.StatusBadGateway, newErrorResponse(http.StatusBadGateway, "Error communicating with GitHub API: "+reasonOf(err)))
	default:
		entry.Error("request failed")
		c.JSON(http.StatusInternalServerError, internalErrorResponse())
	}
}

func internalErrorResponse() ErrorResponse {
	return newErrorResponse(http.StatusInternalServerError, "An unexpected error occurred")
}

func reasonOf(err error) string {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Reason
	}
	return err.Error()
}

type ProfileResponse struct {
	UserName    string         `json:"user_name"`
	DisplayName *string        `json:"display_name"`
	Avatar      *string        `json:"avatar"`
	GeoLocation *string        `json:"geo_location"`
	Email       *string        `json:"email"`
	URL         *string        `json:"url"`
	CreatedAt   *string        `json:"created_at"`
	Repos       []RepoResponse `json:"repos"`
}

type RepoResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func profileToResponse(profile *domain.Profile) ProfileResponse {
	resp := ProfileResponse{
		UserName:    profile.Username,
		DisplayName: profile.DisplayName,
		Avatar:      profile.Avatar,
		GeoLocation: profile.Location,
		Email:       profile.Email,
		URL:         profile.URL,
		CreatedAt:   profile.CreatedAt,
		Repos:       make([]RepoResponse, len(profile.Repos)),
	}
	for i := range profile.Repos {
		resp.Repos[i] = RepoResponse{
			Name: profile.Repos[i].Name,
			URL:  profile.Repos[i].URL,
		}
	}
	return resp
}
