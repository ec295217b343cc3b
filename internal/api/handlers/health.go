// Package handlers holds the operational HTTP surface: a health probe and a
// listing of the live session registry.
package handlers

import (
	"context"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/version"
)

// SessionSource is the slice of the store the handlers read.
type SessionSource interface {
	CountSessions(ctx context.Context) (int, error)
	ListSessions(ctx context.Context) ([]models.SessionKey, error)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// HealthOutput is the output wrapper for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	store SessionSource
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store SessionSource) *HealthHandler {
	return &HealthHandler{store: store}
}

// Handle returns the health status and active session count.
func (h *HealthHandler) Handle(ctx context.Context) *HealthResponse {
	resp := &HealthResponse{
		Status:  "healthy",
		Version: version.Get().Version,
	}
	n, err := h.store.CountSessions(ctx)
	if err != nil {
		resp.Status = "degraded"
		return resp
	}
	resp.Sessions = n
	return resp
}
