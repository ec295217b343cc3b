package handlers

import (
	"context"
)

// SessionInfo is one live session in the registry.
type SessionInfo struct {
	ChatID    int64 `json:"chatId"`
	MessageID int   `json:"messageId"`
}

// SessionsResponse lists the live session registry.
type SessionsResponse struct {
	Count    int           `json:"count"`
	Sessions []SessionInfo `json:"sessions"`
}

// SessionsOutput is the output wrapper for Huma.
type SessionsOutput struct {
	Body SessionsResponse
}

// SessionsHandler lists registered sessions.
type SessionsHandler struct {
	store SessionSource
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(store SessionSource) *SessionsHandler {
	return &SessionsHandler{store: store}
}

// Handle returns every registered session.
func (h *SessionsHandler) Handle(ctx context.Context) (*SessionsResponse, error) {
	keys, err := h.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	resp := &SessionsResponse{
		Count:    len(keys),
		Sessions: make([]SessionInfo, 0, len(keys)),
	}
	for _, k := range keys {
		resp.Sessions = append(resp.Sessions, SessionInfo{ChatID: k.ChatID, MessageID: k.MessageID})
	}
	return resp, nil
}
