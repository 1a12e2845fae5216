package admin

import "github.com/sellos-next/internal/provider"

// Handler serves the back-office card management endpoints.
type Handler struct {
	*provider.Container
}

// New creates the admin handler
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
