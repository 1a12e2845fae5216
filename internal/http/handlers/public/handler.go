package public

import "github.com/sellos-next/internal/provider"

// Handler serves the client-facing card and wallet endpoints.
type Handler struct {
	*provider.Container
}

// New creates the public handler
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
