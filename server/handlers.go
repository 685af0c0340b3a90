package server

import "github.com/onnwee/twirc/store"

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	pinger store.Pinger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(pinger store.Pinger) *Handlers {
	return &Handlers{pinger: pinger}
}
