package render

import (
	"context"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/policy"
)

// Static answers every goal with its canned fallback.
type Static struct {
	templates *Templates
}

// NewStatic creates a Static renderer.
func NewStatic(templates *Templates) *Static {
	return &Static{templates: templates}
}

// Render implements Renderer.
func (s *Static) Render(_ context.Context, goal policy.Goal, _ []domain.Message) (string, error) {
	return s.templates.Fallback(goal), nil
}
