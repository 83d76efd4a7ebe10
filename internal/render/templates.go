// Package render turns a reply goal into persona text.
package render

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/policy"
	"gopkg.in/yaml.v3"
)

// Renderer produces reply text for a goal given recent history.
type Renderer interface {
	Render(ctx context.Context, goal policy.Goal, history []domain.Message) (string, error)
}

var (
	// ErrUnknownGoal is returned when no template exists for a goal.
	ErrUnknownGoal = errors.New("unknown goal")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty model response")
)

//go:embed templates.yaml
var defaultTemplates []byte

// GoalTemplate holds the generation instruction and the canned reply for a goal.
type GoalTemplate struct {
	Prompt   string `yaml:"prompt"`
	Fallback string `yaml:"fallback"`
}

// Templates is the persona definition plus one template per goal.
type Templates struct {
	Persona         string                       `yaml:"persona"`
	Goals           map[policy.Goal]GoalTemplate `yaml:"goals"`
	DefaultFallback string                       `yaml:"default_fallback"`
}

// DefaultTemplates returns the embedded templates.
func DefaultTemplates() (*Templates, error) {
	return ParseTemplates(defaultTemplates)
}

// LoadTemplates reads templates from path, or the embedded set when path is
// empty. Goals missing from the file inherit the embedded templates.
func LoadTemplates(path string) (*Templates, error) {
	base, err := DefaultTemplates()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	override, err := ParseTemplates(data)
	if err != nil {
		return nil, err
	}
	if override.Persona == "" {
		override.Persona = base.Persona
	}
	if override.DefaultFallback == "" {
		override.DefaultFallback = base.DefaultFallback
	}
	for goal, tmpl := range base.Goals {
		if _, ok := override.Goals[goal]; !ok {
			override.Goals[goal] = tmpl
		}
	}
	return override, nil
}

// ParseTemplates decodes YAML templates.
func ParseTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if t.Goals == nil {
		t.Goals = make(map[policy.Goal]GoalTemplate)
	}
	for goal, tmpl := range t.Goals {
		tmpl.Prompt = strings.TrimSpace(tmpl.Prompt)
		tmpl.Fallback = strings.TrimSpace(tmpl.Fallback)
		t.Goals[goal] = tmpl
	}
	t.Persona = strings.TrimSpace(t.Persona)
	t.DefaultFallback = strings.TrimSpace(t.DefaultFallback)
	return &t, nil
}

// Goal returns the template for goal.
func (t *Templates) Goal(goal policy.Goal) (GoalTemplate, bool) {
	tmpl, ok := t.Goals[goal]
	return tmpl, ok
}

// Fallback returns the canned reply for goal. It is never empty.
func (t *Templates) Fallback(goal policy.Goal) string {
	if tmpl, ok := t.Goals[goal]; ok && tmpl.Fallback != "" {
		return tmpl.Fallback
	}
	if t.DefaultFallback != "" {
		return t.DefaultFallback
	}
	return "Please wait, I'm checking."
}
