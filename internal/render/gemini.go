package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/honeypot/internal/domain"
	"github.com/ashureev/honeypot/internal/policy"
	genai "google.golang.org/genai"
)

// GeminiConfig configures the Gemini renderer.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	// HistoryWindow is how many recent messages are shown to the model.
	HistoryWindow int
}

// DefaultGeminiConfig returns the generation defaults.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:           "gemini-2.5-flash",
		Temperature:     0.7,
		MaxOutputTokens: 50,
		HistoryWindow:   6,
	}
}

// Gemini renders replies with the Gemini API.
type Gemini struct {
	cli       *genai.Client
	cfg       GeminiConfig
	templates *Templates
}

// NewGemini creates a Gemini renderer.
func NewGemini(ctx context.Context, cfg GeminiConfig, templates *Templates) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiConfig().Model
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultGeminiConfig().HistoryWindow
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &Gemini{cli: cli, cfg: cfg, templates: templates}, nil
}

// Name identifies the renderer in logs.
func (g *Gemini) Name() string { return "gemini:" + g.cfg.Model }

// Render asks the model for one persona sentence serving goal.
func (g *Gemini) Render(ctx context.Context, goal policy.Goal, history []domain.Message) (string, error) {
	tmpl, ok := g.templates.Goal(goal)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGoal, goal)
	}

	temperature := g.cfg.Temperature
	resp, err := g.cli.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: BuildPrompt(tmpl.Prompt, history, g.cfg.HistoryWindow)}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: g.templates.Persona}}},
			Temperature:       &temperature,
			MaxOutputTokens:   g.cfg.MaxOutputTokens,
			StopSequences:     []string{"\n"},
		},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// BuildPrompt lays out the last window messages and the goal instruction.
func BuildPrompt(instruction string, history []domain.Message, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		speaker := "Them"
		if m.Role == domain.RoleAgent {
			speaker = "You"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(m.Text))
	}
	b.WriteString("\nCurrent goal:\n")
	b.WriteString(instruction)
	b.WriteString("\n\nWrite the reply now.")
	return b.String()
}
