package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"chorus/agent/internal/logging"
)

type GeminiConfig struct {
	APIKey      string
	Model       string // e.g. gemini-1.5-flash
	MaxTokens   int
	Temperature float64
}

// Gemini generates replies with Google's generative language API.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	log    zerolog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: missing LLM_API_KEY for gemini")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg, log: logging.Component("llm")}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.cfg.Model)
	if g.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.cfg.MaxTokens))
	}
	if g.cfg.Temperature > 0 {
		model.SetTemperature(float32(g.cfg.Temperature))
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		metricRequests.WithLabelValues("gemini", "error").Inc()
		return "", fmt.Errorf("llm: gemini generate: %w", err)
	}
	metricLatencyMS.WithLabelValues("gemini").Observe(float64(time.Since(start).Milliseconds()))
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		metricRequests.WithLabelValues("gemini", "empty").Inc()
		return "", errors.New("llm: gemini returned no candidates")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	metricRequests.WithLabelValues("gemini", "ok").Inc()
	g.log.Debug().Int("prompt_chars", len(prompt)).Int("reply_chars", out.Len()).Msg("gemini completion done")
	return out.String(), nil
}

func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
