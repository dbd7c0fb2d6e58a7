package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chorus/agent/internal/httpc"
	"chorus/agent/internal/logging"
)

const DefaultElevenLabsURL = "https://api.elevenlabs.io"

type ElevenLabsConfig struct {
	APIKey  string
	ModelID string
	BaseURL string
}

// ElevenLabs calls the non-streaming text-to-speech endpoint and returns the
// MP3 body.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	log    zerolog.Logger
}

func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsURL
	}
	return &ElevenLabs{cfg: cfg, client: httpc.Client, log: logging.Component("tts")}
}

func (e *ElevenLabs) WithClient(c *http.Client) *ElevenLabs {
	e.client = c
	return e
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: empty text")
	}
	if voiceID == "" {
		return nil, errors.New("tts: empty voice id")
	}
	if e.cfg.APIKey == "" {
		return nil, errors.New("tts: missing ELEVENLABS_API_KEY")
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(e.cfg.BaseURL, "/"), url.PathEscape(voiceID))
	body := map[string]any{"text": text}
	if e.cfg.ModelID != "" {
		body["model_id"] = e.cfg.ModelID
	}
	reqBytes, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("accept", "audio/mpeg")
	req.Header.Set("content-type", "application/json")

	metricTextChars.Add(float64(len(text)))
	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		metricRequests.WithLabelValues(voiceID, "error").Inc()
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()
	metricHeadersMS.Observe(float64(time.Since(start).Milliseconds()))
	if resp.StatusCode/100 != 2 {
		metricRequests.WithLabelValues(voiceID, "http_error").Inc()
		msg := httpc.ErrorBody(resp)
		e.log.Warn().Int("status", resp.StatusCode).Str("voice", voiceID).Str("body", msg).Msg("elevenlabs error response")
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg, Provider: "elevenlabs"}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		metricRequests.WithLabelValues(voiceID, "error").Inc()
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		metricRequests.WithLabelValues(voiceID, "empty").Inc()
		return nil, errors.New("tts: provider returned no audio")
	}
	metricRequests.WithLabelValues(voiceID, "ok").Inc()
	metricSynthesisMS.Observe(float64(time.Since(start).Milliseconds()))
	metricAudioBytes.Add(float64(len(audio)))
	e.log.Debug().Str("voice", voiceID).Int("chars", len(text)).Int("bytes", len(audio)).Msg("synthesized")
	return audio, nil
}
