package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chorus/agent/internal/httpc"
	"chorus/agent/internal/logging"
)

const DefaultDeepgramURL = "https://api.deepgram.com/v1/listen"

type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// Deepgram posts whole WAV files to the pre-recorded listen endpoint.
type Deepgram struct {
	cfg    DeepgramConfig
	client *http.Client
	log    zerolog.Logger
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDeepgramURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Deepgram{cfg: cfg, client: httpc.Client, log: logging.Component("stt")}
}

// WithClient swaps the HTTP client, mainly for tests.
func (d *Deepgram) WithClient(c *http.Client) *Deepgram {
	d.client = c
	return d
}

func (d *Deepgram) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", errors.New("stt: empty audio")
	}
	if d.cfg.APIKey == "" {
		return "", errors.New("stt: missing DEEPGRAM_API_KEY")
	}
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	q.Set("language", d.cfg.Language)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	full := d.cfg.BaseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, full, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("stt: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "audio/wav")

	metricAudioBytes.Add(float64(len(wav)))
	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		metricRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("stt: request: %w", err)
	}
	defer resp.Body.Close()
	metricLatencyMS.Observe(float64(time.Since(start).Milliseconds()))

	if resp.StatusCode != http.StatusOK {
		metricRequests.WithLabelValues("http_error").Inc()
		body := httpc.ErrorBody(resp)
		d.log.Warn().Int("status", resp.StatusCode).Str("body", body).Msg("deepgram error response")
		return "", &APIError{StatusCode: resp.StatusCode, Message: body, Provider: "deepgram"}
	}

	var out deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metricRequests.WithLabelValues("decode_error").Inc()
		return "", fmt.Errorf("stt: decode response: %w", err)
	}
	metricRequests.WithLabelValues("ok").Inc()
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		metricEmpty.Inc()
		return "", nil
	}
	alt := out.Results.Channels[0].Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		metricEmpty.Inc()
	}
	d.log.Debug().Str("transcript", text).Float64("confidence", alt.Confidence).Int("audio_bytes", len(wav)).Msg("transcribed")
	return text, nil
}
