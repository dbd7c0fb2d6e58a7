// Package client talks to the chorus server from the desktop loop.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chorus/agent/internal/httpc"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/types"
)

// HeaderParticipant carries the producing participant on audio responses.
const HeaderParticipant = "X-Personality-Id"

var ErrNoDefaultAudio = errors.New("server has no default audio")

// APIError is a non-2xx answer from the chorus server.
type APIError struct {
	StatusCode int
	Message    string
	Route      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chorus %s: HTTP %d: %s", e.Route, e.StatusCode, e.Message)
}

type Config struct {
	ServerURL   string
	BootstrapID string
	SampleRate  int
}

// Result is the outcome of one utterance. Unit is nil when the utterance
// was empty or the reply was queued behind a busy participant.
type Result struct {
	Unit          *types.AudioUnit
	Queued        bool
	ParticipantID string
	Transcript    string
}

// Remote runs the response pipeline through the server's HTTP API:
// /transcribe, then /query-llama, then /process-text.
type Remote struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

func NewRemote(cfg Config) *Remote {
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Remote{cfg: cfg, client: httpc.Client, log: logging.Component("client")}
}

// WithClient swaps the HTTP client, mainly for tests.
func (r *Remote) WithClient(c *http.Client) *Remote {
	r.client = c
	return r
}

type queryResponse struct {
	Response      string          `json:"response"`
	PersonalityID string          `json:"personalityId"`
	Position      *types.Position `json:"position"`
	Queued        bool            `json:"queued"`
}

// Handle sends one utterance of mono PCM through the server.
func (r *Remote) Handle(ctx context.Context, pcm []int16) (Result, error) {
	start := time.Now()
	defer func() { metricHandleMS.Observe(float64(time.Since(start).Milliseconds())) }()

	var tr struct {
		Transcription string `json:"transcription"`
	}
	body := map[string]string{"audio": base64.StdEncoding.EncodeToString(EncodeWAV(pcm, r.cfg.SampleRate))}
	if err := r.postJSON(ctx, "/transcribe", body, &tr); err != nil {
		metricOutcomes.WithLabelValues("error").Inc()
		return Result{}, err
	}
	text := strings.TrimSpace(tr.Transcription)
	if text == "" {
		metricOutcomes.WithLabelValues("empty").Inc()
		return Result{}, nil
	}

	var q queryResponse
	if err := r.postJSON(ctx, "/query-llama", map[string]string{"transcription": text}, &q); err != nil {
		metricOutcomes.WithLabelValues("error").Inc()
		return Result{Transcript: text}, err
	}
	if q.Queued {
		metricOutcomes.WithLabelValues("queued").Inc()
		r.log.Info().Str("participant", q.PersonalityID).Msg("reply queued behind busy participant")
		return Result{Queued: true, ParticipantID: q.PersonalityID, Transcript: text}, nil
	}
	if strings.TrimSpace(q.Response) == "" {
		metricOutcomes.WithLabelValues("empty").Inc()
		return Result{Transcript: text}, nil
	}
	audio, pid, err := r.speak(ctx, q.Response, q.PersonalityID)
	if err != nil {
		metricOutcomes.WithLabelValues("error").Inc()
		return Result{ParticipantID: q.PersonalityID, Transcript: text}, err
	}
	if pid == "" {
		pid = q.PersonalityID
	}
	unit := &types.AudioUnit{
		ID:            uuid.NewString(),
		Audio:         audio,
		ParticipantID: pid,
		Position:      q.Position,
		Text:          q.Response,
		CreatedAt:     time.Now().UTC(),
	}
	metricOutcomes.WithLabelValues("unit").Inc()
	r.log.Debug().Str("unit", unit.ID).Str("participant", pid).Int("bytes", len(audio)).Msg("reply ready")
	return Result{Unit: unit, ParticipantID: pid, Transcript: text}, nil
}

func (r *Remote) speak(ctx context.Context, text, pid string) ([]byte, string, error) {
	payload, _ := json.Marshal(map[string]string{"text": text, "personalityId": pid})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ServerURL+"/process-text", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("client: /process-text: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &APIError{StatusCode: resp.StatusCode, Message: httpc.ErrorBody(resp), Route: "/process-text"}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("client: read audio: %w", err)
	}
	return audio, resp.Header.Get(HeaderParticipant), nil
}

// DefaultUnit fetches the server's most recent audio for the first speech
// event. It always plays as the bootstrap identity in front of the
// listener, whoever produced it.
func (r *Remote) DefaultUnit(ctx context.Context) (*types.AudioUnit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.ServerURL+"/last-audio", nil)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: /last-audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoDefaultAudio
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: httpc.ErrorBody(resp), Route: "/last-audio"}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read audio: %w", err)
	}

	unit := &types.AudioUnit{
		ID:            uuid.NewString(),
		Audio:         audio,
		ParticipantID: r.cfg.BootstrapID,
		Position:      &types.Position{Z: -1},
		CreatedAt:     time.Now().UTC(),
	}
	r.log.Debug().Str("unit", unit.ID).Str("source", resp.Header.Get(HeaderParticipant)).Int("bytes", len(audio)).Msg("default audio fetched")
	return unit, nil
}

func (r *Remote) postJSON(ctx context.Context, route string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.ServerURL+route, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", route, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: httpc.ErrorBody(resp), Route: route}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", route, err)
	}
	return nil
}
