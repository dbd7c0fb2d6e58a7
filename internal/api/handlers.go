package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"chorus/agent/internal/events"
	"chorus/agent/internal/health"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/orchestrator"
	"chorus/agent/internal/store"
	"chorus/agent/internal/types"
)

const maxBodyBytes = 25 << 20

// HeaderParticipant names the participant that produced returned audio.
const HeaderParticipant = "X-Personality-Id"

type Handlers struct {
	pipe   *orchestrator.Pipeline
	audio  *store.FileStore
	events *events.Store
	feed   http.Handler
	check  func(ctx context.Context) health.HealthStatus
	ready  atomic.Bool
	log    zerolog.Logger
}

// NewHandlers builds the route handlers. feed and check may be nil.
func NewHandlers(p *orchestrator.Pipeline, audio *store.FileStore, ev *events.Store, feed http.Handler, check func(ctx context.Context) health.HealthStatus) *Handlers {
	h := &Handlers{pipe: p, audio: audio, events: ev, feed: feed, check: check, log: logging.Component("api")}
	h.ready.Store(true)
	return h
}

// SetReady flips the /readyz answer; the server clears it on shutdown.
func (h *Handlers) SetReady(v bool) { h.ready.Store(v) }

type audioRequest struct {
	Audio string `json:"audio"`
}

type transcriptRequest struct {
	Transcription *string `json:"transcription"`
}

type speakRequest struct {
	Text          string `json:"text"`
	PersonalityID string `json:"personalityId"`
}

type replyResponse struct {
	Response      string          `json:"response"`
	PersonalityID string          `json:"personalityId,omitempty"`
	Position      *types.Position `json:"position,omitempty"`
}

type queuedResponse struct {
	Queued        bool   `json:"queued"`
	PersonalityID string `json:"personalityId"`
}

type respondResponse struct {
	Audio         string          `json:"audio"`
	PersonalityID string          `json:"personalityId"`
	Position      *types.Position `json:"position"`
	Transcription string          `json:"transcription"`
	Response      string          `json:"response"`
}

func (h *Handlers) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	wav, ok := h.decodeAudio(w, r)
	if !ok {
		return
	}
	text, err := h.pipe.Transcribe(r.Context(), wav)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcription": text})
}

func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Transcription == nil {
		writeError(w, http.StatusBadRequest, "transcription is required")
		return
	}
	out, err := h.pipe.Reply(r.Context(), *req.Transcription)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	switch {
	case out.Empty:
		writeJSON(w, http.StatusOK, replyResponse{})
	case out.Queued:
		writeJSON(w, http.StatusOK, queuedResponse{Queued: true, PersonalityID: out.ParticipantID})
	default:
		pos := out.Reply.Position
		writeJSON(w, http.StatusOK, replyResponse{Response: out.Reply.Text, PersonalityID: out.ParticipantID, Position: &pos})
	}
}

func (h *Handlers) HandleProcessText(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	unit, err := h.pipe.Speak(r.Context(), req.Text, req.PersonalityID)
	if err != nil {
		// Missing text and unknown personalities answer 500 like synthesis
		// failures; existing clients only distinguish success from failure.
		h.log.Warn().Err(err).Str("personality", req.PersonalityID).Msg("process-text failed")
		writeError(w, http.StatusInternalServerError, failureMessage(err))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set(HeaderParticipant, unit.ParticipantID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(unit.Audio)
}

func (h *Handlers) HandleLastAudio(w http.ResponseWriter, r *http.Request) {
	path, err := h.audio.Latest()
	if err != nil {
		if errors.Is(err, store.ErrNoAudio) {
			writeError(w, http.StatusNotFound, "no audio available")
			return
		}
		h.log.Error().Err(err).Msg("last-audio lookup failed")
		writeError(w, http.StatusInternalServerError, "audio lookup failed")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		// Retention may have pruned it between lookup and open.
		writeError(w, http.StatusNotFound, "no audio available")
		return
	}
	defer f.Close()
	if id := store.ParticipantFromPath(path); id != "" {
		w.Header().Set(HeaderParticipant, id)
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")
	fi, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audio lookup failed")
		return
	}
	http.ServeContent(w, r, "", fi.ModTime(), f)
}

func (h *Handlers) HandleRespond(w http.ResponseWriter, r *http.Request) {
	wav, ok := h.decodeAudio(w, r)
	if !ok {
		return
	}
	out, err := h.pipe.Handle(r.Context(), wav)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	switch {
	case out.Empty:
		writeJSON(w, http.StatusOK, replyResponse{})
	case out.Queued:
		writeJSON(w, http.StatusOK, queuedResponse{Queued: true, PersonalityID: out.ParticipantID})
	default:
		writeJSON(w, http.StatusOK, respondResponse{
			Audio:         base64.StdEncoding.EncodeToString(out.Unit.Audio),
			PersonalityID: out.Unit.ParticipantID,
			Position:      out.Unit.Position,
			Transcription: out.Transcript,
			Response:      out.Reply.Text,
		})
	}
}

func (h *Handlers) HandlePersonalities(w http.ResponseWriter, r *http.Request) {
	sched := h.pipe.Scheduler()
	writeJSON(w, http.StatusOK, map[string]any{
		"personalities": sched.Personalities(),
		"participants":  sched.Snapshot(),
	})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": h.events.List()})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handlers) HandleDeps(w http.ResponseWriter, r *http.Request) {
	if h.check == nil {
		writeError(w, http.StatusNotFound, "dependency checks disabled")
		return
	}
	st := h.check(r.Context())
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

// decodeAudio reads {audio: base64 WAV}; data URL prefixes are accepted.
func (h *Handlers) decodeAudio(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	var req audioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	raw := strings.TrimSpace(req.Audio)
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+1:]
	}
	if raw == "" {
		writeError(w, http.StatusBadRequest, "audio is required")
		return nil, false
	}
	wav, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(wav) == 0 {
		writeError(w, http.StatusBadRequest, "audio is not valid base64")
		return nil, false
	}
	return wav, true
}

// writeFailure maps pipeline errors: input errors are 400, everything else
// is a generic 500.
func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrEmptyInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, failureMessage(err))
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownPersonality):
		return "unknown personality"
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return "text is required"
	default:
		return "upstream service failed"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
