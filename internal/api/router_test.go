package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"chorus/agent/internal/events"
	"chorus/agent/internal/floor"
	"chorus/agent/internal/llm"
	"chorus/agent/internal/orchestrator"
	"chorus/agent/internal/store"
	"chorus/agent/internal/stt"
	"chorus/agent/internal/tts"
	"chorus/agent/internal/types"
)

type testEnv struct {
	srv   *httptest.Server
	h     *Handlers
	stt   *stt.Mock
	llm   *llm.Mock
	tts   *tts.Mock
	dir   string
	audio *store.FileStore
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		stt: &stt.Mock{TranscribeFunc: func(context.Context, []byte) (string, error) { return "hello there", nil }},
		llm: &llm.Mock{},
		tts: &tts.Mock{SynthesizeFunc: func(context.Context, string, string) ([]byte, error) { return []byte("ID3voice"), nil }},
		dir: t.TempDir(),
	}
	audio, err := store.New(env.dir, 5)
	if err != nil {
		t.Fatal(err)
	}
	env.audio = audio
	cast := []types.Personality{
		{ID: "sage", VoiceID: "v1", Position: types.Position{X: -2, Z: -1}},
		{ID: "spark", VoiceID: "v2", Position: types.Position{Z: -2}},
	}
	sched, err := floor.New(env.llm, cast, floor.Options{Mode: floor.ModeRoundRobin, MaxHistoryLength: 10, MaxTotalChars: 4000})
	if err != nil {
		t.Fatal(err)
	}
	ev := events.NewStore(100)
	pipe := orchestrator.New(env.stt, sched, env.tts, audio, ev)
	env.h = NewHandlers(pipe, audio, ev, nil, nil)
	env.srv = httptest.NewServer(NewRouter(env.h))
	t.Cleanup(env.srv.Close)
	return env
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func wavB64() string { return base64.StdEncoding.EncodeToString([]byte("RIFF....WAVE")) }

func TestTranscribe(t *testing.T) {
	env := newEnv(t)
	resp := postJSON(t, env.srv.URL+"/transcribe", map[string]string{"audio": wavB64()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if m := decode(t, resp); m["transcription"] != "hello there" {
		t.Fatalf("unexpected body %v", m)
	}
}

func TestTranscribeMissingAudio400(t *testing.T) {
	env := newEnv(t)
	resp := postJSON(t, env.srv.URL+"/transcribe", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp = postJSON(t, env.srv.URL+"/transcribe", map[string]string{"audio": "%%%"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad base64, got %d", resp.StatusCode)
	}
	if env.stt.Calls() != 0 {
		t.Fatal("transcriber must not run on invalid input")
	}
}

func TestTranscribeCollaboratorFailure500(t *testing.T) {
	env := newEnv(t)
	env.stt.TranscribeFunc = func(context.Context, []byte) (string, error) { return "", errors.New("dg down") }
	resp := postJSON(t, env.srv.URL+"/transcribe", map[string]string{"audio": wavB64()})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if m := decode(t, resp); m["error"] != "upstream service failed" {
		t.Fatalf("expected generic error, got %v", m)
	}
}

func TestQueryRoundRobin(t *testing.T) {
	env := newEnv(t)
	m := decode(t, postJSON(t, env.srv.URL+"/query-llama", map[string]string{"transcription": "hi"}))
	if m["personalityId"] != "sage" || m["response"] != "mock reply" {
		t.Fatalf("unexpected first reply %v", m)
	}
	pos, _ := m["position"].(map[string]any)
	if pos["x"] != -2.0 {
		t.Fatalf("expected sage position, got %v", m["position"])
	}
	m = decode(t, postJSON(t, env.srv.URL+"/query-llama", map[string]string{"transcription": "again"}))
	if m["personalityId"] != "spark" {
		t.Fatalf("expected spark next, got %v", m)
	}
}

func TestQueryEmptyTranscription(t *testing.T) {
	env := newEnv(t)
	m := decode(t, postJSON(t, env.srv.URL+"/query-llama", map[string]string{"transcription": "  "}))
	if m["response"] != "" || m["personalityId"] != nil {
		t.Fatalf("expected empty response, got %v", m)
	}
	if len(env.llm.Prompts()) != 0 {
		t.Fatal("generator must not run for empty transcription")
	}
	resp := postJSON(t, env.srv.URL+"/query-llama", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field, got %d", resp.StatusCode)
	}
}

func TestProcessText(t *testing.T) {
	env := newEnv(t)
	resp := postJSON(t, env.srv.URL+"/process-text", map[string]string{"text": "hi", "personalityId": "spark"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get(HeaderParticipant) != "spark" {
		t.Fatalf("missing participant header")
	}
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "ID3voice" {
		t.Fatalf("unexpected audio %q", b)
	}
	if calls := env.tts.Calls(); len(calls) != 1 || calls[0].VoiceID != "v2" {
		t.Fatalf("unexpected tts calls %+v", calls)
	}
}

func TestProcessTextFailures500(t *testing.T) {
	env := newEnv(t)
	cases := []map[string]string{
		{"text": "", "personalityId": "sage"},
		{"text": "hi", "personalityId": "nobody"},
	}
	for _, body := range cases {
		resp := postJSON(t, env.srv.URL+"/process-text", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected 500 for %v, got %d", body, resp.StatusCode)
		}
	}
}

func TestLastAudio(t *testing.T) {
	env := newEnv(t)
	resp, err := http.Get(env.srv.URL + "/last-audio")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with no audio, got %d", resp.StatusCode)
	}

	if err := os.WriteFile(filepath.Join(env.dir, "initial", "hello.mp3"), []byte("ID3init"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, _ = http.Get(env.srv.URL + "/last-audio")
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "ID3init" {
		t.Fatalf("expected initial audio, got %q", b)
	}

	postJSON(t, env.srv.URL+"/process-text", map[string]string{"text": "hi", "personalityId": "sage"}).Body.Close()
	resp, _ = http.Get(env.srv.URL + "/last-audio")
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "ID3voice" || resp.Header.Get(HeaderParticipant) != "sage" {
		t.Fatalf("expected newest response, got %q from %q", b, resp.Header.Get(HeaderParticipant))
	}
}

func TestRespondOneShot(t *testing.T) {
	env := newEnv(t)
	m := decode(t, postJSON(t, env.srv.URL+"/respond", map[string]string{"audio": "data:audio/wav;base64," + wavB64()}))
	if m["personalityId"] != "sage" || m["transcription"] != "hello there" {
		t.Fatalf("unexpected body %v", m)
	}
	audio, _ := base64.StdEncoding.DecodeString(m["audio"].(string))
	if string(audio) != "ID3voice" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestPersonalitiesAndEvents(t *testing.T) {
	env := newEnv(t)
	postJSON(t, env.srv.URL+"/query-llama", map[string]string{"transcription": "hi"}).Body.Close()

	resp, _ := http.Get(env.srv.URL + "/personalities")
	m := decode(t, resp)
	if list, _ := m["personalities"].([]any); len(list) != 2 {
		t.Fatalf("expected 2 personalities, got %v", m["personalities"])
	}

	resp, _ = http.Get(env.srv.URL + "/events")
	m = decode(t, resp)
	list, _ := m["events"].([]any)
	if len(list) == 0 {
		t.Fatal("expected journaled events")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newEnv(t)
	resp, err := http.Get(env.srv.URL + "/transcribe")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestReadyz(t *testing.T) {
	env := newEnv(t)
	resp, _ := http.Get(env.srv.URL + "/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}
	env.h.SetReady(false)
	resp, _ = http.Get(env.srv.URL + "/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown begins, got %d", resp.StatusCode)
	}
}
