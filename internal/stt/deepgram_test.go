package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramTranscribe(t *testing.T) {
	var gotAuth, gotModel string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.URL.Query().Get("model")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" hello there ","confidence":0.9}]}]}}`))
	}))
	defer srv.Close()

	d := NewDeepgram(DeepgramConfig{APIKey: "k", BaseURL: srv.URL}).WithClient(srv.Client())
	text, err := d.Transcribe(context.Background(), []byte("RIFFdata"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello there" {
		t.Fatalf("got %q", text)
	}
	if gotAuth != "Token k" || gotModel != "nova-2" || string(gotBody) != "RIFFdata" {
		t.Fatalf("unexpected request auth=%q model=%q body=%q", gotAuth, gotModel, gotBody)
	}
}

func TestDeepgramNoChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	d := NewDeepgram(DeepgramConfig{APIKey: "k", BaseURL: srv.URL}).WithClient(srv.Client())
	text, err := d.Transcribe(context.Background(), []byte("x"))
	if err != nil || text != "" {
		t.Fatalf("expected empty transcript, got %q %v", text, err)
	}
}

func TestDeepgramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDeepgram(DeepgramConfig{APIKey: "k", BaseURL: srv.URL}).WithClient(srv.Client())
	_, err := d.Transcribe(context.Background(), []byte("x"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 429 || !apiErr.IsRetryable() {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestDeepgramRequiresKey(t *testing.T) {
	d := NewDeepgram(DeepgramConfig{})
	if _, err := d.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error without api key")
	}
}
