// Package store persists audio on disk: temporary uploads awaiting
// transcription, synthesized responses, and optional bootstrap audio.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chorus/agent/internal/logging"
)

var ErrNoAudio = errors.New("no audio available")

const (
	uploadsDir   = "uploads"
	responsesDir = "responses"
	initialDir   = "initial"
)

type FileStore struct {
	baseDir   string
	retention int

	mu        sync.Mutex
	lastNanos int64
	now       func() time.Time
	log       zerolog.Logger
}

// New creates the directory layout under baseDir. retention is the number of
// response files kept; values below 1 keep a single file.
func New(baseDir string, retention int) (*FileStore, error) {
	if retention < 1 {
		retention = 1
	}
	for _, dir := range []string{uploadsDir, responsesDir, initialDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	return &FileStore{
		baseDir:   baseDir,
		retention: retention,
		now:       time.Now,
		log:       logging.Component("store"),
	}, nil
}

func (s *FileStore) Dir() string { return s.baseDir }

// stamp returns a strictly increasing nanosecond timestamp.
func (s *FileStore) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.now().UnixNano()
	if n <= s.lastNanos {
		n = s.lastNanos + 1
	}
	s.lastNanos = n
	return n
}

// SaveUpload writes a WAV for the transcriber. The returned cleanup removes it
// and is safe to call more than once.
func (s *FileStore) SaveUpload(wav []byte) (string, func(), error) {
	path := filepath.Join(s.baseDir, uploadsDir, fmt.Sprintf("%d.wav", s.stamp()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("store: write upload: %w", err)
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Warn().Err(err).Str("path", path).Msg("remove upload failed")
			}
		})
	}
	return path, cleanup, nil
}

// SaveResponse writes a synthesized reply as <unix-nanos>-<participant>.mp3
// and then prunes all but the newest retention files.
func (s *FileStore) SaveResponse(participantID string, audio []byte) (string, error) {
	name := fmt.Sprintf("%d-%s.mp3", s.stamp(), sanitize(participantID))
	path := filepath.Join(s.baseDir, responsesDir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("store: write response: %w", err)
	}
	metricResponsesSaved.Inc()
	s.prune()
	return path, nil
}

func (s *FileStore) prune() {
	files, err := s.responses()
	if err != nil {
		s.log.Warn().Err(err).Msg("list responses failed")
		return
	}
	if len(files) <= s.retention {
		return
	}
	for _, f := range files[:len(files)-s.retention] {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", f.path).Msg("prune response failed")
			continue
		}
		metricResponsesPruned.Inc()
	}
}

type stampedFile struct {
	path  string
	nanos int64
}

// responses lists response files oldest first.
func (s *FileStore) responses() ([]stampedFile, error) {
	dir := filepath.Join(s.baseDir, responsesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []stampedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp3") {
			continue
		}
		prefix, _, _ := strings.Cut(e.Name(), "-")
		n, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, stampedFile{path: filepath.Join(dir, e.Name()), nanos: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].nanos < out[j].nanos })
	return out, nil
}

// Latest returns the newest response file, else the newest file in initial/,
// else ErrNoAudio.
func (s *FileStore) Latest() (string, error) {
	files, err := s.responses()
	if err == nil && len(files) > 0 {
		return files[len(files)-1].path, nil
	}
	return s.latestInitial()
}

func (s *FileStore) latestInitial() (string, error) {
	dir := filepath.Join(s.baseDir, initialDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoAudio
		}
		return "", fmt.Errorf("store: list initial: %w", err)
	}
	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", ErrNoAudio
	}
	return best, nil
}

// ParticipantFromPath recovers the participant id encoded in a response file
// name. Files from initial/ yield "".
func ParticipantFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".mp3")
	prefix, rest, ok := strings.Cut(base, "-")
	if !ok {
		return ""
	}
	if _, err := strconv.ParseInt(prefix, 10, 64); err != nil {
		return ""
	}
	return rest
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
