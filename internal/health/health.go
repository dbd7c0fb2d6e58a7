// Package health probes the external collaborators and local storage.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chorus/agent/internal/config"
	"chorus/agent/internal/httpc"
	"chorus/agent/internal/llm"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			fmt.Fprintf(&b, " - %s", c.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CheckAll runs every check and returns the combined status.
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkStorage(cfg),
		checkDeepgram(ctx, cfg),
		checkLLM(ctx, cfg),
	}
	checks = append(checks, checkVoices(ctx, cfg)...)

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}
	return HealthStatus{OK: allOK, Checks: checks, CheckedAt: time.Now().UTC()}
}

func checkStorage(cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "storage"}
	probe := filepath.Join(cfg.Storage.Dir, ".probe")
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		result.Error = err.Error()
	} else if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Error = fmt.Sprintf("not writable: %v", err)
	} else {
		_ = os.Remove(probe)
		result.OK = true
	}
	result.Latency = time.Since(start)
	return result
}

func checkDeepgram(ctx context.Context, cfg config.Config) CheckResult {
	if cfg.Deepgram.APIKey == "" {
		return CheckResult{Name: "deepgram", Error: "DEEPGRAM_API_KEY not set"}
	}
	// The projects listing is the cheapest authenticated call.
	base := strings.TrimSuffix(cfg.Deepgram.BaseURL, "/listen")
	return probe(ctx, "deepgram", http.MethodGet, base+"/projects", map[string]string{
		"Authorization": "Token " + cfg.Deepgram.APIKey,
	})
}

func checkLLM(ctx context.Context, cfg config.Config) CheckResult {
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.APIKey == "" {
			return CheckResult{Name: "llm", Error: "LLM_API_KEY not set"}
		}
		model := cfg.LLM.Model
		if model == "" {
			model = llm.DefaultGeminiModel
		}
		url := "https://generativelanguage.googleapis.com/v1beta/models/" + model
		return probe(ctx, "llm", http.MethodGet, url, map[string]string{"x-goog-api-key": cfg.LLM.APIKey})
	default:
		headers := map[string]string{}
		if cfg.LLM.APIKey != "" {
			headers["Authorization"] = "Bearer " + cfg.LLM.APIKey
		}
		return probe(ctx, "llm", http.MethodGet, strings.TrimRight(cfg.LLM.BaseURL, "/")+"/models", headers)
	}
}

// checkVoices verifies every configured personality voice exists.
func checkVoices(ctx context.Context, cfg config.Config) []CheckResult {
	if cfg.Eleven.APIKey == "" {
		return []CheckResult{{Name: "elevenlabs", Error: "ELEVENLABS_API_KEY not set"}}
	}
	base := strings.TrimRight(cfg.Eleven.BaseURL, "/")
	var out []CheckResult
	for _, p := range cfg.Personalities {
		r := probe(ctx, "elevenlabs_voice:"+p.ID, http.MethodGet, base+"/v1/voices/"+p.VoiceID, map[string]string{
			"xi-api-key": cfg.Eleven.APIKey,
		})
		if r.Error == "not found (404)" {
			r.Error = fmt.Sprintf("voice ID %q not found", p.VoiceID)
		}
		out = append(out, r)
	}
	return out
}

func probe(ctx context.Context, name, method, url string, headers map[string]string) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpc.Client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()
	result.Latency = time.Since(start)

	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		result.Error = fmt.Sprintf("invalid API key (%d)", resp.StatusCode)
	case resp.StatusCode == 404:
		result.Error = "not found (404)"
	case resp.StatusCode/100 != 2:
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, httpc.ErrorBody(resp))
	default:
		result.OK = true
	}
	return result
}
