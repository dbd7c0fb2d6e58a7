package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chorus/agent/internal/httpc"
	"chorus/agent/internal/logging"
)

// OpenAIConfig targets any chat-completions compatible endpoint (OpenAI,
// Azure deployments, Ollama, llama.cpp server).
type OpenAIConfig struct {
	BaseURL     string // e.g. https://api.openai.com/v1
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	// AzureAPIVersion switches to Azure routing: BaseURL is the resource
	// endpoint, Model the deployment name, and the key goes in api-key.
	AzureAPIVersion string
}

// OpenAI streams a chat completion and returns the concatenated content.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
	log    zerolog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	return &OpenAI{cfg: cfg, client: httpc.Client, log: logging.Component("llm")}
}

func (o *OpenAI) WithClient(c *http.Client) *OpenAI {
	o.client = c
	return o
}

func (o *OpenAI) endpoint() string {
	base := strings.TrimRight(o.cfg.BaseURL, "/")
	if o.cfg.AzureAPIVersion != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", base, o.cfg.Model, o.cfg.AzureAPIVersion)
	}
	return base + "/chat/completions"
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if o.cfg.BaseURL == "" {
		return "", errors.New("llm: missing LLM_BASE_URL")
	}
	body := map[string]any{
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	if o.cfg.AzureAPIVersion == "" {
		body["model"] = o.cfg.Model
	}
	if o.cfg.MaxTokens > 0 {
		body["max_tokens"] = o.cfg.MaxTokens
	}
	if o.cfg.Temperature > 0 {
		body["temperature"] = o.cfg.Temperature
	}
	reqBytes, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint(), bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if o.cfg.APIKey != "" {
		if o.cfg.AzureAPIVersion != "" {
			req.Header.Set("api-key", o.cfg.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
		}
	}

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		metricRequests.WithLabelValues("openai", "error").Inc()
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		metricRequests.WithLabelValues("openai", "http_error").Inc()
		return "", &APIError{StatusCode: resp.StatusCode, Message: httpc.ErrorBody(resp), Provider: "openai"}
	}

	// Some compatible servers ignore stream=true and answer with one JSON body.
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		text, err := decodeCompletion(resp.Body)
		if err != nil {
			metricRequests.WithLabelValues("openai", "decode_error").Inc()
			return "", err
		}
		metricRequests.WithLabelValues("openai", "ok").Inc()
		metricLatencyMS.WithLabelValues("openai").Observe(float64(time.Since(start).Milliseconds()))
		return text, nil
	}

	var out strings.Builder
	firstToken := false
	dec := newSSEDecoder(bufio.NewReader(resp.Body))
	for {
		_, data, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			metricRequests.WithLabelValues("openai", "stream_error").Inc()
			return "", fmt.Errorf("llm: stream: %w", err)
		}
		if string(data) == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if !firstToken {
			firstToken = true
			metricTTFTMS.Observe(float64(time.Since(start).Milliseconds()))
		}
		out.WriteString(content)
	}
	metricRequests.WithLabelValues("openai", "ok").Inc()
	metricLatencyMS.WithLabelValues("openai").Observe(float64(time.Since(start).Milliseconds()))
	o.log.Debug().Int("prompt_chars", len(prompt)).Int("reply_chars", out.Len()).Msg("completion done")
	return out.String(), nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type completion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func decodeCompletion(r io.Reader) (string, error) {
	var c completion
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(c.Choices) == 0 {
		return "", errors.New("llm: no choices in response")
	}
	return c.Choices[0].Message.Content, nil
}

type sseDecoder struct {
	r *bufio.Reader
}

func newSSEDecoder(r *bufio.Reader) *sseDecoder { return &sseDecoder{r: r} }

// Next returns the next (event, data) pair. Data lines are concatenated until
// a blank line; a stream ending without a trailing blank line still yields
// its last event.
func (d *sseDecoder) Next() (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return event, data, nil
			}
			return "", nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if bytes.HasPrefix(line, []byte("event:")) {
			event = strings.TrimSpace(string(line[len("event:"):]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			data = append(data, bytes.TrimSpace(line[len("data:"):])...)
		}
	}
}
