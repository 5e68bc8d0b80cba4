// Package textgen provides the text-generation collaborator used for cluster
// labeling. Providers are interchangeable: anything speaking the
// OpenAI-compatible chat-completions format works, local or remote.
package textgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Generator produces a JSON object from a prompt. Implementations must treat
// provider errors, timeouts, and malformed output as ordinary errors; callers
// decide how to degrade.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, schemaHint string) (map[string]any, error)
}

// Supported provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderCustom = "custom"
)

// Config selects and configures a provider.
type Config struct {
	Provider string        `yaml:"provider"` // "ollama", "openai", "custom"
	Model    string        `yaml:"model"`
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Resolve fills provider defaults and applies environment overrides.
func (c Config) Resolve() (Config, error) {
	out := c
	switch c.Provider {
	case "", ProviderOllama:
		out.Provider = ProviderOllama
		if out.Endpoint == "" {
			out.Endpoint = "http://127.0.0.1:11434/v1/chat/completions"
		}
		if out.Model == "" {
			out.Model = "qwen2.5:7b"
		}
	case ProviderOpenAI:
		if out.Endpoint == "" {
			out.Endpoint = "https://api.openai.com/v1/chat/completions"
		}
		if out.APIKey == "" {
			out.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case ProviderCustom:
		if out.Endpoint == "" {
			out.Endpoint = os.Getenv("NOTEGRAPH_GENERATOR_ENDPOINT")
		}
		if out.APIKey == "" {
			out.APIKey = os.Getenv("NOTEGRAPH_GENERATOR_API_KEY")
		}
		if out.Endpoint == "" {
			return Config{}, fmt.Errorf("custom provider requires an endpoint")
		}
	default:
		return Config{}, fmt.Errorf("unknown provider %q (supported: ollama, openai, custom)", c.Provider)
	}

	if endpoint := os.Getenv("NOTEGRAPH_GENERATOR_ENDPOINT"); endpoint != "" {
		out.Endpoint = endpoint
	}
	if key := os.Getenv("NOTEGRAPH_GENERATOR_API_KEY"); key != "" {
		out.APIKey = key
	}
	if out.Timeout <= 0 {
		out.Timeout = 60 * time.Second
	}
	return out, nil
}

// Client is an OpenAI-compatible chat-completions Generator.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient resolves the config and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	return &Client{
		config: resolved,
		http:   &http.Client{Timeout: resolved.Timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateJSON sends the prompt and parses the first JSON object out of the
// model's reply. The schemaHint is appended to the system message; models
// that ignore it produce output the caller treats as a soft failure.
func (c *Client) GenerateJSON(ctx context.Context, prompt, schemaHint string) (map[string]any, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a JSON-only assistant. Respond with exactly one JSON object matching: " + schemaHint},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned HTTP %d: %s", resp.StatusCode, truncateForError(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("generator returned no choices")
	}

	return ExtractJSONObject(parsed.Choices[0].Message.Content)
}

// ExtractJSONObject finds and parses the first balanced JSON object in text,
// tolerating prose or code fences around it.
func ExtractJSONObject(text string) (map[string]any, error) {
	start := -1
	for i, r := range text {
		if r == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("no JSON object in output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &obj); err != nil {
					return nil, fmt.Errorf("invalid JSON object in output: %w", err)
				}
				return obj, nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in output")
}

func truncateForError(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
