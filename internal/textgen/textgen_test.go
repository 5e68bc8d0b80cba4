package textgen

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigResolve_Defaults(t *testing.T) {
	cfg, err := Config{}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, cfg.Provider)
	assert.Equal(t, "http://127.0.0.1:11434/v1/chat/completions", cfg.Endpoint)
	assert.Equal(t, "qwen2.5:7b", cfg.Model)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestConfigResolve_OpenAI(t *testing.T) {
	cfg, err := Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.Endpoint)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestConfigResolve_CustomRequiresEndpoint(t *testing.T) {
	t.Setenv("NOTEGRAPH_GENERATOR_ENDPOINT", "")
	_, err := Config{Provider: ProviderCustom}.Resolve()
	assert.Error(t, err)
}

func TestConfigResolve_UnknownProvider(t *testing.T) {
	_, err := Config{Provider: "mystery"}.Resolve()
	assert.Error(t, err)
}

func TestConfigResolve_EnvOverrides(t *testing.T) {
	t.Setenv("NOTEGRAPH_GENERATOR_ENDPOINT", "http://example.test/v1/chat/completions")
	t.Setenv("NOTEGRAPH_GENERATOR_API_KEY", "secret")

	cfg, err := Config{Provider: ProviderOllama}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, "http://example.test/v1/chat/completions", cfg.Endpoint)
	assert.Equal(t, "secret", cfg.APIKey)
}

func TestExtractJSONObject_TableDriven(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"label": "Gardening", "keywords": ["plants"]}`,
			want:  map[string]any{"label": "Gardening", "keywords": []any{"plants"}},
		},
		{
			name:  "fenced output",
			input: "```json\n{\"label\": \"Budget\"}\n```",
			want:  map[string]any{"label": "Budget"},
		},
		{
			name:  "prose around the object",
			input: `Sure! Here is your answer: {"label": "Travel"} hope it helps`,
			want:  map[string]any{"label": "Travel"},
		},
		{
			name:  "braces inside strings",
			input: `{"label": "a {weird} \"label\""}`,
			want:  map[string]any{"label": `a {weird} "label"`},
		},
		{
			name:  "nested object",
			input: `{"outer": {"inner": 1}}`,
			want:  map[string]any{"outer": map[string]any{"inner": float64(1)}},
		},
		{
			name:    "no object at all",
			input:   "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "unbalanced braces",
			input:   `{"label": "oops"`,
			wantErr: true,
		},
		{
			name:    "invalid JSON inside braces",
			input:   `{label: nope}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func chatReply(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
		require.NoError(t, err)
	}
}

func TestClientGenerateJSON(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		chatReply(t, `{"label": "Cooking", "keywords": ["recipes", "kitchen"]}`)(w, r)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		Provider: ProviderCustom,
		Endpoint: srv.URL,
		Model:    "test-model",
		APIKey:   "token123",
	})
	require.NoError(t, err)

	obj, err := client.GenerateJSON(context.Background(), "label this cluster", `{"label": "", "keywords": []}`)
	require.NoError(t, err)

	assert.Equal(t, "Cooking", obj["label"])
	assert.Equal(t, []any{"recipes", "kitchen"}, obj["keywords"])

	assert.Equal(t, "Bearer token123", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, `{"label": "", "keywords": []}`)
	assert.Equal(t, "label this cluster", gotReq.Messages[1].Content)
	assert.Zero(t, gotReq.Temperature)
}

func TestClientGenerateJSON_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: ProviderCustom, Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.GenerateJSON(context.Background(), "prompt", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientGenerateJSON_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: ProviderCustom, Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.GenerateJSON(context.Background(), "prompt", "{}")
	assert.Error(t, err)
}

func TestClientGenerateJSON_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background connection
		// read; otherwise the client disconnect is never detected and
		// r.Context() never fires, deadlocking srv.Close.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: ProviderCustom, Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.GenerateJSON(ctx, "prompt", "{}")
	assert.Error(t, err)
}
