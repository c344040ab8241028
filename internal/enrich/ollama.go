package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama2"
)

// Ollama generates descriptions through a locally running Ollama server.
// Every call is bounded by the client timeout; any failure simply means
// no enrichment for that record.
type Ollama struct {
	URL    string
	Model  string
	Client *http.Client
}

// NewOllama returns an Ollama enricher with sane defaults.
func NewOllama(url, model string) *Ollama {
	if url == "" {
		url = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &Ollama{
		URL:    url,
		Model:  model,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// Available reports whether the Ollama server responds. Used to decide
// whether to put this provider in the chain at all.
func (o *Ollama) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Supply implements Enricher.
func (o *Ollama) Supply(ctx context.Context, name string, recordType brewfile.RecordType) (*Enrichment, error) {
	prompt := fmt.Sprintf(
		`Describe the %s package %q in one sentence and give one short usage example. `+
			`Respond with JSON: {"description": "...", "example": "..."}`,
		recordType, name)

	body, err := json.Marshal(ollamaRequest{
		Model:  o.Model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.3,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	return parseModelOutput(out.Response), nil
}

// parseModelOutput extracts description/example from the model text.
// Models don't always honor the JSON instruction, so fall back to the
// first non-empty line as a description.
func parseModelOutput(text string) *Enrichment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parsed struct {
		Description string `json:"description"`
		Example     string `json:"example"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		if parsed.Description == "" && parsed.Example == "" {
			return nil
		}
		return &Enrichment{Description: parsed.Description, Example: parsed.Example}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return &Enrichment{Description: line}
		}
	}
	return nil
}
