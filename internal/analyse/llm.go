package analyse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

// LLM is the text generation collaborator used for intent classification
// and paraphrasing.
type LLM interface {
	// Generate returns the model's completion for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// OllamaLLMConfig configures the Ollama generation client.
type OllamaLLMConfig struct {
	Host  string
	Model string
	// Temperature defaults to 0.3 for consistent classification output.
	Temperature float64
}

// OllamaLLM calls Ollama's /api/generate endpoint.
type OllamaLLM struct {
	client *http.Client
	config OllamaLLMConfig
}

var _ LLM = (*OllamaLLM)(nil)

// NewOllamaLLM creates an Ollama-backed LLM client.
func NewOllamaLLM(cfg OllamaLLMConfig) *OllamaLLM {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	return &OllamaLLM{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		}},
		config: cfg,
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate returns the model's completion for a prompt.
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.config.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": o.config.Temperature},
	})
	if err != nil {
		return "", therrors.New(therrors.CodeInternal, "encode generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", therrors.New(therrors.CodeInternal, "create generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if ctxErr := therrors.FromContext(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", therrors.New(therrors.CodeLLMFailed, "generate request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", therrors.New(therrors.CodeLLMFailed,
			fmt.Sprintf("generate request returned status %d: %s", resp.StatusCode, string(detail)), nil)
	}

	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", therrors.New(therrors.CodeLLMFailed, "decode generate response", err)
	}
	return strings.TrimSpace(parsed.Response), nil
}
