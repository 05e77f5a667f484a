// Package translate resolves non-English prompts before dispatch. The actual
// translation model is an external collaborator reached over HTTP; this
// package owns the language-tag policy and the client contract.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Translator converts text from the given source language into English.
type Translator interface {
	Translate(ctx context.Context, text, srcLang string) (string, error)
}

// Nop returns the text unchanged. Used when no translation sidecar is
// configured; jobs then run with their original prompt.
type Nop struct{}

func (Nop) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// HTTP calls the translation sidecar.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTP builds the sidecar-backed translator.
func NewHTTP(baseURL string, httpClient *http.Client, logger zerolog.Logger) *HTTP {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTP{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

type translateRequest struct {
	Text    string `json:"text"`
	SrcLang string `json:"src_lang"`
}

type translateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (t *HTTP) Translate(ctx context.Context, text, srcLang string) (string, error) {
	body, err := json.Marshal(translateRequest{Text: text, SrcLang: srcLang})
	if err != nil {
		return "", fmt.Errorf("translate: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: sidecar: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("translate: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate: sidecar returned %d", resp.StatusCode)
	}
	var out translateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("translate: sidecar: %s", out.Error)
	}
	return out.Text, nil
}

var (
	_ Translator = Nop{}
	_ Translator = (*HTTP)(nil)
)
