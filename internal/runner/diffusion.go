package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Diffusion invokes the diffusion sidecar over HTTP. When no base URL is
// configured it renders deterministic synthetic images instead, which keeps
// the whole pipeline operable on machines without an accelerator.
type Diffusion struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// DiffusionOptions configures NewDiffusion.
type DiffusionOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewDiffusion builds the sidecar-backed runner.
func NewDiffusion(opts DiffusionOptions) *Diffusion {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Diffusion{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

type diffusionRequest struct {
	Type          string  `json:"type"`
	Prompt        string  `json:"prompt"`
	NegPrompt     string  `json:"neg_prompt,omitempty"`
	RefImage      string  `json:"ref_img,omitempty"`
	MaskImage     string  `json:"mask_img,omitempty"`
	Seed          int64   `json:"seed"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	GuidanceScale float64 `json:"guidance_scale"`
	Steps         int     `json:"steps"`
	Scheduler     string  `json:"scheduler"`
	Strength      float64 `json:"strength"`
}

type diffusionResponse struct {
	Image     string `json:"img"`
	Seed      int64  `json:"seed"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Steps     int    `json:"steps"`
	ModelName string `json:"base_model"`
	Error     string `json:"error,omitempty"`
}

// Run executes the request against the sidecar. Remote failures are the
// job's failure; there is no fallback once a sidecar is configured.
func (d *Diffusion) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.baseURL == "" {
		d.logger.Debug().Str("job_id", req.JobID).Msg("runner: no diffusion sidecar configured, rendering synthetic image")
		return synthesize(req, "synthetic")
	}

	payload := diffusionRequest{
		Type:          string(req.Type),
		Prompt:        req.Prompt,
		NegPrompt:     req.NegPrompt,
		Seed:          req.Seed,
		Width:         req.Width,
		Height:        req.Height,
		GuidanceScale: req.GuidanceScale,
		Steps:         req.Steps,
		Scheduler:     req.Scheduler,
		Strength:      req.Strength,
	}
	if len(req.RefImage) > 0 {
		payload.RefImage = base64.StdEncoding.EncodeToString(req.RefImage)
	}
	if len(req.MaskImage) > 0 {
		payload.MaskImage = base64.StdEncoding.EncodeToString(req.MaskImage)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("runner: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("runner: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("runner: diffusion sidecar: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("runner: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runner: diffusion sidecar returned %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var out diffusionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("runner: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("runner: diffusion sidecar: %s", out.Error)
	}
	img, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return nil, fmt.Errorf("runner: decode result image: %w", err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("runner: diffusion sidecar returned no image")
	}

	result := &Result{
		ImagePNG:  img,
		Seed:      out.Seed,
		Width:     out.Width,
		Height:    out.Height,
		Steps:     out.Steps,
		ModelName: out.ModelName,
	}
	if result.Seed == 0 {
		result.Seed = req.Seed
	}
	if result.Width == 0 {
		result.Width = req.Width
	}
	if result.Height == 0 {
		result.Height = req.Height
	}
	if result.Steps == 0 {
		result.Steps = req.Steps
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Runner = (*Diffusion)(nil)
