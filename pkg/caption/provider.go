// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package caption provides a unified interface for image captioning providers.
// Supports the Hugging Face hosted inference API and a mock for testing.
package caption

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Captioner defines the interface for image caption generation.
type Captioner interface {
	// Caption produces a one-line description of the given image.
	Caption(ctx context.Context, req CaptionRequest) (*CaptionResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Models returns the model aliases this provider accepts.
	Models(ctx context.Context) ([]string, error)
}

// CaptionRequest represents a caption generation request.
type CaptionRequest struct {
	// Image is the raw image content, sent as the request body.
	Image io.Reader

	// Filename labels the image in errors and logs.
	Filename string

	// Model overrides the provider default. Accepts an alias
	// ("vit-gpt2", "blip-image", "git-large") or a full hub path.
	Model string
}

// CaptionResponse contains the generated caption.
type CaptionResponse struct {
	Text     string        `json:"text"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ProviderConfig holds configuration for creating captioners.
type ProviderConfig struct {
	// Provider type: "huggingface", "mock"
	Type string `json:"type"`

	// BaseURL for the API endpoint
	BaseURL string `json:"base_url,omitempty"`

	// Token for authenticated providers
	Token string `json:"token,omitempty"`

	// DefaultModel to use if not specified in requests
	DefaultModel string `json:"default_model,omitempty"`

	// Timeout for API requests
	Timeout time.Duration `json:"timeout,omitempty"`
}

// NewCaptioner creates a Captioner based on configuration.
// Supported types: "huggingface", "mock"
//
// Environment variables:
//   - HUGGING_FACE_TOKEN: Hugging Face API token
//   - HUGGING_FACE_MODEL: Default model alias or hub path
func NewCaptioner(cfg ProviderConfig) (Captioner, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	switch strings.ToLower(cfg.Type) {
	case "huggingface", "hf", "":
		return newHuggingFaceCaptioner(cfg)
	case "mock", "test":
		return &MockCaptioner{model: cfg.DefaultModel}, nil
	default:
		return nil, fmt.Errorf("unknown caption provider type: %s (supported: huggingface, mock)", cfg.Type)
	}
}

// =============================================================================
// HUGGING FACE PROVIDER
// =============================================================================

// Model aliases accepted on the command line, mapped to their hub paths.
var hubModels = map[string]string{
	"vit-gpt2":   "nlpconnect/vit-gpt2-image-captioning",
	"blip-image": "Salesforce/blip-image-captioning-large",
	"git-large":  "microsoft/git-large-coco",
}

const defaultHubURL = "https://api-inference.huggingface.co"

type huggingFaceCaptioner struct {
	baseURL      string
	token        string
	defaultModel string
	client       *http.Client
}

func newHuggingFaceCaptioner(cfg ProviderConfig) (*huggingFaceCaptioner, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHubURL
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("HUGGING_FACE_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("huggingface: token not set (pass one or set HUGGING_FACE_TOKEN)")
	}

	model := cfg.DefaultModel
	if model == "" {
		model = os.Getenv("HUGGING_FACE_MODEL")
	}
	if model == "" {
		model = "vit-gpt2"
	}

	return &huggingFaceCaptioner{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		defaultModel: model,
		client:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *huggingFaceCaptioner) Name() string { return "huggingface" }

func (p *huggingFaceCaptioner) Models(ctx context.Context) ([]string, error) {
	return []string{"vit-gpt2", "blip-image", "git-large"}, nil
}

// resolveModel maps a CLI alias to its hub path. Anything not in the alias
// table is taken as a full hub path and passed through.
func resolveModel(model string) string {
	if path, ok := hubModels[model]; ok {
		return path
	}
	return model
}

func (p *huggingFaceCaptioner) Caption(ctx context.Context, req CaptionRequest) (*CaptionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	hubPath := resolveModel(model)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/models/"+hubPath, req.Image)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.token)
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	// Cold models answer 503 while the hub spins them up; this header parks
	// the request until the model is ready instead.
	httpReq.Header.Set("X-Wait-For-Model", "true")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("huggingface caption %s: %w", req.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("huggingface caption error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("huggingface returned no captions for %s", req.Filename)
	}

	return &CaptionResponse{
		Text:     strings.TrimSpace(result[0].GeneratedText),
		Model:    hubPath,
		Duration: time.Since(start),
	}, nil
}

// =============================================================================
// MOCK PROVIDER (for testing)
// =============================================================================

// MockCaptioner is a test captioner that returns predictable responses.
type MockCaptioner struct {
	model       string
	CaptionFunc func(ctx context.Context, req CaptionRequest) (*CaptionResponse, error)
}

func (p *MockCaptioner) Name() string { return "mock" }

func (p *MockCaptioner) Models(ctx context.Context) ([]string, error) {
	return []string{"mock-model"}, nil
}

func (p *MockCaptioner) Caption(ctx context.Context, req CaptionRequest) (*CaptionResponse, error) {
	if p.CaptionFunc != nil {
		return p.CaptionFunc(ctx, req)
	}
	// Drain the image so the mock consumes input like a real provider.
	n, _ := io.Copy(io.Discard, req.Image)
	return &CaptionResponse{
		Text:     fmt.Sprintf("[mock] caption for %s (%d bytes)", req.Filename, n),
		Model:    "mock-model",
		Duration: 10 * time.Millisecond,
	}, nil
}
