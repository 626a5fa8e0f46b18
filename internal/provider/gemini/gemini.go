// Package gemini calls the Gemini image models directly on the Google AI
// API. It is selected with gemini.transport = google.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/manash/image-gen/internal/provider"
	"github.com/manash/image-gen/pkg/models"
)

const Name = "gemini"

type Provider struct {
	client *genai.Client
}

var _ provider.Provider = (*Provider)(nil)

func New(ctx context.Context, cfg *provider.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.TimeoutOrDefault()},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{client: client}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Family() models.Family {
	return models.FamilyGemini
}

func (p *Provider) Generate(ctx context.Context, req *models.Request) (*models.Response, error) {
	return p.generate(ctx, req, nil)
}

func (p *Provider) Edit(ctx context.Context, req *models.Request) (*models.Response, error) {
	inputs, err := provider.LoadInputs(req.Inputs)
	if err != nil {
		return nil, err
	}
	return p.generate(ctx, req, inputs)
}

func (p *Provider) generate(ctx context.Context, req *models.Request, inputs []provider.Input) (*models.Response, error) {
	params, ok := req.Params.(models.GeminiParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrWrongFamily, req.Params.Family())
	}

	parts := make([]*genai.Part, 0, len(inputs)+1)
	for _, in := range inputs {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     in.Data,
				MIMEType: in.MIMEType,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	result, err := p.client.Models.GenerateContent(ctx, ModelName(req.Model.ID), contents, buildConfig(params))
	if err != nil {
		return nil, translateError(err)
	}
	return parseResult(result)
}

// ModelName maps an OpenRouter-style id onto the Google AI model name.
func ModelName(id string) string {
	return strings.TrimPrefix(id, "google/")
}

func buildConfig(params models.GeminiParams) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if params.AspectRatio != "" || params.ImageSize != "" {
		cfg.ImageConfig = &genai.ImageConfig{
			AspectRatio: params.AspectRatio,
			ImageSize:   params.ImageSize,
		}
	}
	return cfg
}

func parseResult(result *genai.GenerateContentResponse) (*models.Response, error) {
	if result == nil {
		return nil, provider.ErrNoImage
	}
	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", provider.ErrContentPolicy, fb.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response from model", provider.ErrNoImage)
	}

	response := &models.Response{}
	var text strings.Builder
	var finish string

	for _, candidate := range result.Candidates {
		if candidate.FinishReason != "" {
			finish = string(candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				response.Images = append(response.Images, models.GeneratedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
					Index:    len(response.Images),
				})
			}
		}
	}
	response.Text = strings.TrimSpace(text.String())

	if len(response.Images) == 0 {
		if provider.IsContentPolicyCode(finish) {
			return nil, fmt.Errorf("%w: finish reason %s", provider.ErrContentPolicy, finish)
		}
		if response.Text != "" {
			return nil, fmt.Errorf("%w: model replied %q", provider.ErrNoImage, response.Text)
		}
		return nil, provider.ErrNoImage
	}
	return response, nil
}

func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %w", &provider.StatusError{
			StatusCode: apiErr.Code,
			Code:       apiErr.Status,
			Message:    apiErr.Message,
		})
	}
	return fmt.Errorf("gemini: %w", err)
}
