// Package openai talks to the OpenAI Images API through the official SDK.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/manash/image-gen/internal/provider"
	"github.com/manash/image-gen/pkg/models"
)

const (
	Name           = "openai"
	defaultSize    = "auto"
	defaultQuality = "auto"
)

type Provider struct {
	client  openai.Client
	verbose bool
	logOut  io.Writer
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg *provider.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	p := &Provider{
		verbose: cfg.Verbose,
		logOut:  cfg.LogWriter(),
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.TimeoutOrDefault()}),
		// retries are owned by provider.Client
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Verbose {
		opts = append(opts, option.WithMiddleware(p.logMiddleware))
	}

	p.client = openai.NewClient(opts...)
	return p, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Family() models.Family {
	return models.FamilyOpenAI
}

func (p *Provider) Generate(ctx context.Context, req *models.Request) (*models.Response, error) {
	params, ok := req.Params.(models.OpenAIParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrWrongFamily, req.Params.Family())
	}

	format := params.Format
	if format == "" {
		format = models.FormatPNG
	}

	resp, err := p.client.Images.Generate(ctx, buildGenerateParams(req, params, format))
	if err != nil {
		return nil, translateError(err)
	}
	return buildResponse(resp, mimeFor(format))
}

// Edit sends the single source image as a multipart upload.
func (p *Provider) Edit(ctx context.Context, req *models.Request) (*models.Response, error) {
	params, ok := req.Params.(models.OpenAIParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrWrongFamily, req.Params.Family())
	}
	if len(req.Inputs) != 1 {
		return nil, fmt.Errorf("%w: %s takes exactly one source image", models.ErrTooManyInputs, req.Model.Alias)
	}

	inputs, err := provider.LoadInputs(req.Inputs)
	if err != nil {
		return nil, err
	}

	format := params.Format
	if format == "" {
		format = models.FormatPNG
	}

	resp, err := p.client.Images.Edit(ctx, buildEditParams(req, params, format, inputs[0]))
	if err != nil {
		return nil, translateError(err)
	}
	return buildResponse(resp, mimeFor(format))
}

func buildGenerateParams(req *models.Request, params models.OpenAIParams, format models.OutputFormat) openai.ImageGenerateParams {
	return openai.ImageGenerateParams{
		Prompt:       req.Prompt,
		Model:        openai.ImageModel(req.Model.ID),
		N:            openai.Int(1),
		Size:         openai.ImageGenerateParamsSize(orDefault(params.Size, defaultSize)),
		Quality:      openai.ImageGenerateParamsQuality(orDefault(params.Quality, defaultQuality)),
		Background:   openai.ImageGenerateParamsBackground(orDefault(params.Background, models.BackgroundAuto)),
		OutputFormat: openai.ImageGenerateParamsOutputFormat(format),
	}
}

func buildEditParams(req *models.Request, params models.OpenAIParams, format models.OutputFormat, in provider.Input) openai.ImageEditParams {
	return openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(in.Data), in.Name, in.MIMEType),
		},
		Prompt:       req.Prompt,
		Model:        openai.ImageModel(req.Model.ID),
		N:            openai.Int(1),
		Size:         openai.ImageEditParamsSize(orDefault(params.Size, defaultSize)),
		Quality:      openai.ImageEditParamsQuality(orDefault(params.Quality, defaultQuality)),
		Background:   openai.ImageEditParamsBackground(orDefault(params.Background, models.BackgroundAuto)),
		OutputFormat: openai.ImageEditParamsOutputFormat(format),
	}
}

func buildResponse(resp *openai.ImagesResponse, mime string) (*models.Response, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, provider.ErrNoImage
	}

	response := &models.Response{
		Images: make([]models.GeneratedImage, 0, len(resp.Data)),
	}

	for i, data := range resp.Data {
		img := models.GeneratedImage{
			Index:    i,
			URL:      data.URL,
			MIMEType: mime,
		}

		if data.B64JSON != "" {
			decoded, err := base64.StdEncoding.DecodeString(data.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
			}
			img.Data = decoded
		}
		if len(img.Data) == 0 && img.URL == "" {
			continue
		}

		if response.RevisedPrompt == "" && data.RevisedPrompt != "" {
			response.RevisedPrompt = data.RevisedPrompt
		}

		response.Images = append(response.Images, img)
	}

	if len(response.Images) == 0 {
		return nil, provider.ErrNoImage
	}
	return response, nil
}

// translateError turns SDK API errors into provider.StatusError so they
// classify the same way as every other backend.
func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: %w", &provider.StatusError{
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		})
	}
	return fmt.Errorf("openai: %w", err)
}

func (p *Provider) logMiddleware(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	fmt.Fprintln(p.logOut, "--- REQUEST ---")
	fmt.Fprintf(p.logOut, "%s %s\n", req.Method, req.URL)
	fmt.Fprintf(p.logOut, "  Content-Type: %s\n", req.Header.Get("Content-Type"))
	fmt.Fprintln(p.logOut, "---------------")

	resp, err := next(req)
	if err != nil {
		fmt.Fprintf(p.logOut, "--- RESPONSE ---\nError: %v\n----------------\n", err)
		return resp, err
	}

	fmt.Fprintln(p.logOut, "--- RESPONSE ---")
	fmt.Fprintf(p.logOut, "Status: %d\n", resp.StatusCode)
	if id := resp.Header.Get("X-Request-Id"); id != "" {
		fmt.Fprintf(p.logOut, "  X-Request-Id: %s\n", id)
	}
	fmt.Fprintln(p.logOut, "----------------")
	return resp, nil
}

func mimeFor(format models.OutputFormat) string {
	switch format {
	case models.FormatJPEG:
		return "image/jpeg"
	case models.FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
