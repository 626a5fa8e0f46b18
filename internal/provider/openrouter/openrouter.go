// Package openrouter reaches the Gemini image models through OpenRouter's
// chat completions endpoint.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/manash/image-gen/internal/image"
	"github.com/manash/image-gen/internal/provider"
	"github.com/manash/image-gen/pkg/models"
)

const (
	Name            = "openrouter"
	defaultBaseURL  = "https://openrouter.ai/api/v1"
	maxResponseSize = 64 << 20
)

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []message    `json:"messages"`
	Modalities  []string     `json:"modalities"`
	ImageConfig *imageConfig `json:"image_config,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type imageConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	ImageSize   string `json:"image_size,omitempty"`
}

type apiResponse struct {
	Choices []choice  `json:"choices"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Message            responseMessage `json:"message"`
	FinishReason       string          `json:"finish_reason"`
	NativeFinishReason string          `json:"native_finish_reason"`
}

type responseMessage struct {
	Content json.RawMessage   `json:"content"`
	Images  []json.RawMessage `json:"images"`
}

// imageEntry covers the object shapes OpenRouter has used for images.
type imageEntry struct {
	ImageURL *imageURL `json:"image_url"`
	URL      string    `json:"url"`
	B64JSON  string    `json:"b64_json"`
	Data     string    `json:"data"`
}

type apiError struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
}

func (e *apiError) code() string {
	return strings.Trim(string(e.Code), `"`)
}

// statusError reports an upstream failure. OpenRouter sometimes answers 200
// with an error body whose numeric code carries the real status.
func statusError(status int, e *apiError) *provider.StatusError {
	se := &provider.StatusError{StatusCode: status}
	if e == nil {
		return se
	}
	se.Message = e.Message
	se.Code = e.code()
	if n, err := strconv.Atoi(se.Code); err == nil {
		if status == http.StatusOK {
			se.StatusCode = n
		}
		se.Code = ""
	}
	return se
}

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	verbose    bool
	logOut     io.Writer
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg *provider.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.TimeoutOrDefault(),
		},
		verbose: cfg.Verbose,
		logOut:  cfg.LogWriter(),
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) Family() models.Family {
	return models.FamilyGemini
}

func (p *Provider) Generate(ctx context.Context, req *models.Request) (*models.Response, error) {
	return p.complete(ctx, req, nil)
}

// Edit sends every input as a reference image ahead of the prompt text.
func (p *Provider) Edit(ctx context.Context, req *models.Request) (*models.Response, error) {
	inputs, err := provider.LoadInputs(req.Inputs)
	if err != nil {
		return nil, err
	}
	return p.complete(ctx, req, inputs)
}

func (p *Provider) complete(ctx context.Context, req *models.Request, inputs []provider.Input) (*models.Response, error) {
	params, ok := req.Params.(models.GeminiParams)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrWrongFamily, req.Params.Family())
	}

	jsonData, err := json.Marshal(buildAPIRequest(req.Model.ID, req.Prompt, params, inputs))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.logRequest(http.MethodPost, url, httpReq.Header, jsonData)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	p.logResponse(resp.StatusCode, resp.Header, body)

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &provider.StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil || resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, apiResp.Error)
	}

	return buildResponse(apiResp)
}

func buildAPIRequest(model, prompt string, params models.GeminiParams, inputs []provider.Input) *apiRequest {
	content := make([]contentPart, 0, len(inputs)+1)
	for _, in := range inputs {
		content = append(content, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: in.DataURL()},
		})
	}
	content = append(content, contentPart{Type: "text", Text: prompt})

	apiReq := &apiRequest{
		Model:      model,
		Messages:   []message{{Role: "user", Content: content}},
		Modalities: []string{"image", "text"},
	}
	if params.AspectRatio != "" || params.ImageSize != "" {
		apiReq.ImageConfig = &imageConfig{
			AspectRatio: params.AspectRatio,
			ImageSize:   params.ImageSize,
		}
	}
	return apiReq
}

func buildResponse(apiResp apiResponse) (*models.Response, error) {
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", provider.ErrNoImage)
	}
	ch := apiResp.Choices[0]

	refs := make([]string, 0, len(ch.Message.Images))
	for _, raw := range ch.Message.Images {
		if ref := imageRef(raw); ref != "" {
			refs = append(refs, ref)
		}
	}

	var text string
	parts := contentParts(ch.Message.Content, &text)
	if len(refs) == 0 {
		for _, part := range parts {
			if part.Type == "image_url" && part.ImageURL != nil && part.ImageURL.URL != "" {
				refs = append(refs, part.ImageURL.URL)
			}
		}
	}

	if len(refs) == 0 {
		if provider.IsContentPolicyCode(ch.FinishReason) || provider.IsContentPolicyCode(ch.NativeFinishReason) {
			return nil, fmt.Errorf("%w: finish reason %s", provider.ErrContentPolicy, firstNonEmpty(ch.NativeFinishReason, ch.FinishReason))
		}
		if text != "" {
			return nil, fmt.Errorf("%w: model replied %q", provider.ErrNoImage, truncate(text, 200))
		}
		return nil, provider.ErrNoImage
	}

	response := &models.Response{
		Images: make([]models.GeneratedImage, 0, len(refs)),
		Text:   text,
	}
	for i, ref := range refs {
		img := models.GeneratedImage{Index: i}
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			img.URL = ref
		} else {
			data, mime, err := image.DecodeDataURL(ref)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
			}
			img.Data = data
			img.MIMEType = mime
		}
		response.Images = append(response.Images, img)
	}
	return response, nil
}

// imageRef extracts a data URL, remote URL or bare base64 payload from one
// entry of message.images, which may be a string or an object.
func imageRef(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var entry imageEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ""
	}
	if entry.ImageURL != nil && entry.ImageURL.URL != "" {
		return entry.ImageURL.URL
	}
	return firstNonEmpty(entry.URL, entry.B64JSON, entry.Data)
}

// contentParts decodes message.content, which is either a plain string or
// a list of typed parts. Plain text is appended to text.
func contentParts(raw json.RawMessage, text *string) []contentPart {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*text = strings.TrimSpace(s)
		return nil
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	var b strings.Builder
	for _, part := range parts {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	*text = strings.TrimSpace(b.String())
	return parts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
