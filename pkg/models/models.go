package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyPrompt               = errors.New("prompt cannot be empty")
	ErrUnknownModel              = errors.New("unknown model")
	ErrInvalidSize               = errors.New("invalid size for model")
	ErrInvalidQuality            = errors.New("invalid quality for model")
	ErrInvalidAspectRatio        = errors.New("invalid aspect ratio for model")
	ErrInvalidImageSize          = errors.New("invalid image size for model")
	ErrTransparencyNotSupported  = errors.New("transparency not supported by model")
	ErrInvalidTransparencyFormat = errors.New("transparent background requires png or webp format")
	ErrParamsMismatch            = errors.New("parameters do not match model family")
	ErrNoInputImage              = errors.New("edit requires an input image")
	ErrTooManyInputs             = errors.New("too many input images for model")
)

// Family groups models that share a request shape and an upstream API.
type Family string

const (
	FamilyGemini Family = "gemini"
	FamilyOpenAI Family = "openai"
)

type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeEdit     Mode = "edit"
)

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatWebP}
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

const (
	BackgroundAuto        = "auto"
	BackgroundTransparent = "transparent"
)

// Params carries the family-specific knobs of a request. Exactly one
// implementation exists per Family.
type Params interface {
	Family() Family
}

// GeminiParams shape a request to the Gemini image models.
type GeminiParams struct {
	AspectRatio string
	ImageSize   string
}

func (GeminiParams) Family() Family { return FamilyGemini }

// OpenAIParams shape a request to the OpenAI image models.
type OpenAIParams struct {
	Size       string
	Quality    string
	Background string
	Format     OutputFormat
}

func (OpenAIParams) Family() Family { return FamilyOpenAI }

func (p OpenAIParams) Transparent() bool {
	return p.Background == BackgroundTransparent
}

// DefaultParams returns the zero parameters for a family.
func DefaultParams(f Family) Params {
	if f == FamilyOpenAI {
		return OpenAIParams{Format: FormatPNG}
	}
	return GeminiParams{}
}

type Request struct {
	Prompt string
	Mode   Mode
	Model  *ModelCapabilities
	Inputs []string
	Params Params
}

// NewRequest builds a request and validates it against the model. A nil
// params value is replaced with the defaults for the model's family.
func NewRequest(prompt string, mode Mode, model *ModelCapabilities, inputs []string, params Params) (*Request, error) {
	if model == nil {
		return nil, ErrUnknownModel
	}
	if mode == "" {
		mode = ModeGenerate
	}
	if params == nil {
		params = DefaultParams(model.Family)
	}

	req := &Request{
		Prompt: strings.TrimSpace(prompt),
		Mode:   mode,
		Model:  model,
		Inputs: inputs,
		Params: params,
	}
	if err := model.Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

type Response struct {
	Images        []GeneratedImage
	RevisedPrompt string
	Text          string
}

type GeneratedImage struct {
	Data     []byte
	URL      string
	MIMEType string
	Index    int
}

type ModelCapabilities struct {
	Alias       string
	ID          string
	Family      Family
	Description string

	// OpenAI family
	SupportedSizes     []string
	SupportedQualities []string

	// Gemini family
	AspectRatios []string
	ImageSizes   []string

	MaxInputs            int
	SupportsTransparency bool
	SupportsText         bool
	HighResolution       bool
	Fast                 bool
}

// Traits lists the capability flags that are set, for display.
func (c *ModelCapabilities) Traits() []string {
	var traits []string
	if c.Fast {
		traits = append(traits, "fast")
	}
	if c.HighResolution {
		traits = append(traits, "high-res")
	}
	if c.SupportsText {
		traits = append(traits, "text")
	}
	if c.SupportsTransparency {
		traits = append(traits, "transparency")
	}
	return traits
}

func (c *ModelCapabilities) Validate(req *Request) error {
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}

	if req.Params == nil || req.Params.Family() != c.Family {
		return fmt.Errorf("%w: %s expects %s parameters", ErrParamsMismatch, c.Alias, c.Family)
	}

	if req.Mode == ModeEdit {
		if len(req.Inputs) == 0 {
			return ErrNoInputImage
		}
		if len(req.Inputs) > c.MaxInputs {
			return fmt.Errorf("%w: %s accepts %d, got %d", ErrTooManyInputs, c.Alias, c.MaxInputs, len(req.Inputs))
		}
	}

	switch p := req.Params.(type) {
	case GeminiParams:
		if p.AspectRatio != "" && !slices.Contains(c.AspectRatios, p.AspectRatio) {
			return fmt.Errorf("%w: %q not in %v", ErrInvalidAspectRatio, p.AspectRatio, c.AspectRatios)
		}
		if p.ImageSize != "" && !slices.Contains(c.ImageSizes, p.ImageSize) {
			if len(c.ImageSizes) == 0 {
				return fmt.Errorf("%w: %s has a fixed output size", ErrInvalidImageSize, c.Alias)
			}
			return fmt.Errorf("%w: %q not in %v", ErrInvalidImageSize, p.ImageSize, c.ImageSizes)
		}
	case OpenAIParams:
		if p.Size != "" && !slices.Contains(c.SupportedSizes, p.Size) {
			return fmt.Errorf("%w: %q not in %v", ErrInvalidSize, p.Size, c.SupportedSizes)
		}
		if p.Quality != "" && len(c.SupportedQualities) > 0 && !slices.Contains(c.SupportedQualities, p.Quality) {
			return fmt.Errorf("%w: %q not in %v", ErrInvalidQuality, p.Quality, c.SupportedQualities)
		}
		if p.Transparent() && !c.SupportsTransparency {
			return ErrTransparencyNotSupported
		}
		if p.Transparent() && p.Format != "" && p.Format != FormatPNG && p.Format != FormatWebP {
			return ErrInvalidTransparencyFormat
		}
	}

	return nil
}

type ModelRegistry struct {
	models []*ModelCapabilities
	byName map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		byName: make(map[string]*ModelCapabilities),
	}
}

// Register adds a model under both its alias and its API id.
func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models = append(r.models, cap)
	r.byName[strings.ToLower(cap.Alias)] = cap
	if cap.ID != "" {
		r.byName[strings.ToLower(cap.ID)] = cap
	}
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return cap, ok
}

// Resolve is Get with an error that names the known aliases.
func (r *ModelRegistry) Resolve(name string) (*ModelCapabilities, error) {
	cap, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q: available models: %s", ErrUnknownModel, name, strings.Join(r.List(), ", "))
	}
	return cap, nil
}

// List returns aliases in registration order.
func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for _, m := range r.models {
		names = append(names, m.Alias)
	}
	return names
}

func (r *ModelRegistry) All() []*ModelCapabilities {
	return slices.Clone(r.models)
}

// Fastest returns the first model of the family flagged Fast.
func (r *ModelRegistry) Fastest(family Family) (*ModelCapabilities, bool) {
	for _, m := range r.models {
		if m.Family == family && m.Fast {
			return m, true
		}
	}
	return nil, false
}

const (
	AliasNanoBanana    = "nano-banana"
	AliasNanoBananaPro = "nano-banana-pro"
	AliasGPTImage      = "gpt-image"
	AliasGPTImage15    = "gpt-image-1.5"
	AliasGPTImageMini  = "gpt-image-mini"

	// DefaultModel is used when neither flags nor prompt select one.
	DefaultModel = AliasNanoBananaPro
)

var (
	openAISizes     = []string{"1024x1024", "1536x1024", "1024x1536", "auto"}
	openAIQualities = []string{"auto", "low", "medium", "high"}
	geminiRatios    = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}
)

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Alias:        AliasNanoBanana,
		ID:           "google/gemini-2.5-flash-image-preview",
		Family:       FamilyGemini,
		Description:  "Gemini 2.5 Flash Image, fast drafts and iteration",
		AspectRatios: geminiRatios,
		MaxInputs:    3,
		Fast:         true,
	})

	r.Register(&ModelCapabilities{
		Alias:          AliasNanoBananaPro,
		ID:             "google/gemini-3-pro-image-preview",
		Family:         FamilyGemini,
		Description:    "Gemini 3 Pro Image, up to 4K output",
		AspectRatios:   geminiRatios,
		ImageSizes:     []string{"1K", "2K", "4K"},
		MaxInputs:      14,
		SupportsText:   true,
		HighResolution: true,
	})

	r.Register(&ModelCapabilities{
		Alias:                AliasGPTImage,
		ID:                   "gpt-image-1",
		Family:               FamilyOpenAI,
		Description:          "OpenAI GPT Image 1",
		SupportedSizes:       openAISizes,
		SupportedQualities:   openAIQualities,
		MaxInputs:            1,
		SupportsTransparency: true,
	})

	r.Register(&ModelCapabilities{
		Alias:                AliasGPTImage15,
		ID:                   "gpt-image-1.5",
		Family:               FamilyOpenAI,
		Description:          "OpenAI GPT Image 1.5, best text rendering",
		SupportedSizes:       openAISizes,
		SupportedQualities:   openAIQualities,
		MaxInputs:            1,
		SupportsTransparency: true,
		SupportsText:         true,
	})

	r.Register(&ModelCapabilities{
		Alias:                AliasGPTImageMini,
		ID:                   "gpt-image-1-mini",
		Family:               FamilyOpenAI,
		Description:          "OpenAI GPT Image 1 Mini, fastest and cheapest",
		SupportedSizes:       openAISizes,
		SupportedQualities:   openAIQualities,
		MaxInputs:            1,
		SupportsTransparency: true,
		Fast:                 true,
	})

	return r
}
