package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/manash/image-gen/internal/security"
	"github.com/manash/image-gen/pkg/models"
)

var (
	ErrProviderNotFound = errors.New("provider not configured")
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrNoImage          = errors.New("no image in response")
	ErrContentPolicy    = errors.New("request rejected by content policy")
	ErrWrongFamily      = errors.New("request parameters do not belong to this provider")
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 120 * time.Second

// Provider is one transport for a model family. Generate and Edit receive a
// request whose Params already match Family.
type Provider interface {
	Name() string
	Family() models.Family
	Generate(ctx context.Context, req *models.Request) (*models.Response, error)
	Edit(ctx context.Context, req *models.Request) (*models.Response, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Verbose bool
	// LogOutput receives verbose request dumps. Defaults to stderr.
	LogOutput io.Writer
}

func (c *Config) TimeoutOrDefault() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Config) LogWriter() io.Writer {
	if c.LogOutput != nil {
		return c.LogOutput
	}
	return os.Stderr
}

// Factory holds at most one provider per family.
type Factory struct {
	providers map[models.Family]Provider
}

func NewFactory() *Factory {
	return &Factory{providers: make(map[models.Family]Provider)}
}

func (f *Factory) Register(p Provider) {
	f.providers[p.Family()] = p
}

func (f *Factory) Get(family models.Family) (Provider, error) {
	p, ok := f.providers[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, family)
	}
	return p, nil
}

// Input is a source image loaded for an edit request.
type Input struct {
	Path     string
	Name     string
	MIMEType string
	Data     []byte
}

func (in Input) DataURL() string {
	return "data:" + in.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(in.Data)
}

// LoadInputs reads and checks every edit source.
func LoadInputs(paths []string) ([]Input, error) {
	inputs := make([]Input, 0, len(paths))
	for _, p := range paths {
		if err := security.ValidateInputImage(p); err != nil {
			return nil, err
		}
		mime, err := security.InputMIMEType(p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read input image: %w", err)
		}
		inputs = append(inputs, Input{Path: p, Name: filepath.Base(p), MIMEType: mime, Data: data})
	}
	return inputs, nil
}
