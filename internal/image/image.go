package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/manash/image-gen/internal/security"
	"github.com/manash/image-gen/pkg/models"
)

var (
	ErrNoImageData    = errors.New("no image data available")
	ErrInvalidDataURL = errors.New("invalid data URL")
)

const (
	// DefaultBasename prefixes generated files when no name is given.
	DefaultBasename = "gen"
	maxDownloadSize = 50 << 20
	maxCreateTries  = 100
)

var mimeExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

type Saver struct {
	httpClient  *http.Client
	validateURL func(string) error
}

// NewSaver downloads remote results only from the known image hosts.
func NewSaver() *Saver {
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		validateURL: security.NewURLValidator(true).Validate,
	}
}

// WithURLValidator replaces the check run before each download.
func (s *Saver) WithURLValidator(validate func(rawURL string) error) *Saver {
	s.validateURL = validate
	return s
}

// Save writes img into dir as <basename>_NNN.<ext>, where NNN is one more
// than the highest index already present for that basename. Existing files
// are never overwritten. It returns the path written.
func (s *Saver) Save(ctx context.Context, img *models.GeneratedImage, dir, basename string) (string, error) {
	data, mime, err := s.resolve(ctx, img)
	if err != nil {
		return "", err
	}

	if basename == "" {
		basename = DefaultBasename
	}
	if err := security.ValidateBasename(basename); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	ext := Extension(mime, data)
	index, err := NextIndex(dir, basename)
	if err != nil {
		return "", err
	}

	for try := 0; try < maxCreateTries; try++ {
		path := filepath.Join(dir, Filename(basename, index, ext))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			index++
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to write file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close file: %w", err)
		}

		img.MIMEType = mime
		return path, nil
	}
	return "", fmt.Errorf("failed to find a free file name for %s in %s", basename, dir)
}

func (s *Saver) SaveAll(ctx context.Context, resp *models.Response, dir, basename string) ([]string, error) {
	paths := make([]string, 0, len(resp.Images))

	for i := range resp.Images {
		path, err := s.Save(ctx, &resp.Images[i], dir, basename)
		if err != nil {
			return paths, fmt.Errorf("failed to save image %d: %w", i+1, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// resolve returns the image bytes and their MIME type from whichever
// representation the backend produced.
func (s *Saver) resolve(ctx context.Context, img *models.GeneratedImage) ([]byte, string, error) {
	switch {
	case len(img.Data) > 0:
		return img.Data, img.MIMEType, nil
	case strings.HasPrefix(img.URL, "data:"):
		return DecodeDataURL(img.URL)
	case img.URL != "":
		data, mime, err := s.downloadFromURL(ctx, img.URL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to download image: %w", err)
		}
		return data, mime, nil
	default:
		return nil, "", ErrNoImageData
	}
}

func (s *Saver) downloadFromURL(ctx context.Context, url string) ([]byte, string, error) {
	if s.validateURL != nil {
		if err := s.validateURL(url); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, "", err
	}
	mime, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, strings.TrimSpace(mime), nil
}

// DecodeDataURL parses data:<mime>;base64,<payload>. A bare base64 string
// is accepted too and reported with an empty MIME type.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	mime := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", ErrInvalidDataURL
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("%w: payload is not base64", ErrInvalidDataURL)
		}
		mime = strings.TrimSuffix(meta, ";base64")
		payload = rest
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	if len(data) == 0 {
		return nil, "", ErrNoImageData
	}
	return data, mime, nil
}

// Extension picks a file extension from the MIME type, falling back to
// content sniffing and then png.
func Extension(mime string, data []byte) string {
	if ext, ok := mimeExtensions[strings.ToLower(mime)]; ok {
		return ext
	}
	if len(data) > 0 {
		sniffed, _, _ := strings.Cut(http.DetectContentType(data), ";")
		if ext, ok := mimeExtensions[sniffed]; ok {
			return ext
		}
	}
	return string(models.FormatPNG)
}

func Filename(basename string, index int, ext string) string {
	return fmt.Sprintf("%s_%03d.%s", basename, index, ext)
}

// NextIndex returns one more than the highest <basename>_NNN index in dir,
// across all extensions. A missing directory yields 1.
func NextIndex(dir, basename string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	re := regexp.MustCompile(`^` + regexp.QuoteMeta(basename) + `_(\d{3,})\.[A-Za-z0-9]+$`)
	highest := 0
	for _, e := range entries {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
