// Package display previews saved images inline in terminals that speak the
// kitty graphics protocol.
package display

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/manash/image-gen/pkg/models"
)

var (
	ErrUnsupportedTerminal = errors.New("terminal does not support inline images")
	ErrUnsupportedFormat   = errors.New("image format cannot be shown inline")
)

var supportedPrograms = []string{"kitty", "ghostty", "wezterm"}

type Displayer struct {
	out     io.Writer
	encoder *KittyEncoder
}

func New(out io.Writer) *Displayer {
	return &Displayer{out: out, encoder: NewKittyEncoder(out)}
}

// WithColumns limits the preview width in terminal cells.
func (d *Displayer) WithColumns(cols int) *Displayer {
	d.encoder.Columns = cols
	return d
}

func (d *Displayer) Show(img *models.GeneratedImage) error {
	if len(img.Data) == 0 {
		return fmt.Errorf("image has no data")
	}
	if err := d.encoder.Encode(img.Data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	return nil
}

// ShowFiles previews each saved file in order and stops at the first error.
func (d *Displayer) ShowFiles(paths ...string) error {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		if err := d.Show(&models.GeneratedImage{Data: data}); err != nil {
			return fmt.Errorf("failed to display %s: %w", p, err)
		}
	}
	return nil
}

// Supported reports whether f is an interactive terminal known to render
// kitty graphics.
func Supported(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && IsKittyTerminal(os.Getenv)
}

func IsKittyTerminal(getenv func(string) string) bool {
	termProgram := strings.ToLower(getenv("TERM_PROGRAM"))
	for _, prog := range supportedPrograms {
		if termProgram == prog {
			return true
		}
	}

	if getenv("KITTY_WINDOW_ID") != "" {
		return true
	}

	t := strings.ToLower(getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
