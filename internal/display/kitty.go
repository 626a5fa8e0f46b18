package display

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes images using the kitty graphics protocol. The
// protocol's direct format only accepts PNG, so JPEG input is re-encoded.
type KittyEncoder struct {
	out io.Writer
	// Columns caps the displayed width in terminal cells. Zero leaves
	// sizing to the terminal.
	Columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	pngData, err := toPNG(data)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(pngData)
	chunks := splitIntoChunks(encoded, chunkSize)

	for i, chunk := range chunks {
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, e.controlData(i, len(chunks)), chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

// controlData returns the key=value header for chunk i of n. Only the first
// chunk carries the transmit action; m=1 marks that more chunks follow.
func (e *KittyEncoder) controlData(i, n int) string {
	more := "m=0"
	if i < n-1 {
		more = "m=1"
	}
	if i > 0 {
		return more
	}

	keys := []string{"a=T", "f=100", "q=2"}
	if e.Columns > 0 {
		keys = append(keys, fmt.Sprintf("c=%d", e.Columns))
	}
	if n > 1 {
		keys = append(keys, more)
	}
	return strings.Join(keys, ",")
}

func toPNG(data []byte) ([]byte, error) {
	switch http.DetectContentType(data) {
	case "image/png":
		return data, nil
	case "image/jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode jpeg: %w", err)
		}
		return encodePNG(img)
	case "image/webp":
		return nil, ErrUnsupportedFormat
	default:
		// Unknown payloads go through untouched and the terminal decides.
		return data, nil
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		if len(s) < size {
			size = len(s)
		}
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return chunks
}
