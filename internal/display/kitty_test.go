package display

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestKittyEncoder_Encode_Empty(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)

	if err := enc.Encode([]byte{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty output, got %q", buf.String())
	}
}

func TestKittyEncoder_Encode_PNG(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)

	data := pngBytes(t)
	if err := enc.Encode(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.HasPrefix(output, "\x1b_Ga=T,f=100,q=2;") {
		t.Errorf("unexpected header: %q", output[:min(len(output), 30)])
	}
	if !strings.HasSuffix(output, "\x1b\\") {
		t.Error("output should end with escape terminator")
	}
	if !strings.Contains(output, base64.StdEncoding.EncodeToString(data)) {
		t.Error("png should be transmitted unchanged")
	}
}

func TestKittyEncoder_Encode_Columns(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)
	enc.Columns = 40

	if err := enc.Encode(pngBytes(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "\x1b_Ga=T,f=100,q=2,c=40;") {
		t.Errorf("expected column limit in header, got %q", buf.String()[:30])
	}
}

func TestKittyEncoder_Encode_JPEGConverted(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)

	if err := enc.Encode(jpegBytes(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	payload := output[strings.Index(output, ";")+1 : strings.LastIndex(output, "\x1b\\")]
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(decoded)); err != nil {
		t.Errorf("jpeg should be re-encoded as png: %v", err)
	}
}

func TestKittyEncoder_Encode_WebPRejected(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)

	webp := append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 16)...)
	err := enc.Encode(webp)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written for rejected input")
	}
}

func TestKittyEncoder_Encode_LargeImage(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i % 256)
	}

	if err := enc.Encode(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if n := strings.Count(output, "\x1b_G"); n != 2 {
		t.Errorf("expected 2 chunks, got %d escape sequences", n)
	}
	if !strings.HasPrefix(output, "\x1b_Ga=T,f=100,q=2,m=1;") {
		t.Error("first chunk should carry the transmit header and more flag")
	}
	if !strings.Contains(output, "\x1b_Gm=0;") {
		t.Error("last chunk should carry the final flag only")
	}
}

func TestKittyEncoder_Encode_ExactChunkSize(t *testing.T) {
	var buf bytes.Buffer
	enc := NewKittyEncoder(&buf)

	data := make([]byte, (chunkSize*3)/4)
	if err := enc.Encode(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if n := strings.Count(output, "\x1b_G"); n != 1 {
		t.Errorf("expected single chunk for exact size, got %d", n)
	}
	if strings.Contains(output, "m=") {
		t.Error("single chunk should not carry a more flag")
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		size     int
		expected []string
	}{
		{"empty string", "", 10, nil},
		{"smaller than chunk", "hello", 10, []string{"hello"}},
		{"exact chunk size", "hello", 5, []string{"hello"}},
		{"multiple chunks", "hello world", 5, []string{"hello", " worl", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitIntoChunks(tt.input, tt.size)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d chunks, got %d", len(tt.expected), len(result))
			}
			for i, chunk := range result {
				if chunk != tt.expected[i] {
					t.Errorf("chunk %d: expected %q, got %q", i, tt.expected[i], chunk)
				}
			}
		})
	}
}

func TestKittyEncoder_WriteError(t *testing.T) {
	enc := NewKittyEncoder(&errorWriter{err: bytes.ErrTooLarge})

	if err := enc.Encode([]byte("test")); err == nil {
		t.Error("expected error from failing writer")
	}
}

type errorWriter struct {
	err error
}

func (w *errorWriter) Write(p []byte) (int, error) {
	return 0, w.err
}
