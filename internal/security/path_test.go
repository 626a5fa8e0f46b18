package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateBasename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain", "cabin", nil},
		{"with dots inside", "cabin.v2", nil},
		{"empty", "", ErrInvalidBasename},
		{"dot", ".", ErrInvalidBasename},
		{"slash", "a/b", ErrInvalidBasename},
		{"backslash", `a\b`, ErrInvalidBasename},
		{"traversal", "..cabin", ErrInvalidBasename},
		{"leading hyphen", "-rf", ErrInvalidBasename},
		{"reserved", "NUL", ErrReservedName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBasename(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateBasename(%q) error = %v, want nil", tt.input, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBasename(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeBasename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal", "cabin", "cabin"},
		{"extension stripped", "cabin.png", "cabin"},
		{"spaces become hyphens", "red  cabin  woods", "red-cabin-woods"},
		{"slashes", "foo/bar", "foo-bar"},
		{"leading dots removed", "..hidden", "hidden"},
		{"leading hyphens removed", "--flag", "flag"},
		{"special characters removed", "file<name>:with*bad?chars", "filename-withbadchars"},
		{"reserved name gets underscore", "CON", "CON_"},
		{"empty becomes gen", "...", "gen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeBasename(tt.input); got != tt.expected {
				t.Errorf("SanitizeBasename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if err := ValidateBasename(SanitizeBasename(tt.input)); err != nil {
				t.Errorf("ValidateBasename(SanitizeBasename(%q)) error = %v", tt.input, err)
			}
		})
	}
}

func TestInputMIMEType(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"a.png", "image/png", false},
		{"a.JPG", "image/jpeg", false},
		{"a.jpeg", "image/jpeg", false},
		{"a.webp", "image/webp", false},
		{"a.gif", "", true},
		{"noext", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := InputMIMEType(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InputMIMEType(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("InputMIMEType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestValidateInputImage(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "cabin.png")
	if err := os.WriteFile(good, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateInputImage(good); err != nil {
		t.Errorf("ValidateInputImage(good) error = %v", err)
	}
	if err := ValidateInputImage(filepath.Join(dir, "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ValidateInputImage(missing) error = %v, want not exist", err)
	}
	if err := ValidateInputImage(filepath.Join(dir, "notes.txt")); !errors.Is(err, ErrUnsupportedInput) {
		t.Errorf("ValidateInputImage(txt) error = %v, want %v", err, ErrUnsupportedInput)
	}

	sub := filepath.Join(dir, "folder.png")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := ValidateInputImage(sub); !errors.Is(err, ErrInputNotRegular) {
		t.Errorf("ValidateInputImage(dir) error = %v, want %v", err, ErrInputNotRegular)
	}
}
