package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidBasename   = fmt.Errorf("basename must be a plain file name")
	ErrReservedName      = fmt.Errorf("reserved filename not allowed")
	ErrUnsupportedInput  = fmt.Errorf("unsupported input image type")
	ErrInputTooLarge     = fmt.Errorf("input image is too large")
	ErrInputNotRegular   = fmt.Errorf("input image is not a regular file")
	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}

	// InputMIMETypes maps accepted edit input extensions to MIME types.
	InputMIMETypes = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".webp": "image/webp",
	}
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}

// MaxInputBytes is the largest source image either backend accepts.
const MaxInputBytes = 50 << 20

// ValidateBasename rejects names that would escape the output directory
// or collide with device names.
func ValidateBasename(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidBasename
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return ErrInvalidBasename
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: cannot start with hyphen", ErrInvalidBasename)
	}
	if windowsReservedNames[strings.ToLower(name)] {
		return ErrReservedName
	}
	return nil
}

// SanitizeBasename turns free text into a basename: unsafe characters are
// dropped, separators and whitespace become hyphens, and an image extension is
// stripped since the saved extension follows the returned image type.
func SanitizeBasename(name string) string {
	if ext := strings.ToLower(filepath.Ext(name)); imageExts[ext] {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", " ", "-", "\t", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(strings.TrimSpace(name))
	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}
	for strings.Contains(sanitized, "..") {
		sanitized = strings.ReplaceAll(sanitized, "..", ".")
	}
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ".- ")

	if windowsReservedNames[strings.ToLower(sanitized)] {
		sanitized = sanitized + "_"
	}

	if sanitized == "" {
		sanitized = "gen"
	}

	return sanitized
}

// InputMIMEType returns the MIME type for an edit input by extension.
func InputMIMEType(path string) (string, error) {
	mime, ok := InputMIMETypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: %s (want png, jpeg or webp)", ErrUnsupportedInput, filepath.Base(path))
	}
	return mime, nil
}

// ValidateInputImage checks that path is a regular, supported, reasonably
// sized image before it is read into memory.
func ValidateInputImage(path string) error {
	if _, err := InputMIMEType(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrInputNotRegular, path)
	}
	if info.Size() > MaxInputBytes {
		return fmt.Errorf("%w: %s is %d bytes", ErrInputTooLarge, path, info.Size())
	}
	return nil
}
