package cost

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverrides_Missing(t *testing.T) {
	o, err := LoadOverrides(filepath.Join(t.TempDir(), OverridesFile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o != nil {
		t.Errorf("expected nil overrides, got %+v", o)
	}

	if _, ok := o.Get("gpt-image-1", "low-1024x1024"); ok {
		t.Error("nil overrides should report no price")
	}
}

func TestLoadOverrides_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), OverridesFile)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOverrides(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSetPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", OverridesFile)

	if err := SetPrice(path, "gpt-image-1-mini", "low-1024x1024", 0.004); err != nil {
		t.Fatalf("SetPrice() error = %v", err)
	}
	if err := SetPrice(path, "google/gemini-3-pro-image-preview", "4K", 0.3); err != nil {
		t.Fatalf("SetPrice() error = %v", err)
	}

	o, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if o.Source != "manual" {
		t.Errorf("expected source manual, got %q", o.Source)
	}
	if o.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}

	if price, ok := o.Get("gpt-image-1-mini", "low-1024x1024"); !ok || !floatEquals(price, 0.004) {
		t.Errorf("expected 0.004, got %v (ok=%v)", price, ok)
	}
	if price, ok := o.Get("google/gemini-3-pro-image-preview", "4K"); !ok || !floatEquals(price, 0.3) {
		t.Errorf("expected 0.3, got %v (ok=%v)", price, ok)
	}
}

func TestSetPrice_Negative(t *testing.T) {
	path := filepath.Join(t.TempDir(), OverridesFile)
	if err := SetPrice(path, "gpt-image-1", "low-1024x1024", -1); err == nil {
		t.Error("expected error for negative price")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not be written for a rejected price")
	}
}
