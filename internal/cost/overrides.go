package cost

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// OverridesFile is the name of the local price file in the config directory.
const OverridesFile = "pricing.json"

// Overrides are prices recorded locally with `cost set-price`, keyed by
// model API id and tier.
type Overrides struct {
	UpdatedAt time.Time                     `json:"updated_at"`
	Source    string                        `json:"source"`
	Image     map[string]map[string]float64 `json:"image"`
}

// Get is safe on a nil receiver.
func (o *Overrides) Get(model, tier string) (float64, bool) {
	if o == nil {
		return 0, false
	}
	price, ok := o.Image[model][tier]
	return price, ok
}

func (o *Overrides) Set(model, tier string, price float64) {
	if o.Image == nil {
		o.Image = make(map[string]map[string]float64)
	}
	if o.Image[model] == nil {
		o.Image[model] = make(map[string]float64)
	}
	o.Image[model][tier] = price
	o.UpdatedAt = time.Now().UTC()
	o.Source = "manual"
}

// LoadOverrides reads the price file. A missing file yields nil, nil.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing overrides: %w", err)
	}

	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse pricing overrides: %w", err)
	}
	return &o, nil
}

func SaveOverrides(path string, o *Overrides) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pricing overrides: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pricing overrides: %w", err)
	}
	return nil
}

// SetPrice records one price in the file at path.
func SetPrice(path, model, tier string, price float64) error {
	if price < 0 {
		return fmt.Errorf("price cannot be negative: %v", price)
	}
	o, err := LoadOverrides(path)
	if err != nil {
		return err
	}
	if o == nil {
		o = &Overrides{}
	}
	o.Set(model, tier, price)
	return SaveOverrides(path, o)
}
