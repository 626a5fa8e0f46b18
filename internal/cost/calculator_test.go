package cost

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/manash/image-gen/pkg/models"
)

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 0.0001
}

func mustModel(t *testing.T, alias string) *models.ModelCapabilities {
	t.Helper()
	m, ok := models.DefaultRegistry().Get(alias)
	if !ok {
		t.Fatalf("model %s not registered", alias)
	}
	return m
}

func TestCalculator_Estimate_GPTImage(t *testing.T) {
	calc := NewCalculator()
	model := mustModel(t, models.AliasGPTImage)

	tests := []struct {
		name     string
		size     string
		quality  string
		count    int
		expected float64
	}{
		{"1024x1024 low", "1024x1024", "low", 1, 0.011},
		{"1024x1024 medium", "1024x1024", "medium", 1, 0.042},
		{"1024x1024 high", "1024x1024", "high", 1, 0.167},
		{"1024x1024 auto", "1024x1024", "auto", 1, 0.042},
		{"1536x1024 high", "1536x1024", "high", 1, 0.250},
		{"1536x1024 auto", "1536x1024", "auto", 1, 0.063},
		{"1024x1536 low", "1024x1536", "low", 1, 0.016},
		{"auto auto", "auto", "auto", 1, 0.042},
		{"empty", "", "", 1, 0.042},
		{"multiple images", "1024x1024", "low", 3, 0.033},
		{"10 images high", "1024x1024", "high", 10, 1.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := models.OpenAIParams{Size: tt.size, Quality: tt.quality}
			result := calc.Estimate(model, params, tt.count)
			if !floatEquals(result.Total, tt.expected) {
				t.Errorf("expected total %.4f, got %.4f", tt.expected, result.Total)
			}
			if result.Currency != CurrencyUSD {
				t.Errorf("expected currency %s, got %s", CurrencyUSD, result.Currency)
			}
			if !result.Known {
				t.Error("expected known price")
			}
		})
	}
}

func TestCalculator_Estimate_GPTImageMini(t *testing.T) {
	calc := NewCalculator()
	model := mustModel(t, models.AliasGPTImageMini)

	tests := []struct {
		size     string
		quality  string
		expected float64
	}{
		{"1024x1024", "low", 0.005},
		{"1024x1024", "medium", 0.011},
		{"1024x1024", "high", 0.036},
		{"1536x1024", "low", 0.006},
		{"1024x1536", "medium", 0.015},
		{"1536x1024", "high", 0.052},
	}

	for _, tt := range tests {
		t.Run(tt.size+" "+tt.quality, func(t *testing.T) {
			result := calc.Estimate(model, models.OpenAIParams{Size: tt.size, Quality: tt.quality}, 1)
			if !floatEquals(result.PerImage, tt.expected) {
				t.Errorf("expected %.4f, got %.4f", tt.expected, result.PerImage)
			}
		})
	}
}

func TestCalculator_Estimate_Gemini(t *testing.T) {
	calc := NewCalculator()

	tests := []struct {
		name     string
		alias    string
		params   models.Params
		expected float64
	}{
		{"flash default", models.AliasNanoBanana, models.GeminiParams{}, 0.039},
		{"flash with ratio", models.AliasNanoBanana, models.GeminiParams{AspectRatio: "16:9"}, 0.039},
		{"pro default", models.AliasNanoBananaPro, models.GeminiParams{}, 0.134},
		{"pro 2K", models.AliasNanoBananaPro, models.GeminiParams{ImageSize: "2K"}, 0.134},
		{"pro 4K", models.AliasNanoBananaPro, models.GeminiParams{ImageSize: "4K"}, 0.24},
		{"pro lowercase", models.AliasNanoBananaPro, models.GeminiParams{ImageSize: "4k"}, 0.24},
		{"nil params", models.AliasNanoBananaPro, nil, 0.134},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calc.Estimate(mustModel(t, tt.alias), tt.params, 1)
			if !floatEquals(result.Total, tt.expected) {
				t.Errorf("expected %.4f, got %.4f", tt.expected, result.Total)
			}
		})
	}
}

func TestCalculator_Estimate_Unknown(t *testing.T) {
	calc := NewCalculator()

	result := calc.Estimate(nil, nil, 1)
	if result.Known || result.Total != 0 {
		t.Errorf("expected unknown zero estimate, got %+v", result)
	}

	custom := &models.ModelCapabilities{Alias: "custom", ID: "vendor/custom", Family: models.FamilyGemini}
	result = calc.Estimate(custom, models.GeminiParams{}, 2)
	if result.Known {
		t.Error("expected unknown price for unregistered id")
	}
}

func TestCalculator_Estimate_ZeroCount(t *testing.T) {
	result := NewCalculator().Estimate(mustModel(t, models.AliasNanoBanana), models.GeminiParams{}, 0)
	if !floatEquals(result.Total, 0.039) {
		t.Errorf("expected count to floor at 1, got total %.4f", result.Total)
	}
}

func TestCalculator_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), OverridesFile)
	if err := SetPrice(path, "gpt-image-1", "high-1024x1024", 0.2); err != nil {
		t.Fatalf("SetPrice() error = %v", err)
	}

	o, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}

	calc := NewCalculator().WithOverrides(o)
	model := mustModel(t, models.AliasGPTImage)

	got := calc.Estimate(model, models.OpenAIParams{Size: "1024x1024", Quality: "high"}, 2)
	if !floatEquals(got.Total, 0.4) {
		t.Errorf("expected override total 0.4, got %.4f", got.Total)
	}

	got = calc.Estimate(model, models.OpenAIParams{Size: "1024x1024", Quality: "low"}, 1)
	if !floatEquals(got.Total, 0.011) {
		t.Errorf("expected builtin fallback 0.011, got %.4f", got.Total)
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		name     string
		family   models.Family
		params   models.Params
		expected string
	}{
		{"openai explicit", models.FamilyOpenAI, models.OpenAIParams{Size: "1536x1024", Quality: "HIGH"}, "high-1536x1024"},
		{"openai auto", models.FamilyOpenAI, models.OpenAIParams{Size: "auto", Quality: "auto"}, "medium-1024x1024"},
		{"openai nil", models.FamilyOpenAI, nil, "medium-1024x1024"},
		{"gemini size", models.FamilyGemini, models.GeminiParams{ImageSize: "2K"}, "2K"},
		{"gemini nil", models.FamilyGemini, nil, "1K"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tier(tt.family, tt.params); got != tt.expected {
				t.Errorf("Tier() = %q, want %q", got, tt.expected)
			}
		})
	}
}
