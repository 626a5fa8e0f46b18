package cost

import (
	"strings"

	"github.com/manash/image-gen/pkg/models"
)

const (
	CurrencyUSD = "USD"

	defaultOpenAISize    = "1024x1024"
	defaultOpenAIQuality = "medium"
	defaultGeminiSize    = "1K"
)

// Estimate is the expected charge for a request.
type Estimate struct {
	PerImage float64
	Total    float64
	Currency string
	// Known is false when no price exists for the model and tier.
	Known bool
}

type Calculator struct {
	overrides *Overrides
}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// WithOverrides makes locally recorded prices win over the built-in table.
func (c *Calculator) WithOverrides(o *Overrides) *Calculator {
	c.overrides = o
	return c
}

func (c *Calculator) Estimate(model *models.ModelCapabilities, params models.Params, count int) Estimate {
	if count < 1 {
		count = 1
	}
	est := Estimate{Currency: CurrencyUSD}
	if model == nil {
		return est
	}

	tier := Tier(model.Family, params)
	if price, ok := c.overrides.Get(model.ID, tier); ok {
		est.PerImage, est.Known = price, true
	} else if price, ok := GetBuiltinPrice(model.ID, tier); ok {
		est.PerImage, est.Known = price, true
	}

	est.Total = est.PerImage * float64(count)
	return est
}

// Tier builds the pricing tier for a request. OpenAI "auto" size and
// quality are priced as 1024x1024 at medium quality.
func Tier(family models.Family, params models.Params) string {
	switch p := params.(type) {
	case models.OpenAIParams:
		size := p.Size
		if size == "" || size == "auto" {
			size = defaultOpenAISize
		}
		quality := strings.ToLower(p.Quality)
		if quality == "" || quality == "auto" {
			quality = defaultOpenAIQuality
		}
		return quality + "-" + size
	case models.GeminiParams:
		if p.ImageSize != "" {
			return strings.ToUpper(p.ImageSize)
		}
		return defaultGeminiSize
	}

	if family == models.FamilyOpenAI {
		return defaultOpenAIQuality + "-" + defaultOpenAISize
	}
	return defaultGeminiSize
}
