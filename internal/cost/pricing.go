package cost

import (
	"cmp"
	"slices"
)

// Image generation pricing (USD per image).
// OpenAI: https://openai.com/api/pricing/
// Gemini: https://ai.google.dev/gemini-api/docs/pricing

type PricingKey struct {
	Model string
	// Tier is "<quality>-<size>" for OpenAI models and the image size
	// (1K, 2K, 4K) for Gemini models.
	Tier string
}

var builtinPricing = map[PricingKey]float64{
	{Model: "gpt-image-1", Tier: "low-1024x1024"}:    0.011,
	{Model: "gpt-image-1", Tier: "medium-1024x1024"}: 0.042,
	{Model: "gpt-image-1", Tier: "high-1024x1024"}:   0.167,
	{Model: "gpt-image-1", Tier: "low-1536x1024"}:    0.016,
	{Model: "gpt-image-1", Tier: "medium-1536x1024"}: 0.063,
	{Model: "gpt-image-1", Tier: "high-1536x1024"}:   0.250,
	{Model: "gpt-image-1", Tier: "low-1024x1536"}:    0.016,
	{Model: "gpt-image-1", Tier: "medium-1024x1536"}: 0.063,
	{Model: "gpt-image-1", Tier: "high-1024x1536"}:   0.250,

	{Model: "gpt-image-1.5", Tier: "low-1024x1024"}:    0.011,
	{Model: "gpt-image-1.5", Tier: "medium-1024x1024"}: 0.042,
	{Model: "gpt-image-1.5", Tier: "high-1024x1024"}:   0.167,
	{Model: "gpt-image-1.5", Tier: "low-1536x1024"}:    0.016,
	{Model: "gpt-image-1.5", Tier: "medium-1536x1024"}: 0.063,
	{Model: "gpt-image-1.5", Tier: "high-1536x1024"}:   0.250,
	{Model: "gpt-image-1.5", Tier: "low-1024x1536"}:    0.016,
	{Model: "gpt-image-1.5", Tier: "medium-1024x1536"}: 0.063,
	{Model: "gpt-image-1.5", Tier: "high-1024x1536"}:   0.250,

	{Model: "gpt-image-1-mini", Tier: "low-1024x1024"}:    0.005,
	{Model: "gpt-image-1-mini", Tier: "medium-1024x1024"}: 0.011,
	{Model: "gpt-image-1-mini", Tier: "high-1024x1024"}:   0.036,
	{Model: "gpt-image-1-mini", Tier: "low-1536x1024"}:    0.006,
	{Model: "gpt-image-1-mini", Tier: "medium-1536x1024"}: 0.015,
	{Model: "gpt-image-1-mini", Tier: "high-1536x1024"}:   0.052,
	{Model: "gpt-image-1-mini", Tier: "low-1024x1536"}:    0.006,
	{Model: "gpt-image-1-mini", Tier: "medium-1024x1536"}: 0.015,
	{Model: "gpt-image-1-mini", Tier: "high-1024x1536"}:   0.052,

	// fixed output size
	{Model: "google/gemini-2.5-flash-image-preview", Tier: "1K"}: 0.039,

	{Model: "google/gemini-3-pro-image-preview", Tier: "1K"}: 0.134,
	{Model: "google/gemini-3-pro-image-preview", Tier: "2K"}: 0.134,
	{Model: "google/gemini-3-pro-image-preview", Tier: "4K"}: 0.240,
}

func GetBuiltinPrice(model, tier string) (float64, bool) {
	price, ok := builtinPricing[PricingKey{Model: model, Tier: tier}]
	return price, ok
}

type Price struct {
	PricingKey
	PerImage float64
}

// BuiltinPrices lists the built-in table ordered by model and tier.
func BuiltinPrices() []Price {
	prices := make([]Price, 0, len(builtinPricing))
	for k, v := range builtinPricing {
		prices = append(prices, Price{PricingKey: k, PerImage: v})
	}
	slices.SortFunc(prices, func(a, b Price) int {
		return cmp.Or(cmp.Compare(a.Model, b.Model), cmp.Compare(a.Tier, b.Tier))
	})
	return prices
}
