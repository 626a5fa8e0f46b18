// Package selector picks one image model from explicit flags and the prompt
// text. Rules are evaluated top to bottom and the first match wins.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/pkg/models"
)

// ModelAuto is accepted by --model and means "let the rules decide".
const ModelAuto = "auto"

// Overrides are the explicit CLI inputs that take precedence over the prompt.
type Overrides struct {
	Model       string
	Transparent bool
	Fast        bool
	// Family is the backend family implied by family-specific parameter
	// flags (--size, --aspect-ratio, --image-size). It scopes --fast.
	Family models.Family
	// HighRes is set when the caller asked for the 4K size tier.
	HighRes bool
}

type Selection struct {
	Model *models.ModelCapabilities
	Rule  string
}

func (s Selection) Family() models.Family {
	return s.Model.Family
}

// Rule is one (predicate, outcome) pair.
type Rule struct {
	Name  string
	Match func(prompt string, o Overrides) bool
	Pick  func(s *Selector, prompt string, o Overrides) (*models.ModelCapabilities, error)
}

// KeywordSet matches whole words or phrases, case-insensitively. A plural
// "s" or "es" suffix also matches.
type KeywordSet struct {
	Words []string
	re    *regexp.Regexp
}

func NewKeywordSet(words ...string) *KeywordSet {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(w)), " ", `\s+`)
	}
	return &KeywordSet{
		Words: words,
		re:    regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)(?:e?s)?\b`),
	}
}

func (k *KeywordSet) Match(text string) bool {
	return k.re.MatchString(text)
}

var (
	TransparencyKeywords = NewKeywordSet(
		"transparent", "transparency", "png with alpha", "alpha channel",
		"no background", "remove background", "cutout", "isolated on", "clear background",
	)
	TextKeywords = NewKeywordSet(
		"text", "typography", "lettering", "words", "title", "heading",
		"sign", "logo", "banner", "quote", "writing", "caption",
	)
	HighResKeywords = NewKeywordSet(
		"4k", "high res", "high-res", "high resolution", "detailed",
		"print quality", "large format", "poster", "wallpaper",
	)
	DraftKeywords = NewKeywordSet(
		"quick", "draft", "rough", "sketch", "fast", "test",
	)
)

type Selector struct {
	registry *models.ModelRegistry
	rules    []Rule
}

func New(registry *models.ModelRegistry) *Selector {
	return &Selector{registry: registry, rules: DefaultRules()}
}

// NewWithRules is used by tests that exercise a rule list in isolation.
func NewWithRules(registry *models.ModelRegistry, rules []Rule) *Selector {
	return &Selector{registry: registry, rules: rules}
}

// Select returns exactly one model. It has no side effects.
func (s *Selector) Select(prompt string, o Overrides) (Selection, error) {
	for _, r := range s.rules {
		if !r.Match(prompt, o) {
			continue
		}
		m, err := r.Pick(s, prompt, o)
		if err != nil {
			return Selection{}, err
		}
		return Selection{Model: m, Rule: r.Name}, nil
	}
	return Selection{}, fmt.Errorf("no selection rule matched")
}

func (s *Selector) fixed(alias string) (*models.ModelCapabilities, error) {
	m, err := s.registry.Resolve(alias)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "select model", err)
	}
	return m, nil
}

// heuristic runs only the prompt rules, ignoring flags.
func (s *Selector) heuristic(prompt string) (*models.ModelCapabilities, error) {
	for _, r := range s.rules {
		if !strings.HasPrefix(r.Name, "prompt:") && r.Name != RuleDefault {
			continue
		}
		if r.Match(prompt, Overrides{}) {
			return r.Pick(s, prompt, Overrides{})
		}
	}
	return s.fixed(models.DefaultModel)
}

const (
	RuleModel        = "flag:model"
	RuleTransparent  = "flag:transparent"
	RuleFast         = "flag:fast"
	RuleTransparency = "prompt:transparency"
	RuleText         = "prompt:text"
	RuleHighRes      = "prompt:high-res"
	RuleDraft        = "prompt:draft"
	RuleDefault      = "default"
)

// choice is the model a rule picks. When parameter flags pin a family the
// rule picks within it instead, and a family it has no model for is a
// validation error naming what the prompt asked for.
type choice struct {
	preferred string
	within    map[models.Family]string
	need      string
}

var (
	transparencyChoice = choice{
		preferred: models.AliasGPTImage15,
		need:      "a transparent background",
	}
	textChoice = choice{
		preferred: models.AliasGPTImage15,
		within:    map[models.Family]string{models.FamilyGemini: models.AliasNanoBananaPro},
		need:      "rendered text",
	}
	highResChoice = choice{
		preferred: models.AliasNanoBananaPro,
		within:    map[models.Family]string{models.FamilyOpenAI: models.AliasGPTImage15},
		need:      "high resolution",
	}
	draftChoice = choice{
		preferred: models.AliasNanoBanana,
		within:    map[models.Family]string{models.FamilyOpenAI: models.AliasGPTImageMini},
		need:      "a quick draft",
	}
	defaultChoice = choice{
		preferred: models.DefaultModel,
		within:    map[models.Family]string{models.FamilyOpenAI: models.AliasGPTImage},
	}
)

func (s *Selector) choose(c choice, o Overrides) (*models.ModelCapabilities, error) {
	m, err := s.fixed(c.preferred)
	if err != nil || o.Family == "" || m.Family == o.Family {
		return m, err
	}
	alias, ok := c.within[o.Family]
	if !ok {
		return nil, apperr.Validation("the prompt asks for %s, which only the %s family offers, but the parameter flags select %s",
			c.need, m.Family, o.Family)
	}
	return s.fixed(alias)
}

func keywordRule(name string, set *KeywordSet, c choice) Rule {
	return Rule{
		Name:  name,
		Match: func(prompt string, _ Overrides) bool { return set.Match(prompt) },
		Pick: func(s *Selector, _ string, o Overrides) (*models.ModelCapabilities, error) {
			return s.choose(c, o)
		},
	}
}

// DefaultRules is the precedence order: --model, --transparent, --fast,
// then transparency, text, high-res and draft keywords, then the default.
// Prompt rules stay within the family implied by parameter flags.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: RuleModel,
			Match: func(_ string, o Overrides) bool {
				m := strings.TrimSpace(o.Model)
				return m != "" && !strings.EqualFold(m, ModelAuto)
			},
			Pick: func(s *Selector, _ string, o Overrides) (*models.ModelCapabilities, error) {
				return s.fixed(o.Model)
			},
		},
		{
			Name:  RuleTransparent,
			Match: func(_ string, o Overrides) bool { return o.Transparent },
			Pick: func(s *Selector, _ string, o Overrides) (*models.ModelCapabilities, error) {
				return s.choose(transparencyChoice, o)
			},
		},
		{
			Name:  RuleFast,
			Match: func(_ string, o Overrides) bool { return o.Fast },
			Pick: func(s *Selector, prompt string, o Overrides) (*models.ModelCapabilities, error) {
				family := o.Family
				if family == "" {
					m, err := s.heuristic(prompt)
					if err != nil {
						return nil, err
					}
					family = m.Family
				}
				m, ok := s.registry.Fastest(family)
				if !ok {
					return nil, apperr.Validation("no fast model registered for %s", family)
				}
				return m, nil
			},
		},
		keywordRule(RuleTransparency, TransparencyKeywords, transparencyChoice),
		keywordRule(RuleText, TextKeywords, textChoice),
		{
			Name: RuleHighRes,
			Match: func(prompt string, o Overrides) bool {
				return o.HighRes || HighResKeywords.Match(prompt)
			},
			Pick: func(s *Selector, _ string, o Overrides) (*models.ModelCapabilities, error) {
				return s.choose(highResChoice, o)
			},
		},
		keywordRule(RuleDraft, DraftKeywords, draftChoice),
		{
			Name:  RuleDefault,
			Match: func(string, Overrides) bool { return true },
			Pick: func(s *Selector, _ string, o Overrides) (*models.ModelCapabilities, error) {
				return s.choose(defaultChoice, o)
			},
		},
	}
}
