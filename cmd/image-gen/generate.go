package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/config"
	"github.com/manash/image-gen/internal/cost"
	"github.com/manash/image-gen/internal/keys"
	"github.com/manash/image-gen/internal/ledger"
	"github.com/manash/image-gen/internal/provider"
	"github.com/manash/image-gen/internal/provider/gemini"
	"github.com/manash/image-gen/internal/provider/openai"
	"github.com/manash/image-gen/internal/provider/openrouter"
	"github.com/manash/image-gen/internal/security"
	"github.com/manash/image-gen/internal/selector"
	"github.com/manash/image-gen/internal/session"
	"github.com/manash/image-gen/pkg/models"
)

type genOptions struct {
	model       string
	transparent bool
	fast        bool

	aspectRatio string
	imageSize   string

	size    string
	quality string
	format  string

	output string
	name   string
	show   bool

	inputs []string
}

func addGenerateFlags(cmd *cobra.Command, o *genOptions) {
	f := cmd.Flags()
	f.StringVarP(&o.model, "model", "m", "", "model alias or API id (default: chosen from the prompt)")
	f.BoolVar(&o.transparent, "transparent", false, "transparent background (selects a transparency-capable model)")
	f.BoolVar(&o.fast, "fast", false, "use the fastest model of the relevant family")
	f.StringVar(&o.aspectRatio, "aspect-ratio", "", "aspect ratio for Gemini models (e.g. 16:9)")
	f.StringVar(&o.imageSize, "image-size", "", "size tier for Gemini models (1K, 2K, 4K)")
	f.StringVar(&o.size, "size", "", "pixel size for OpenAI models (1024x1024, 1536x1024, 1024x1536, auto)")
	f.StringVar(&o.quality, "quality", "", "quality for OpenAI models (low, medium, high, auto)")
	f.StringVar(&o.format, "format", "", "output format for OpenAI models (png, jpeg, webp)")
	f.StringVarP(&o.output, "output", "o", "", "output directory (remembered for this project)")
	f.StringVarP(&o.name, "name", "n", "", "file basename; files are named <name>_NNN.<ext>")
	f.BoolVar(&o.show, "show", false, "preview the result inline (kitty graphics protocol)")
}

func promptArgs(_ *cobra.Command, args []string) error {
	if len(args) == 0 || strings.TrimSpace(strings.Join(args, " ")) == "" {
		return apperr.Validation("a prompt is required")
	}
	return nil
}

func newGenerateCmd(app *App) *cobra.Command {
	o := &genOptions{}
	cmd := &cobra.Command{
		Use:     "generate <prompt>",
		Aliases: []string{"gen", "g"},
		Short:   "Generate a new image from a prompt",
		Args:    promptArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, app, models.ModeGenerate, strings.Join(args, " "), o)
		},
	}
	addGenerateFlags(cmd, o)
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	o := &genOptions{}
	cmd := &cobra.Command{
		Use:     "edit <prompt>",
		Aliases: []string{"e"},
		Short:   "Edit the current image, or the images given with --input",
		Args:    promptArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, app, models.ModeEdit, strings.Join(args, " "), o)
		},
	}
	addGenerateFlags(cmd, o)
	cmd.Flags().StringArrayVarP(&o.inputs, "input", "i", nil, "source image (repeatable; default: the session's current image)")
	return cmd
}

// paramFamily is the family implied by family-specific flags, if any.
func (o *genOptions) paramFamily() (models.Family, error) {
	openAISet := o.size != "" || o.quality != "" || o.format != ""
	geminiSet := o.aspectRatio != "" || o.imageSize != ""
	switch {
	case openAISet && geminiSet:
		return "", apperr.Validation("--size/--quality/--format cannot be combined with --aspect-ratio/--image-size")
	case openAISet:
		return models.FamilyOpenAI, nil
	case geminiSet:
		return models.FamilyGemini, nil
	}
	return "", nil
}

// params builds the family-specific parameters for m. A transparency
// keyword in the prompt asks for a transparent background whenever m can
// produce one and the output format keeps alpha.
func (o *genOptions) params(m *models.ModelCapabilities, prompt string) (models.Params, error) {
	if o.transparent && !m.SupportsTransparency {
		return nil, apperr.New(apperr.KindValidation, "generate",
			fmt.Errorf("%w: %s", models.ErrTransparencyNotSupported, m.Alias))
	}

	switch m.Family {
	case models.FamilyOpenAI:
		p := models.OpenAIParams{
			Size:    o.size,
			Quality: strings.ToLower(o.quality),
			Format:  models.OutputFormat(strings.ToLower(o.format)),
		}
		if p.Format == "" {
			p.Format = models.FormatPNG
		}
		if !p.Format.IsValid() {
			return nil, apperr.Validation("invalid format %q: must be one of %v", o.format, models.ValidFormats())
		}
		keepsAlpha := p.Format == models.FormatPNG || p.Format == models.FormatWebP
		if o.transparent || (m.SupportsTransparency && keepsAlpha && selector.TransparencyKeywords.Match(prompt)) {
			p.Background = models.BackgroundTransparent
		}
		return p, nil
	default:
		return models.GeminiParams{
			AspectRatio: o.aspectRatio,
			ImageSize:   strings.ToUpper(o.imageSize),
		}, nil
	}
}

// transport names the provider and base URL serving a family.
func transport(cfg *config.Config, family models.Family) (name, baseURL string) {
	switch {
	case family == models.FamilyOpenAI:
		return openai.Name, cfg.OpenAIBaseURL
	case cfg.GeminiTransport == config.TransportGoogle:
		return gemini.Name, cfg.GeminiBaseURL
	default:
		return openrouter.Name, cfg.OpenRouterBaseURL
	}
}

func runGenerate(cmd *cobra.Command, app *App, mode models.Mode, prompt string, o *genOptions) error {
	ctx := cmd.Context()
	cfg := app.cfg
	op := string(mode)

	family, err := o.paramFamily()
	if err != nil {
		return err
	}

	sel, err := selector.New(app.Registry).Select(prompt, selector.Overrides{
		Model:       o.model,
		Transparent: o.transparent,
		Fast:        o.fast,
		Family:      family,
		HighRes:     strings.EqualFold(o.imageSize, "4K"),
	})
	if err != nil {
		return err
	}
	model := sel.Model
	app.logger.Debug("selected model", "model", model.Alias, "rule", sel.Rule)

	if family != "" && family != model.Family {
		return apperr.Validation("model %s (%s family) does not accept %s parameters", model.Alias, model.Family, family)
	}

	params, err := o.params(model, prompt)
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.NewStoreWithPath(cfg.SessionFile), cfg.OutputDir)
	if err := mgr.Load(); err != nil {
		app.warn("%v (starting a new session)", err)
	}

	var inputs []string
	if mode == models.ModeEdit {
		inputs, err = mgr.EditInputs(o.inputs)
		if err != nil {
			return apperr.New(apperr.KindValidation, op, err)
		}
		for _, in := range inputs {
			if err := security.ValidateInputImage(in); err != nil {
				return apperr.New(apperr.KindValidation, op, fmt.Errorf("%s: %w", in, err))
			}
		}
	}

	req, err := models.NewRequest(prompt, mode, model, inputs, params)
	if err != nil {
		return apperr.New(apperr.KindValidation, op, err)
	}

	basename := cfg.Basename
	if o.name != "" {
		basename = security.SanitizeBasename(o.name)
	}
	if err := security.ValidateBasename(basename); err != nil {
		return apperr.New(apperr.KindValidation, op, err)
	}

	outDir, err := mgr.OutputDir(o.output)
	if err != nil {
		return apperr.New(apperr.KindConfiguration, op, err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return apperr.New(apperr.KindConfiguration, op, fmt.Errorf("output directory %s is not usable: %w", outDir, err))
	}

	name, baseURL := transport(cfg, model.Family)
	key, source, err := keys.NewResolver(app.Keys).WithGetenv(app.GetEnv).Resolve(name)
	if err != nil {
		return err
	}
	app.logger.Debug("resolved API key", "provider", name, "source", source)

	p, err := app.NewProvider(ctx, name, &provider.Config{
		APIKey:    key,
		BaseURL:   baseURL,
		Timeout:   cfg.Timeout,
		Verbose:   cfg.Verbose,
		LogOutput: app.Err,
	})
	if err != nil {
		return apperr.New(apperr.KindConfiguration, op, err)
	}

	factory := provider.NewFactory()
	factory.Register(p)
	client := provider.NewClient(factory, cfg.Retry,
		provider.WithSleep(app.Sleep),
		provider.WithRetryOutput(app.Err),
		provider.WithLogger(app.logger),
	)

	if mode == models.ModeEdit {
		fmt.Fprintf(app.Out, "Editing %d image(s) with %s...\n", len(inputs), model.Alias)
	} else {
		fmt.Fprintf(app.Out, "Generating with %s...\n", model.Alias)
	}

	resp, err := client.Execute(ctx, req)
	if err != nil {
		return err
	}

	saver := app.NewSaver().WithURLValidator(
		security.NewURLValidator(cfg.DownloadStrict, cfg.TrustedHosts...).Validate)
	paths, err := saver.SaveAll(ctx, resp, outDir, basename)
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	for _, path := range paths {
		fmt.Fprintf(app.Out, "Saved: %s\n", path)
	}

	if resp.RevisedPrompt != "" {
		fmt.Fprintf(app.Out, "Revised prompt: %s\n", resp.RevisedPrompt)
	}
	if resp.Text != "" {
		fmt.Fprintf(app.Out, "Model notes: %s\n", resp.Text)
	}

	est := app.calculator().Estimate(model, params, len(paths))
	if est.Known {
		fmt.Fprintf(app.Out, "Cost: $%.4f (%d image(s) @ $%.4f/image, %s)\n",
			est.Total, len(paths), est.PerImage, cost.Tier(model.Family, params))
	}

	meta := sessionMetadata(params, est.PerImage, name)
	for _, path := range paths {
		mgr.RecordGeneration(op, req.Prompt, model.Alias, inputs, path, meta)
	}
	if err := mgr.Save(); err != nil {
		app.warn("failed to save session: %v", err)
	}

	app.logToLedger(cmd, &ledger.Entry{
		ProjectDir: filepath.Dir(cfg.SessionFile),
		Mode:       op,
		Prompt:     req.Prompt,
		Provider:   name,
		Model:      model.ID,
		OutputPath: paths[len(paths)-1],
		Cost:       est.Total,
		ImageCount: len(paths),
		Metadata:   ledgerMetadata(meta, inputs),
	})

	if o.show {
		app.preview(paths)
	}
	return nil
}

func (app *App) calculator() *cost.Calculator {
	calc := cost.NewCalculator()
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return calc
	}
	overrides, err := cost.LoadOverrides(filepath.Join(dir, cost.OverridesFile))
	if err != nil {
		app.warn("ignoring price overrides: %v", err)
		return calc
	}
	return calc.WithOverrides(overrides)
}

func (app *App) logToLedger(cmd *cobra.Command, e *ledger.Entry) {
	if !app.cfg.LedgerEnabled || app.OpenLedger == nil {
		return
	}
	store, err := app.OpenLedger(app.cfg.LedgerPath)
	if err != nil {
		app.warn("cost ledger unavailable: %v", err)
		return
	}
	defer store.Close()

	if err := store.Log(cmd.Context(), e); err != nil {
		app.warn("failed to log cost: %v", err)
	}
}

func (app *App) preview(paths []string) {
	if !app.CanShow() {
		app.warn("--show needs a terminal with kitty graphics support (kitty, ghostty, wezterm)")
		return
	}
	if err := app.NewDisplayer(app.Out).ShowFiles(paths...); err != nil {
		app.warn("preview failed: %v", err)
	}
}

func sessionMetadata(params models.Params, perImage float64, providerName string) session.Metadata {
	meta := session.Metadata{Cost: perImage, Provider: providerName}
	switch p := params.(type) {
	case models.OpenAIParams:
		meta.Size = p.Size
		meta.Quality = p.Quality
		meta.Transparent = p.Transparent()
	case models.GeminiParams:
		meta.AspectRatio = p.AspectRatio
		meta.ImageSize = p.ImageSize
	}
	return meta
}

func ledgerMetadata(meta session.Metadata, inputs []string) map[string]string {
	m := map[string]string{}
	for k, v := range map[string]string{
		"size":         meta.Size,
		"quality":      meta.Quality,
		"aspect_ratio": meta.AspectRatio,
		"image_size":   meta.ImageSize,
	} {
		if v != "" {
			m[k] = v
		}
	}
	if meta.Transparent {
		m["background"] = models.BackgroundTransparent
	}
	if len(inputs) > 0 {
		m["inputs"] = strings.Join(inputs, ",")
	}
	return m
}
