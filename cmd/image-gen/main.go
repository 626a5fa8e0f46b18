package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/config"
	"github.com/manash/image-gen/internal/display"
	"github.com/manash/image-gen/internal/image"
	"github.com/manash/image-gen/internal/keys"
	"github.com/manash/image-gen/internal/ledger"
	"github.com/manash/image-gen/internal/provider"
	"github.com/manash/image-gen/internal/provider/gemini"
	"github.com/manash/image-gen/internal/provider/openai"
	"github.com/manash/image-gen/internal/provider/openrouter"
	"github.com/manash/image-gen/internal/retry"
	"github.com/manash/image-gen/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

// App holds everything a command touches outside its own flags, so tests
// can swap the network, the keyring and the terminal.
type App struct {
	Out      io.Writer
	Err      io.Writer
	In       io.Reader
	Registry *models.ModelRegistry
	GetEnv   func(string) string
	Getwd    func() (string, error)
	Keys     *keys.Store
	Sleep    retry.Sleeper

	// NewProvider builds the transport named by keys.Provider.Name.
	NewProvider  func(ctx context.Context, name string, cfg *provider.Config) (provider.Provider, error)
	NewSaver     func() *image.Saver
	NewDisplayer func(out io.Writer) *display.Displayer
	// CanShow reports whether inline previews will render.
	CanShow func() bool
	// ReadSecret reads a key without echo when stdin is a terminal.
	ReadSecret func() (string, error)
	// OpenLedger opens the cost ledger. Failures only warn; nil disables it.
	OpenLedger func(path string) (*ledger.Store, error)

	cfg    *config.Config
	logger *slog.Logger
}

func DefaultApp() *App {
	app := &App{
		Out:          os.Stdout,
		Err:          os.Stderr,
		In:           os.Stdin,
		Registry:     models.DefaultRegistry(),
		GetEnv:       os.Getenv,
		Getwd:        os.Getwd,
		Keys:         keys.NewStore(),
		Sleep:        retry.Sleep,
		NewProvider:  newProvider,
		NewSaver:     image.NewSaver,
		NewDisplayer: display.New,
		CanShow:      func() bool { return display.Supported(os.Stdout) },
		OpenLedger:   openLedger,
	}
	app.ReadSecret = func() (string, error) { return readSecret(app) }
	return app
}

func newProvider(ctx context.Context, name string, cfg *provider.Config) (provider.Provider, error) {
	switch name {
	case openrouter.Name:
		return openrouter.New(cfg)
	case openai.Name:
		return openai.New(cfg)
	case gemini.Name:
		return gemini.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", provider.ErrProviderNotFound, name)
	}
}

func openLedger(path string) (*ledger.Store, error) {
	if path == "" {
		return ledger.NewStore()
	}
	return ledger.NewStoreWithPath(path)
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := DefaultApp()
	err := newRootCmd(app).ExecuteContext(ctx)
	return report(app, err)
}

// report prints err and returns the process exit code for it.
func report(app *App, err error) int {
	if err == nil {
		return apperr.ExitOK
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(app.Err, "Interrupted")
		return apperr.ExitFailure
	}
	fmt.Fprintf(app.Err, "Error: %v\n", err)
	return apperr.ExitCode(err)
}

func newRootCmd(app *App) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "image-gen",
		Short: "Generate and edit images with Gemini and OpenAI image models",
		Long: `image-gen generates and edits images with Gemini (through OpenRouter or
Google AI) and OpenAI image models. It picks a model from the prompt unless
one is given, and remembers the current image and output directory per
project directory.

Examples:
  image-gen generate "a cabin in the snow at dusk"
  image-gen generate --transparent "app icon of a paper plane"
  image-gen edit "make it night time"
  image-gen edit -i sketch.png -i palette.png "paint the sketch in these colours"`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          unknownCommand,
		RunE:          showHelp,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd, cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/image-gen/config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log requests and debug output to stderr")

	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperr.New(apperr.KindValidation, "", err)
	})

	cmd.AddCommand(
		newGenerateCmd(app),
		newEditCmd(app),
		newSetDirCmd(app),
		newStatusCmd(app),
		newHistoryCmd(app),
		newClearCmd(app),
		newModelsCmd(app),
		newKeysCmd(app),
		newCostCmd(app),
	)
	return cmd
}

// setup loads .env and configuration once per process, before any command
// body runs.
func (app *App) setup(cmd *cobra.Command, cfgFile string) error {
	wd, err := app.Getwd()
	if err != nil {
		return apperr.New(apperr.KindConfiguration, "setup", err)
	}
	if err := config.LoadDotEnv(wd); err != nil {
		return apperr.New(apperr.KindConfiguration, "setup", err)
	}

	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return apperr.New(apperr.KindConfiguration, "setup", err)
	}
	cfg, err := loader.Load(cfgFile)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(cfg.SessionFile) {
		cfg.SessionFile = filepath.Join(wd, cfg.SessionFile)
	}
	if cfg.OutputDir != "" && !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(wd, cfg.OutputDir)
	}
	app.cfg = cfg

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	app.logger = slog.New(slog.NewTextHandler(app.Err, &slog.HandlerOptions{Level: level}))
	if cfg.File != "" {
		app.logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}

// usage turns cobra's argument count errors into validation failures.
func usage(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return apperr.New(apperr.KindValidation, cmd.Name(), err)
		}
		return nil
	}
}

// unknownCommand rejects a word where a command group expected a subcommand.
func unknownCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	msg := fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath())
	if s := cmd.SuggestionsFor(args[0]); len(s) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", s[0])
	}
	return apperr.Validation("%s", msg)
}

func showHelp(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}

func (app *App) warn(format string, args ...any) {
	fmt.Fprintf(app.Err, "Warning: "+format+"\n", args...)
}

func readSecret(app *App) (string, error) {
	if f, ok := app.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(app.Err, "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(app.Err)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(io.LimitReader(app.In, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return string(b), nil
}
