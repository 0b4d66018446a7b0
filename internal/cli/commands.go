// pattern: Imperative Shell
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"dmnexplorer/internal/config"
	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/instance"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/relay"
	"dmnexplorer/internal/web"
)

// Options carries the global flags and process IO into command handlers.
type Options struct {
	ConfigDir string
	Workspace string // overrides the config file and DMNX_WORKSPACE when set

	Stdout   io.Writer
	Stderr   io.Writer
	ExitFunc func(int)
}

func (o *Options) setDefaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.ExitFunc == nil {
		o.ExitFunc = os.Exit
	}
}

// ResolveDataDir returns the data directory for lock/port files and logs.
// If configDir is specified, uses that; otherwise the default config dir.
func ResolveDataDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	return config.ConfigDir()
}

// LoadConfig loads config.yaml and .env from configDir (or the default
// location), applies environment overrides and the workspace flag, and
// validates the result.
func LoadConfig(configDir, workspace string) (config.Config, error) {
	var cfg config.Config
	var err error
	if configDir != "" {
		cfg, err = config.LoadFromDir(configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ApplyEnv(ResolveDataDir(configDir)); err != nil {
		return cfg, err
	}
	if workspace != "" {
		cfg.Workspace = workspace
	}
	return cfg, cfg.Validate()
}

// NewSource builds the workspace source described by cfg.
func NewSource(cfg *config.Config) (*explorer.Source, error) {
	root, err := cfg.ResolveWorkspace()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	return explorer.NewSource(root,
		explorer.WithDecisionSuffix(cfg.DecisionSuffix),
		explorer.WithFixtureSuffix(cfg.FixtureSuffix),
	), nil
}

// RelayConfig maps the validator settings onto the relay client.
func RelayConfig(v config.ValidatorConfig) relay.Config {
	return relay.Config{
		Host:                v.Host,
		Port:                v.Port,
		ValidatePath:        v.ValidatePath,
		ValidateContentType: v.ValidateContentType,
		EvaluatePath:        v.EvaluatePath,
		EvaluateContentType: v.EvaluateContentType,
		Timeout:             v.Timeout,
	}
}

// BuildApp creates and configures the CLI application with all commands and groups.
func BuildApp(version string, opts Options) *App {
	opts.setDefaults()

	app := NewApp(version)
	app.Stderr = opts.Stderr
	app.ExitFunc = opts.ExitFunc

	app.AddCommand(&Command{
		Name:    "tree",
		Summary: "Print decision files and their fixtures",
		Usage:   "Usage: dmnexplorer tree [--json]",
		Run: func(args []string) error {
			return runTreeCommand(opts, args)
		},
	})

	app.AddCommand(&Command{
		Name:    "validate",
		Summary: "Send a decision file to the validation service",
		Usage:   "Usage: dmnexplorer validate <file.dmn>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: dmnexplorer validate <file.dmn>")
			}
			return runRelayCommand(opts, func(ctx context.Context, c *relay.Client, sink relay.Sink) error {
				return c.Validate(ctx, absPath(args[0]), sink)
			})
		},
	})

	app.AddCommand(&Command{
		Name:    "evaluate",
		Summary: "Evaluate a decision file against a JSON fixture",
		Usage:   "Usage: dmnexplorer evaluate <file.dmn> <fixture.json>",
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: dmnexplorer evaluate <file.dmn> <fixture.json>")
			}
			return runRelayCommand(opts, func(ctx context.Context, c *relay.Client, sink relay.Sink) error {
				return c.Evaluate(ctx, absPath(args[0]), absPath(args[1]), sink)
			})
		},
	})

	app.AddCommand(&Command{
		Name:    "cleanup",
		Summary: "Remove stale lock/port files from a crashed instance",
		Usage:   "Usage: dmnexplorer cleanup",
		Run: func(args []string) error {
			return runCleanupCommand(opts)
		},
	})

	app.AddCommand(&Command{
		Name:    "noop",
		Summary: "Do nothing and exit 0",
		Usage:   "Usage: dmnexplorer noop [args...]",
		Run: func(args []string) error {
			return nil
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: dmnexplorer version",
		Run: func(args []string) error {
			fmt.Fprintln(opts.Stdout, version)
			return nil
		},
	})

	remoteGroup := app.AddGroup("remote", "Query or drive the running instance")
	RegisterRemoteCommands(remoteGroup, opts)

	return app
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// runTreeCommand scans the workspace once and prints it.
func runTreeCommand(opts Options, args []string) error {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	asJSON := fs.Bool("json", false, "print JSON instead of a tree")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(opts.ConfigDir, opts.Workspace)
	if err != nil {
		return err
	}
	source, err := NewSource(&cfg)
	if err != nil {
		return err
	}
	nodes, err := source.Tree()
	if err != nil {
		return err
	}

	tree := web.TreeResponse(nodes)
	if *asJSON {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	}
	PrintTree(opts.Stdout, tree)
	return nil
}

// PrintTree renders entries with their fixtures as an indented tree.
func PrintTree(w io.Writer, entries []web.EntryResponse) {
	for _, e := range entries {
		fmt.Fprintln(w, e.Name)
		if e.HasFixtures != nil && !*e.HasFixtures {
			fmt.Fprintln(w, "   (no fixtures)")
			continue
		}
		for i, child := range e.Children {
			branch := "├─ "
			if i == len(e.Children)-1 {
				branch = "└─ "
			}
			name := child.Name
			if child.Kind == explorer.KindDirectory.String() {
				name += "/"
			}
			fmt.Fprintln(w, branch+name)
		}
	}
}

// runRelayCommand runs one relay call with stdout as the surface. It exits
// 1 when the service could not be reached; the sink already printed why.
func runRelayCommand(opts Options, call func(context.Context, *relay.Client, relay.Sink) error) error {
	cfg, err := LoadConfig(opts.ConfigDir, opts.Workspace)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := relay.New(RelayConfig(cfg.Validator), logging.NopLogger())
	sink := relay.NewWriterSink(opts.Stdout)
	if err := call(ctx, client, sink); err != nil {
		return err
	}
	if sink.Err() != nil {
		opts.ExitFunc(1)
	}
	return nil
}

// runCleanupCommand removes stale lock and port files from a crashed instance.
func runCleanupCommand(opts Options) error {
	cfg, err := LoadConfig(opts.ConfigDir, opts.Workspace)
	if err != nil {
		return err
	}
	workspace, err := cfg.ResolveWorkspace()
	if err != nil {
		return err
	}

	if err := instance.RemoveStale(ResolveDataDir(opts.ConfigDir), workspace); err != nil {
		return err
	}
	fmt.Fprintln(opts.Stdout, "Cleaned up stale lock and port files.")
	return nil
}
