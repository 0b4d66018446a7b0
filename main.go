// pattern: Imperative Shell
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"dmnexplorer/internal/cli"
	"dmnexplorer/internal/config"
	"dmnexplorer/internal/events"
	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/instance"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/output"
	"dmnexplorer/internal/relay"
	"dmnexplorer/internal/tui"
	"dmnexplorer/internal/watch"
	"dmnexplorer/internal/web"
)

var version = "dev"

func main() {
	// Stop parsing flags after the first non-flag arg (the subcommand),
	// so that --help after a subcommand is handled by the subcommand.
	flag.CommandLine.SetInterspersed(false)

	configDir := flag.StringP("config-dir", "c", "", "config directory (default: ~/.config/dmnexplorer)")
	workspace := flag.StringP("workspace", "w", "", "workspace to explore (default: config, $DMNX_WORKSPACE, or the current directory)")

	// Override flag.Usage before Parse so --help uses the CLI app's help
	flag.Usage = func() {
		app := cli.BuildApp(version, cli.Options{ConfigDir: *configDir})
		app.PrintHelp(os.Stderr)
		flag.PrintDefaults()
	}

	flag.Parse()

	opts := cli.Options{ConfigDir: *configDir, Workspace: *workspace}
	app := cli.BuildApp(version, opts)

	if app.Execute(flag.Args()) {
		runTUI(opts)
	}
}

// logFilePath places the rotated log next to the lock and port files.
func logFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dmnexplorer.log")
}

// runTUI launches the interactive TUI.
func runTUI(opts cli.Options) {
	cfg, err := cli.LoadConfig(opts.ConfigDir, opts.Workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	source, err := cli.NewSource(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	workspace := source.Root()

	dataDir := cli.ResolveDataDir(opts.ConfigDir)

	// One instance per workspace
	fl, err := instance.Lock(dataDir, workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer instance.Cleanup(dataDir, workspace, fl)

	logManager, err := logging.NewManager(logging.Config{
		FilePath:       logFilePath(dataDir),
		MaxSizeMB:      10,
		MaxBackups:     3,
		MaxAgeDays:     7,
		ChannelBufSize: 1000,
		Level:          cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logManager.Close() }()

	appLogger := logManager.For("app")
	appLogger.Info("application starting", "version", version, "workspace", workspace)

	surfaces, err := output.NewRegistry(cfg.Output.MaxSurfaces, func(s *output.Surface) {
		appLogger.Debug("output surface evicted", "surface", s.Name())
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	relayClient := relay.New(cli.RelayConfig(cfg.Validator), logManager.For("relay"))

	model := tui.NewModel(&cfg, source, relayClient, surfaces, logManager)
	p := tea.NewProgram(model, tea.WithAltScreen())

	var webServer *web.Server
	if cfg.Web.Enabled {
		webServer = startWebServer(&cfg, source, relayClient, surfaces, p, logManager, dataDir)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := webServer.Shutdown(ctx); err != nil {
				appLogger.Error("web server shutdown error", "error", err)
			}
		}()
	}

	surfaces.SetOnChange(func(name string) {
		if webServer != nil {
			webServer.NotifyOutput()
		}
		p.Send(events.OutputUpdatedMsg{Surface: name})
	})

	if cfg.Watch.Enabled {
		stop := startWatcher(&cfg, workspace, p, webServer, logManager)
		defer stop()
	}

	if _, err := p.Run(); err != nil {
		appLogger.Error("application exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	appLogger.Info("application stopped")
}

// startWebServer binds the API, records its address for CLI discovery, and
// serves in the background.
func startWebServer(cfg *config.Config, source *explorer.Source, validator web.Validator, surfaces *output.Registry, p *tea.Program, logManager *logging.Manager, dataDir string) *web.Server {
	appLogger := logManager.For("app")

	webServer := web.New(
		web.Config{Bind: cfg.Web.Bind, Port: cfg.Web.Port},
		source,
		validator,
		surfaces,
		func(msg any) { p.Send(msg) },
		logManager,
	)
	ln, err := webServer.Listen()
	if err != nil {
		appLogger.Error("web server listen error", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := instance.WritePort(dataDir, source.Root(), webServer.Addr()); err != nil {
		appLogger.Error("failed to write port file", "error", err)
	}

	webURL := fmt.Sprintf("http://%s", webServer.Addr())
	go func() {
		p.Send(events.WebListenURLMsg{URL: webURL})
	}()

	go func() {
		if err := webServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("web server error", "error", err)
		}
	}()
	return webServer
}

// startWatcher refreshes the tree and SSE clients on workspace changes.
// The returned func stops it. A watcher that cannot start is logged and
// skipped; manual refresh still works.
func startWatcher(cfg *config.Config, workspace string, p *tea.Program, webServer *web.Server, logManager *logging.Manager) func() {
	logger := logManager.For("watch")

	w, err := watch.New(workspace, cfg.FixtureSuffix, cfg.Watch.Debounce, logger)
	if err != nil {
		logger.Warn("workspace watcher disabled", "error", err)
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		err := w.Run(ctx, func() {
			if webServer != nil {
				webServer.NotifyRefresh()
			}
			p.Send(events.WorkspaceChangedMsg{})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("workspace watcher stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		_ = w.Close()
	}
}
