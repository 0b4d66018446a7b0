// pattern: Imperative Shell

package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"dmnexplorer/internal/config"
	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/output"
	"dmnexplorer/internal/relay"
)

// Relay runs validations and evaluations into a sink.
// *relay.Client satisfies it.
type Relay interface {
	Validate(ctx context.Context, path string, sink relay.Sink) error
	Evaluate(ctx context.Context, modelPath, contextPath string, sink relay.Sink) error
}

// logEntrySource is implemented by *logging.Manager.
type logEntrySource interface {
	Entries() <-chan logging.LogEntry
}

// StatusLevel controls the icon and color of the status bar message.
type StatusLevel int

const (
	StatusInfo StatusLevel = iota
	StatusSuccess
	StatusError
	StatusLoading
)

// PanelFocus names the panel that receives navigation keys.
type PanelFocus int

const (
	FocusTree PanelFocus = iota
	FocusOutput
	FocusLogs
)

const maxLogEntries = 1000

// Model represents the TUI application state.
type Model struct {
	width  int
	height int
	styles *Styles

	cfg      *config.Config
	source   *explorer.Source
	relay    Relay
	surfaces *output.Registry
	logger   *logging.ScopedLogger
	logs     logEntrySource

	// Tree state. Children are loaded when a decision entry is expanded.
	roots       []explorer.Entry
	children    map[string][]explorer.Entry
	noFixtures  map[string]bool
	expanded    map[string]bool
	treeItems   []TreeItem
	selectedIdx int
	scrollTop   int
	treeErr     error

	panelFocus PanelFocus

	outputPanelOpen bool
	outputTarget    string // surface shown in the output panel
	outputViewport  viewport.Model
	outputReady     bool

	logPanelOpen  bool
	logEntries    []logging.LogEntry
	logViewport   viewport.Model
	logReady      bool
	logAutoScroll bool

	statusLevel   StatusLevel
	statusMessage string
	statusSpinner spinner.Model
	running       map[string]bool // targets with a request in flight

	webURL        string
	lastCtrlCTime time.Time
	err           error
}

// NewModel creates the TUI model. logProvider also feeds the log panel
// when it exposes an entries channel (as *logging.Manager does).
func NewModel(cfg *config.Config, source *explorer.Source, r Relay, surfaces *output.Registry, logProvider logging.LoggerProvider) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		styles:        NewStyles(cfg.Theme),
		cfg:           cfg,
		source:        source,
		relay:         r,
		surfaces:      surfaces,
		logger:        logProvider.For("tui"),
		children:      make(map[string][]explorer.Entry),
		noFixtures:    make(map[string]bool),
		expanded:      make(map[string]bool),
		statusSpinner: sp,
		running:       make(map[string]bool),
		logAutoScroll: true,
	}
	if src, ok := logProvider.(logEntrySource); ok {
		m.logs = src
	}

	m.logger.Info("TUI initialized", "workspace", source.Root(), "theme", cfg.Theme)
	return m
}

// Init returns the initial command to run.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshTree()}
	if m.logs != nil {
		cmds = append(cmds, consumeLogEntries(m.logs))
	}
	return tea.Batch(cmds...)
}

// refreshTree rescans the workspace, reloading children of expanded entries.
func (m Model) refreshTree() tea.Cmd {
	source := m.source
	expanded := make([]string, 0, len(m.expanded))
	for path := range m.expanded {
		expanded = append(expanded, path)
	}

	return func() tea.Msg {
		roots, err := source.Roots()
		if err != nil {
			return treeRefreshedMsg{err: err}
		}

		msg := treeRefreshedMsg{
			roots:    roots,
			children: make(map[string][]explorer.Entry),
			absent:   make(map[string]bool),
		}
		for _, root := range roots {
			for _, path := range expanded {
				if root.Path != path {
					continue
				}
				children, ok := source.Children(root)
				if ok {
					msg.children[path] = children
				} else {
					msg.absent[path] = true
				}
			}
		}
		return msg
	}
}

// loadChildren lists the fixtures of one decision entry.
func (m Model) loadChildren(e explorer.Entry) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		children, ok := source.Children(e)
		return childrenLoadedMsg{path: e.Path, name: e.Name, children: children, ok: ok}
	}
}

// consumeLogEntries waits for log entries and batches whatever else is
// already buffered into one message.
func consumeLogEntries(src logEntrySource) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-src.Entries()
		if !ok {
			return nil
		}
		entries := []logging.LogEntry{entry}
		for len(entries) < 100 {
			select {
			case e, ok := <-src.Entries():
				if !ok {
					return logEntriesMsg{entries: entries}
				}
				entries = append(entries, e)
			default:
				return logEntriesMsg{entries: entries}
			}
		}
		return logEntriesMsg{entries: entries}
	}
}
