// pattern: Imperative Shell

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"dmnexplorer/internal/events"
	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/logging"
	"dmnexplorer/internal/output"
)

// doubleCtrlCWindow is the maximum time between two ctrl+c presses to trigger quit.
const doubleCtrlCWindow = 500 * time.Millisecond

const quitHint = "ctrl+c ctrl+c to quit"

type treeRefreshedMsg struct {
	roots    []explorer.Entry
	children map[string][]explorer.Entry
	absent   map[string]bool
	err      error
}

type childrenLoadedMsg struct {
	path     string
	name     string
	children []explorer.Entry
	ok       bool
}

// relayDoneMsg is sent when a validation or evaluation returns.
// err is an input error (unreadable file, bad context); transport errors
// are recorded on the surface instead.
type relayDoneMsg struct {
	action  string // "validate" or "evaluate"
	target  string
	name    string
	surface *output.Surface
	err     error
}

// logEntriesMsg delivers log entries from the logging channel.
type logEntriesMsg struct {
	entries []logging.LogEntry
}

// clearStatusMsg is sent after a timed delay to clear the quit hint.
type clearStatusMsg struct{}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanels()
		return m, nil

	case spinner.TickMsg:
		if m.statusLevel == StatusLoading || len(m.running) > 0 {
			var cmd tea.Cmd
			m.statusSpinner, cmd = m.statusSpinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case treeRefreshedMsg:
		if msg.err != nil {
			m.treeErr = msg.err
			m.logger.Error("workspace scan failed", "error", msg.err)
			m.setStatus(StatusError, "Cannot read workspace")
			m.err = msg.err
			return m, nil
		}
		m.treeErr = nil
		m.applyRefresh(msg)
		return m, nil

	case childrenLoadedMsg:
		if !m.expanded[msg.path] {
			return m, nil
		}
		if msg.ok {
			m.children[msg.path] = msg.children
			delete(m.noFixtures, msg.path)
		} else {
			delete(m.children, msg.path)
			m.noFixtures[msg.path] = true
			m.setStatus(StatusInfo, "No fixtures for "+msg.name)
		}
		m.rebuildTree()
		return m, nil

	case relayDoneMsg:
		delete(m.running, msg.target)
		surface := msg.surface
		switch {
		case msg.err != nil:
			m.logger.Error(msg.action+" failed", "path", msg.target, "error", msg.err)
			m.err = msg.err
			m.setStatus(StatusError, fmt.Sprintf("Cannot %s %s", msg.action, msg.name))
		case surface != nil && surface.State() == output.StateErrored:
			m.err = surface.Err()
			m.setStatus(StatusError, fmt.Sprintf("Request for %s failed", msg.name))
		default:
			verb := "Validated"
			if msg.action == "evaluate" {
				verb = "Evaluated"
			}
			m.setStatus(StatusSuccess, verb+" "+msg.name)
		}
		if msg.target == m.outputTarget {
			m.updateOutputViewportContent()
		}
		return m, nil

	case events.OutputUpdatedMsg:
		if msg.Surface == m.outputTarget {
			m.updateOutputViewportContent()
		}
		return m, nil

	case events.WorkspaceChangedMsg:
		m.logger.Debug("workspace changed, refreshing tree")
		return m, m.refreshTree()

	case events.WebListenURLMsg:
		m.webURL = msg.URL
		return m, nil

	case logEntriesMsg:
		for _, entry := range msg.entries {
			m.addLogEntry(entry)
		}
		if m.logPanelOpen && m.logReady {
			m.updateLogViewportContent()
		}
		if m.logs != nil {
			return m, consumeLogEntries(m.logs)
		}
		return m, nil

	case clearStatusMsg:
		// Only clear if still showing the quit hint (don't clobber other status)
		if m.statusLevel == StatusInfo && m.statusMessage == quitHint {
			m.clearStatus()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.logger.Debug("key pressed", "key", msg.String(), "focus", int(m.panelFocus))

	// Quit shortcuts first (ctrl+d always, ctrl+c double-press)
	if msg.Type == tea.KeyCtrlD {
		m.logger.Debug("quit via ctrl+d")
		return m, tea.Quit
	}
	if msg.Type == tea.KeyCtrlC {
		now := time.Now()
		if !m.lastCtrlCTime.IsZero() && now.Sub(m.lastCtrlCTime) <= doubleCtrlCWindow {
			m.logger.Debug("quit via double ctrl+c")
			return m, tea.Quit
		}
		m.lastCtrlCTime = now
		m.setStatus(StatusInfo, quitHint)
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return clearStatusMsg{} })
	}

	if msg.Type == tea.KeyEscape {
		if m.statusLevel == StatusError {
			m.clearStatus()
			return m, nil
		}
		m.panelFocus = FocusTree
		return m, nil
	}

	switch msg.String() {
	case "l", "L":
		m.logPanelOpen = !m.logPanelOpen
		if !m.logPanelOpen && m.panelFocus == FocusLogs {
			m.panelFocus = FocusTree
		}
		m.resizePanels()
		return m, nil
	case "o":
		m.outputPanelOpen = !m.outputPanelOpen
		if !m.outputPanelOpen && m.panelFocus == FocusOutput {
			m.panelFocus = FocusTree
		}
		if m.outputPanelOpen && m.outputTarget == "" {
			if item, ok := m.selectedItem(); ok {
				m.outputTarget = m.decisionFor(item).Path
			}
		}
		m.resizePanels()
		return m, nil
	case "tab":
		m.cycleFocus()
		return m, nil
	case "r":
		m.setStatus(StatusInfo, "Refreshing")
		return m, m.refreshTree()
	}

	switch m.panelFocus {
	case FocusOutput:
		var cmd tea.Cmd
		m.outputViewport, cmd = scrollViewport(m.outputViewport, msg)
		return m, cmd
	case FocusLogs:
		var cmd tea.Cmd
		m.logViewport, cmd = scrollViewport(m.logViewport, msg)
		m.logAutoScroll = m.logViewport.AtBottom()
		return m, cmd
	}
	return m.handleTreeKey(msg)
}

func (m Model) handleTreeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
		m.followSelection()
		return m, nil
	case "down", "j":
		if m.selectedIdx < len(m.treeItems)-1 {
			m.selectedIdx++
		}
		m.followSelection()
		return m, nil
	case "home", "g":
		m.selectedIdx = 0
		m.followSelection()
		return m, nil
	case "end", "G":
		if len(m.treeItems) > 0 {
			m.selectedIdx = len(m.treeItems) - 1
		}
		m.followSelection()
		return m, nil
	case "enter", "right":
		return m.toggleExpand(msg.String() == "right")
	case "left":
		return m.collapse()
	case "v":
		return m.startValidate()
	case "e":
		return m.startEvaluate()
	}
	return m, nil
}

// toggleExpand expands the selected decision entry, or collapses it on
// enter when already expanded. onlyExpand keeps → from collapsing.
func (m Model) toggleExpand(onlyExpand bool) (tea.Model, tea.Cmd) {
	item, ok := m.selectedItem()
	if !ok || item.Depth != 0 {
		return m, nil
	}
	path := item.Entry.Path
	if m.expanded[path] {
		if onlyExpand {
			return m, nil
		}
		delete(m.expanded, path)
		m.rebuildTree()
		return m, nil
	}
	m.expanded[path] = true
	m.rebuildTree()
	return m, m.loadChildren(item.Entry)
}

// collapse folds the selected decision entry, or jumps from a fixture to
// its decision entry and folds that.
func (m Model) collapse() (tea.Model, tea.Cmd) {
	if _, ok := m.selectedItem(); !ok {
		return m, nil
	}
	idx := parentIndex(m.treeItems, m.selectedIdx)
	if idx < 0 {
		return m, nil
	}
	delete(m.expanded, m.treeItems[idx].Entry.Path)
	m.selectedIdx = idx
	m.rebuildTree()
	return m, nil
}

func (m Model) startValidate() (tea.Model, tea.Cmd) {
	item, ok := m.selectedItem()
	if !ok {
		return m, nil
	}
	target := m.decisionFor(item)
	surface := m.surfaces.Acquire(target.Path)
	m.showOutput(target.Path)
	m.running[target.Path] = true
	m.setStatus(StatusLoading, "Validating "+target.Name)
	m.logger.Info("validate requested", "path", target.Path)

	r := m.relay
	cmd := func() tea.Msg {
		err := r.Validate(context.Background(), target.Path, surface)
		return relayDoneMsg{action: "validate", target: target.Path, name: target.Name, surface: surface, err: err}
	}
	return m, tea.Batch(cmd, m.statusSpinner.Tick)
}

func (m Model) startEvaluate() (tea.Model, tea.Cmd) {
	item, ok := m.selectedItem()
	if !ok {
		return m, nil
	}
	if item.Depth == 0 {
		m.setStatus(StatusInfo, "Select a fixture to evaluate "+item.Entry.Name)
		return m, nil
	}
	if item.Entry.Kind == explorer.KindDirectory {
		m.setStatus(StatusInfo, item.Entry.Name+" is a directory")
		return m, nil
	}
	target := m.decisionFor(item)
	fixture := item.Entry
	surface := m.surfaces.Acquire(target.Path)
	m.showOutput(target.Path)
	m.running[target.Path] = true
	m.setStatus(StatusLoading, fmt.Sprintf("Evaluating %s with %s", target.Name, fixture.Name))
	m.logger.Info("evaluate requested", "path", target.Path, "context", fixture.Path)

	r := m.relay
	cmd := func() tea.Msg {
		err := r.Evaluate(context.Background(), target.Path, fixture.Path, surface)
		return relayDoneMsg{action: "evaluate", target: target.Path, name: target.Name, surface: surface, err: err}
	}
	return m, tea.Batch(cmd, m.statusSpinner.Tick)
}

// decisionFor returns the decision entry of a row: itself, or the parent
// of a fixture.
func (m Model) decisionFor(item TreeItem) explorer.Entry {
	if item.Depth == 0 {
		return item.Entry
	}
	idx := indexOfPath(m.treeItems, item.Entry.Path)
	if p := parentIndex(m.treeItems, idx); p >= 0 {
		return m.treeItems[p].Entry
	}
	return item.Entry
}

func (m *Model) showOutput(target string) {
	m.outputTarget = target
	if !m.outputPanelOpen {
		m.outputPanelOpen = true
		m.resizePanels()
	}
	m.updateOutputViewportContent()
}

func (m *Model) applyRefresh(msg treeRefreshedMsg) {
	var selectedPath string
	if item, ok := m.selectedItem(); ok {
		selectedPath = item.Entry.Path
	}

	m.roots = msg.roots
	present := make(map[string]bool, len(msg.roots))
	for _, r := range msg.roots {
		present[r.Path] = true
	}
	for path := range m.expanded {
		if !present[path] {
			delete(m.expanded, path)
		}
	}
	m.children = msg.children
	m.noFixtures = msg.absent
	m.rebuildTree()

	if idx := indexOfPath(m.treeItems, selectedPath); idx >= 0 {
		m.selectedIdx = idx
	}
	m.followSelection()

	if m.statusMessage == "Refreshing" {
		m.setStatus(StatusInfo, fmt.Sprintf("%d decision files", len(m.roots)))
	}
}

func (m *Model) rebuildTree() {
	m.treeItems = buildTreeItems(m.roots, m.children, m.noFixtures, m.expanded)
	if m.selectedIdx >= len(m.treeItems) {
		m.selectedIdx = len(m.treeItems) - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
	m.followSelection()
}

func (m *Model) followSelection() {
	layout := ComputeLayout(m.width, m.height, m.logPanelOpen, m.outputPanelOpen)
	m.scrollTop = scrollWindow(m.scrollTop, m.selectedIdx, layout.TreeListHeight(), len(m.treeItems))
}

func (m Model) selectedItem() (TreeItem, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.treeItems) {
		return TreeItem{}, false
	}
	return m.treeItems[m.selectedIdx], true
}

func (m *Model) cycleFocus() {
	order := []PanelFocus{FocusTree}
	if m.outputPanelOpen {
		order = append(order, FocusOutput)
	}
	if m.logPanelOpen {
		order = append(order, FocusLogs)
	}
	for i, f := range order {
		if f == m.panelFocus {
			m.panelFocus = order[(i+1)%len(order)]
			return
		}
	}
	m.panelFocus = FocusTree
}

// resizePanels sizes the viewports to the current layout.
func (m *Model) resizePanels() {
	layout := ComputeLayout(m.width, m.height, m.logPanelOpen, m.outputPanelOpen)

	if m.outputPanelOpen {
		w, h := layout.Output.Width-1, layout.Output.Height-1
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		if !m.outputReady {
			m.outputViewport = viewport.New(w, h)
			m.outputReady = true
		} else {
			m.outputViewport.Width = w
			m.outputViewport.Height = h
		}
		m.updateOutputViewportContent()
	}

	if m.logPanelOpen {
		h := layout.Logs.Height - 1
		if h < 1 {
			h = 1
		}
		if !m.logReady {
			m.logViewport = viewport.New(layout.Logs.Width, h)
			m.logReady = true
		} else {
			m.logViewport.Width = layout.Logs.Width
			m.logViewport.Height = h
		}
		m.updateLogViewportContent()
	}
	m.followSelection()
}

// outputLines returns the display lines of the current surface. Response
// chunks may span several lines and carry terminal escapes; both are
// normalized for the viewport.
func (m Model) outputLines() []string {
	if m.outputTarget == "" {
		return nil
	}
	surface, ok := m.surfaces.Get(m.outputTarget)
	if !ok {
		return nil
	}
	var lines []string
	for _, raw := range surface.Lines() {
		for _, l := range strings.Split(strings.TrimRight(raw, "\n"), "\n") {
			lines = append(lines, ansi.Strip(strings.TrimRight(l, "\r")))
		}
	}
	return lines
}

func (m *Model) updateOutputViewportContent() {
	if !m.outputReady {
		return
	}
	lines := m.outputLines()
	if len(lines) == 0 {
		m.outputViewport.SetContent(m.styles.MutedStyle().Render("No output yet. Press v to validate."))
		return
	}
	follow := m.outputViewport.AtBottom() || m.panelFocus != FocusOutput
	m.outputViewport.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.outputViewport.GotoBottom()
	}
}

func (m *Model) addLogEntry(entry logging.LogEntry) {
	m.logEntries = append(m.logEntries, entry)
	if over := len(m.logEntries) - maxLogEntries; over > 0 {
		m.logEntries = m.logEntries[over:]
	}
}

func (m *Model) updateLogViewportContent() {
	if !m.logReady {
		return
	}
	lines := make([]string, 0, len(m.logEntries))
	for _, entry := range m.logEntries {
		lines = append(lines, m.renderLogEntry(entry))
	}
	if len(lines) == 0 {
		lines = []string{m.styles.MutedStyle().Render("No log entries")}
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	if m.logAutoScroll {
		m.logViewport.GotoBottom()
	}
}

func scrollViewport(vp viewport.Model, msg tea.KeyMsg) (viewport.Model, tea.Cmd) {
	switch msg.String() {
	case "g", "home":
		vp.GotoTop()
		return vp, nil
	case "G", "end":
		vp.GotoBottom()
		return vp, nil
	}
	return vp.Update(msg)
}

func (m *Model) setStatus(level StatusLevel, message string) {
	m.statusLevel = level
	m.statusMessage = message
}

func (m *Model) clearStatus() {
	m.statusLevel = StatusInfo
	m.statusMessage = ""
	m.err = nil
}
