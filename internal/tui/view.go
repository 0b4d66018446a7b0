// pattern: Imperative Shell

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/logging"
)

// View renders the TUI.
func (m Model) View() string {
	layout := ComputeLayout(m.width, m.height, m.logPanelOpen, m.outputPanelOpen)

	header := m.renderHeader(layout)

	treeView := m.renderTree(layout)
	content := treeView
	if m.outputPanelOpen {
		content = lipgloss.JoinHorizontal(lipgloss.Top, treeView, m.renderOutputPanel(layout))
	}

	statusBar := lipgloss.NewStyle().Width(layout.StatusBar.Width).Render(m.renderStatusBar(layout.StatusBar.Width))

	parts := []string{header, content}
	if m.logPanelOpen {
		separator := m.styles.SeparatorStyle().
			Width(layout.Separator.Width).
			Render(strings.Repeat("─", layout.Separator.Width))
		parts = append(parts, separator, m.renderLogPanel(layout))
	}
	parts = append(parts, statusBar)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader(layout Layout) string {
	title := m.styles.TitleStyle().Render("DMN Explorer")

	sub := m.source.Root()
	if m.webURL != "" {
		sub += "  •  " + m.webURL
	}
	sub = ansi.Truncate(sub, max(layout.Header.Width-2, 1), "…")

	return lipgloss.JoinVertical(lipgloss.Left, title, m.styles.SubtitleStyle().Render(sub))
}

func (m Model) renderTree(layout Layout) string {
	headerStyle := m.styles.PanelHeaderUnfocusedStyle()
	if m.panelFocus == FocusTree {
		headerStyle = m.styles.PanelHeaderFocusedStyle()
	}
	header := headerStyle.Width(layout.Tree.Width).Render(" Decisions")

	body := lipgloss.NewStyle().
		Width(layout.Tree.Width).
		Height(layout.TreeListHeight())

	if m.treeErr != nil {
		return lipgloss.JoinVertical(lipgloss.Left, header,
			body.Padding(0, 1).Render(m.styles.ErrorStyle().Render("Cannot read workspace: "+m.treeErr.Error())))
	}
	if len(m.treeItems) == 0 {
		msg := fmt.Sprintf("No %s files in this workspace.", m.cfg.DecisionSuffix)
		return lipgloss.JoinVertical(lipgloss.Left, header,
			body.Padding(0, 1).Render(m.styles.InfoStyle().Render(msg)))
	}

	height := layout.TreeListHeight()
	end := min(m.scrollTop+height, len(m.treeItems))
	lines := make([]string, 0, height)
	for i := m.scrollTop; i < end; i++ {
		lines = append(lines, m.renderTreeItem(m.treeItems[i], i == m.selectedIdx, layout.Tree.Width))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body.Render(strings.Join(lines, "\n")))
}

func (m Model) renderTreeItem(item TreeItem, selected bool, width int) string {
	cursor := "  "
	if selected {
		cursor = "> "
	}

	var prefix, name string
	if item.Depth == 0 {
		prefix = "▸ "
		if item.Expanded {
			prefix = "▾ "
		}
		name = item.Entry.Name
		if m.running[item.Entry.Path] {
			name += " " + m.statusSpinner.View()
		}
		if item.Absent {
			name += m.styles.MutedStyle().Render(" (no fixtures)")
		}
	} else {
		prefix = "  ├─ "
		if item.Last {
			prefix = "  └─ "
		}
		name = item.Entry.Name
		if item.Entry.Kind == explorer.KindDirectory {
			name += "/"
		}
		name = m.styles.FixtureStyle().Render(name)
	}

	line := ansi.Truncate(cursor+prefix+name, max(width-1, 1), "…")
	if selected {
		return m.styles.TreeItemSelectedStyle().Render(line)
	}
	return line
}

func (m Model) renderOutputPanel(layout Layout) string {
	headerStyle := m.styles.PanelHeaderUnfocusedStyle()
	if m.panelFocus == FocusOutput {
		headerStyle = m.styles.PanelHeaderFocusedStyle()
	}

	title := " Output"
	var badge string
	if m.outputTarget != "" {
		title += ": " + displayName(m.source.Root(), m.outputTarget)
		if surface, ok := m.surfaces.Get(m.outputTarget); ok {
			state := surface.State()
			label := state.String()
			if runs := surface.Runs(); runs > 1 {
				label = fmt.Sprintf("%s, run %d", label, runs)
			}
			badge = " " + m.styles.SurfaceStateStyle(state).Render("["+label+"]")
		}
	}
	header := headerStyle.Width(layout.Output.Width).Render(
		ansi.Truncate(title, max(layout.Output.Width-lipgloss.Width(badge)-1, 1), "…") + badge)

	body := lipgloss.NewStyle().
		Width(layout.Output.Width).
		Height(max(layout.Output.Height-1, 1)).
		PaddingLeft(1)

	if m.outputReady {
		return lipgloss.JoinVertical(lipgloss.Left, header, body.Render(m.outputViewport.View()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header,
		body.Render(m.styles.MutedStyle().Render("No output yet. Press v to validate.")))
}

// displayName shows a surface path relative to the workspace when possible.
func displayName(root, path string) string {
	if rest, ok := strings.CutPrefix(path, root); ok {
		return strings.TrimLeft(rest, "/\\")
	}
	return path
}

func (m Model) renderLogPanel(layout Layout) string {
	headerStyle := m.styles.PanelHeaderUnfocusedStyle()
	if m.panelFocus == FocusLogs {
		headerStyle = m.styles.PanelHeaderFocusedStyle()
	}
	header := headerStyle.Width(layout.Logs.Width).Render(fmt.Sprintf(" Logs (%d)", len(m.logEntries)))

	if m.logReady {
		return lipgloss.JoinVertical(lipgloss.Left, header, m.logViewport.View())
	}

	lines := make([]string, 0, len(m.logEntries))
	for _, entry := range m.logEntries {
		lines = append(lines, m.renderLogEntry(entry))
	}
	if len(lines) == 0 {
		lines = []string{m.styles.InfoStyle().Render("No log entries")}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.NewStyle().
			Width(layout.Logs.Width).
			Height(max(layout.Logs.Height-1, 1)).
			Render(strings.Join(lines, "\n")),
	)
}

func (m Model) renderLogEntry(entry logging.LogEntry) string {
	ts := m.styles.LogTimestampStyle().Render(entry.Timestamp.Format("15:04:05"))

	var level string
	switch entry.Level {
	case "DEBUG":
		level = m.styles.LogDebugStyle().Render("DEBUG")
	case "WARN":
		level = m.styles.LogWarnStyle().Render("WARN")
	case "ERROR":
		level = m.styles.LogErrorStyle().Render("ERROR")
	default:
		level = m.styles.LogInfoStyle().Render(entry.Level)
	}

	scope := m.styles.LogScopeStyle().Render("[" + entry.Scope + "]")
	return fmt.Sprintf("%s %s %s %s", ts, level, scope, entry.Message)
}

func (m Model) renderStatusBar(width int) string {
	var statusIcon string
	messageStyle := m.styles.InfoStatusStyle()

	switch m.statusLevel {
	case StatusLoading:
		statusIcon = m.statusSpinner.View()
	case StatusSuccess:
		statusIcon = m.styles.SuccessStyle().Render("✓")
		messageStyle = m.styles.SuccessStyle()
	case StatusError:
		statusIcon = m.styles.ErrorStyle().Render("✗")
		messageStyle = m.styles.ErrorStyle()
	}

	message := m.statusMessage
	if m.statusLevel == StatusError && m.err != nil {
		message += ": " + m.err.Error()
	}

	var statusText string
	if statusIcon != "" {
		statusText = statusIcon + " " + messageStyle.Render(message)
	} else if message != "" {
		statusText = messageStyle.Render(message)
	}
	if m.statusLevel == StatusError {
		statusText += m.styles.HelpStyle().Render(" (esc to clear)")
	}

	help := m.renderContextualHelp()

	// Long messages win over help text
	helpWidth := lipgloss.Width(help)
	if lipgloss.Width(statusText)+helpWidth+3 > width {
		help, helpWidth = "", 0
		statusText = ansi.Truncate(statusText, max(width-2, 1), "…")
	}
	spacerWidth := width - lipgloss.Width(statusText) - helpWidth - 2
	if spacerWidth < 1 {
		spacerWidth = 1
	}

	return lipgloss.JoinHorizontal(lipgloss.Bottom, statusText, strings.Repeat(" ", spacerWidth), help)
}

func (m Model) renderContextualHelp() string {
	var help string
	switch m.panelFocus {
	case FocusOutput, FocusLogs:
		help = "↑↓ scroll • g/G top/bottom • tab focus • esc back"
	default:
		help = "↑↓ move • enter expand • v validate • r refresh • o output • l logs"
		if item, ok := m.selectedItem(); ok && item.Depth == 1 {
			help = "↑↓ move • ← parent • v validate • e evaluate • o output • l logs"
		}
	}
	return m.styles.HelpStyle().Render(help)
}
