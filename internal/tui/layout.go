// pattern: Functional Core

package tui

// Region defines a rectangular area within the terminal.
type Region struct {
	X      int // Left position (0-indexed)
	Y      int // Top position (0-indexed)
	Width  int // Width in cells
	Height int // Height in lines
}

// Layout holds computed regions for all UI components.
type Layout struct {
	Header    Region // Title + workspace line
	Content   Region // Tree and output side by side
	Tree      Region // Tree view (left side, 40% when output open, 100% otherwise)
	Output    Region // Output panel (right side, 60% when open)
	Separator Region // Separator between content and logs (1 line when logs open)
	Logs      Region // Log panel when open
	StatusBar Region // Status bar (1 line)
}

// Fixed heights for chrome elements
const (
	headerHeight    = 2 // Title + workspace
	statusBarHeight = 1
	marginHeight    = 2 // Top + bottom margins
	separatorHeight = 1 // Separator when log panel open
)

// ComputeLayout calculates regions based on terminal dimensions.
// When logPanelOpen is true, the area below the header splits 40/60
// vertically (content/logs). When outputPanelOpen is true, content splits
// 40/60 horizontally (tree/output).
func ComputeLayout(width, height int, logPanelOpen, outputPanelOpen bool) Layout {
	fixedHeight := headerHeight + statusBarHeight + marginHeight
	availableHeight := height - fixedHeight
	if logPanelOpen {
		availableHeight -= separatorHeight
	}
	if availableHeight < 4 {
		availableHeight = 4
	}

	var contentHeight, logsHeight int
	if logPanelOpen {
		contentHeight = int(float64(availableHeight) * 0.4)
		logsHeight = availableHeight - contentHeight
	} else {
		contentHeight = availableHeight
	}

	y := 0
	header := Region{X: 0, Y: y, Width: width, Height: headerHeight}
	y += headerHeight

	content := Region{X: 0, Y: y, Width: width, Height: contentHeight}

	var tree, out Region
	if outputPanelOpen {
		treeWidth := int(float64(width) * 0.4)
		tree = Region{X: 0, Y: content.Y, Width: treeWidth, Height: contentHeight}
		out = Region{X: treeWidth, Y: content.Y, Width: width - treeWidth, Height: contentHeight}
	} else {
		tree = Region{X: 0, Y: content.Y, Width: width, Height: contentHeight}
		out = Region{X: 0, Y: content.Y}
	}
	y += contentHeight

	var separator, logs Region
	if logPanelOpen {
		separator = Region{X: 0, Y: y, Width: width, Height: separatorHeight}
		y += separatorHeight
		logs = Region{X: 0, Y: y, Width: width, Height: logsHeight}
		y += logsHeight
	}

	statusBar := Region{X: 0, Y: y, Width: width, Height: statusBarHeight}

	return Layout{
		Header:    header,
		Content:   content,
		Tree:      tree,
		Output:    out,
		Separator: separator,
		Logs:      logs,
		StatusBar: statusBar,
	}
}

// TreeListHeight returns the rows available for tree items below the
// panel header.
func (l Layout) TreeListHeight() int {
	h := l.Tree.Height - 1
	if h < 1 {
		h = 1
	}
	return h
}
