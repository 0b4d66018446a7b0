// pattern: Functional Core

package tui

import (
	"dmnexplorer/internal/explorer"
)

// TreeItem is one visible row of the tree panel.
type TreeItem struct {
	Entry    explorer.Entry
	Depth    int  // 0 for decision entries, 1 for fixtures
	Expanded bool // decision entries only
	Absent   bool // expanded decision entry without a fixture directory
	Last     bool // last fixture of its parent
}

// buildTreeItems flattens roots and the children of expanded roots.
func buildTreeItems(roots []explorer.Entry, children map[string][]explorer.Entry, absent, expanded map[string]bool) []TreeItem {
	items := make([]TreeItem, 0, len(roots))
	for _, root := range roots {
		isExpanded := expanded[root.Path]
		items = append(items, TreeItem{
			Entry:    root,
			Expanded: isExpanded,
			Absent:   isExpanded && absent[root.Path],
		})
		if !isExpanded {
			continue
		}
		kids := children[root.Path]
		for i, child := range kids {
			items = append(items, TreeItem{
				Entry: child,
				Depth: 1,
				Last:  i == len(kids)-1,
			})
		}
	}
	return items
}

// indexOfPath returns the row showing path, or -1.
func indexOfPath(items []TreeItem, path string) int {
	for i, item := range items {
		if item.Entry.Path == path {
			return i
		}
	}
	return -1
}

// parentIndex returns the row of the decision entry owning row i.
func parentIndex(items []TreeItem, i int) int {
	for j := i; j >= 0; j-- {
		if items[j].Depth == 0 {
			return j
		}
	}
	return -1
}

// scrollWindow keeps selected within [top, top+height).
func scrollWindow(top, selected, height, total int) int {
	if height <= 0 {
		return 0
	}
	if selected < top {
		top = selected
	}
	if selected >= top+height {
		top = selected - height + 1
	}
	if maxTop := total - height; top > maxTop {
		top = maxTop
	}
	if top < 0 {
		top = 0
	}
	return top
}
