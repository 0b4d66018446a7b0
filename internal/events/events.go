// package events contains message types shared between the watcher, web and tui packages.
package events

// WorkspaceChangedMsg is sent when decision files or fixtures change on disk.
type WorkspaceChangedMsg struct{}

// OutputUpdatedMsg is sent when an output surface gains lines or changes state.
type OutputUpdatedMsg struct {
	Surface string
}

// WebListenURLMsg is sent when the web server starts listening.
type WebListenURLMsg struct{ URL string }
