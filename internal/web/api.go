// pattern: Imperative Shell

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"dmnexplorer/internal/events"
	"dmnexplorer/internal/explorer"
	"dmnexplorer/internal/output"
)

// EntryResponse is the JSON representation of a tree entry.
type EntryResponse struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Kind        string          `json:"kind"`
	Class       string          `json:"class"`
	HasFixtures *bool           `json:"has_fixtures,omitempty"`
	Children    []EntryResponse `json:"children,omitempty"`
}

// ValidateResponse names the surface a validation writes to and the run
// it opened there.
type ValidateResponse struct {
	Surface string `json:"surface"`
	Run     int    `json:"run"`
}

// runSink writes one background validation into its surface, attributing
// lines and outcome to the run it opened even if another run starts
// meanwhile. started receives the run number once.
type runSink struct {
	surface *output.Surface
	run     int
	started chan int
}

func newRunSink(surface *output.Surface) *runSink {
	return &runSink{surface: surface, started: make(chan int, 1)}
}

func (r *runSink) Begin() {
	r.run = r.surface.BeginRun()
	select {
	case r.started <- r.run:
	default:
	}
}

func (r *runSink) AppendLine(line string) {
	r.surface.AppendRunLine(r.run, line)
}

func (r *runSink) Finish(err error) {
	r.surface.FinishRun(r.run, err)
}

func entryResponse(e explorer.Entry) EntryResponse {
	return EntryResponse{
		Name:  e.Name,
		Path:  e.Path,
		Kind:  e.Kind.String(),
		Class: e.Class.String(),
	}
}

func entriesResponse(entries []explorer.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse(e))
	}
	return out
}

// TreeResponse converts scanned nodes to their JSON form. Children are
// present only for nodes with a fixture directory.
func TreeResponse(nodes []explorer.Node) []EntryResponse {
	out := make([]EntryResponse, 0, len(nodes))
	for _, n := range nodes {
		resp := entryResponse(n.Entry)
		hasFixtures := n.HasFixtures
		resp.HasFixtures = &hasFixtures
		if n.HasFixtures {
			resp.Children = entriesResponse(n.Children)
		}
		out = append(out, resp)
	}
	return out
}

// handleTree handles GET /api/tree.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.source.Tree()
	if err != nil {
		s.logger.Error("failed to scan workspace", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TreeResponse(nodes))
}

// handleChildren handles GET /api/children?path=.
// Returns 404 when the decision entry has no fixture directory.
func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	children, ok := s.source.Children(entry)
	if !ok {
		writeError(w, http.StatusNotFound, "no fixture directory for "+entry.Name)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse(children))
}

// handleValidate handles POST /api/validate?path=.
// The validation runs in the background; the response is sent once its
// run has started and names the surface and run number.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}

	surface := s.surfaces.Acquire(entry.Path)
	sink := newRunSink(surface)
	go func() {
		if err := s.validator.Validate(s.runCtx, entry.Path, sink); err != nil {
			s.logger.Error("validation failed", "path", entry.Path, "error", err)
			sink.Begin()
			sink.AppendLine("error: " + err.Error())
			sink.Finish(err)
		}
	}()

	var run int
	select {
	case run = <-sink.started:
	case <-r.Context().Done():
		return
	}

	s.logger.Info("validation requested", "path", entry.Path, "run", run)
	if s.notifyTUI != nil {
		s.notifyTUI(events.OutputUpdatedMsg{Surface: surface.Name()})
	}
	writeJSON(w, http.StatusAccepted, ValidateResponse{Surface: surface.Name(), Run: run})
}

// handleOutput handles GET /api/output?name=[&run=].
// With run, only that run's lines and outcome are returned.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	surface, ok := s.surface(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("run")
	if raw == "" {
		writeJSON(w, http.StatusOK, surface.Snapshot())
		return
	}
	run, err := strconv.Atoi(raw)
	if err != nil || run < 1 {
		writeError(w, http.StatusBadRequest, "run must be a positive integer")
		return
	}
	snap, ok := surface.RunSnapshot(run)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListOutputs handles GET /api/outputs, most recently used first.
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	out := make([]output.Snapshot, 0, s.surfaces.Len())
	for _, name := range s.surfaces.Names() {
		if surface, ok := s.surfaces.Get(name); ok {
			snap := surface.Snapshot()
			snap.Lines = nil
			out = append(out, snap)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup resolves the path query parameter to a decision entry, writing
// the error response itself when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (explorer.Entry, bool) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return explorer.Entry{}, false
	}
	entry, err := s.source.Lookup(path)
	switch {
	case err == nil:
		return entry, true
	case errors.Is(err, explorer.ErrNotDecision):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return explorer.Entry{}, false
}

func (s *Server) surface(w http.ResponseWriter, r *http.Request) (*output.Surface, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return nil, false
	}
	surface, ok := s.surfaces.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "surface not found")
		return nil, false
	}
	return surface, true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
