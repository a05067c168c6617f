package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/livetemplate/composer"
	"github.com/livetemplate/composer/internal/block"
	"github.com/livetemplate/composer/internal/export"
	"github.com/livetemplate/composer/internal/logger"
	"github.com/livetemplate/composer/internal/registry"
	"github.com/livetemplate/composer/internal/section"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

type sectionView struct {
	ID      section.Key `json:"id"`
	Label   string      `json:"label"`
	Enabled bool        `json:"enabled"`
}

type sectionsResponse struct {
	Template string        `json:"template"`
	State    section.State `json:"state"`
	Sections []sectionView `json:"sections"`
	Status   string        `json:"status,omitempty"`
}

type blocksResponse struct {
	Workspace string        `json:"workspace"`
	Blocks    []block.Block `json:"blocks"`
	Status    string        `json:"status,omitempty"`
	// Block is the block a request created.
	Block *block.Block `json:"block,omitempty"`
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	free, _ := strconv.ParseBool(q.Get("free"))
	list := s.opts.Registry.List(registry.Filter{
		Category: q.Get("category"),
		FreeOnly: free,
		Query:    q.Get("q"),
		Sort:     q.Get("sort"),
	})
	writeJSON(w, http.StatusOK, map[string]any{"templates": list, "categories": registry.Categories})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.opts.Registry.Get(r.PathValue("template"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) writeSections(w http.ResponseWriter, e *composer.SectionEditor) {
	st := e.State()
	schema := e.Template().Schema()
	views := make([]sectionView, 0, len(st.Order))
	for _, k := range st.Order {
		views = append(views, sectionView{ID: k, Label: schema.Label(k), Enabled: st.Enabled[k]})
	}
	writeJSON(w, http.StatusOK, sectionsResponse{
		Template: st.TemplateKey,
		State:    st,
		Sections: views,
		Status:   e.Status(),
	})
}

// openEditor resolves the {template} path value against the registry.
// Unknown slugs are 404 and never open an editor.
func (s *Server) openEditor(w http.ResponseWriter, r *http.Request) (*composer.SectionEditor, bool) {
	slug := r.PathValue("template")
	if _, ok := s.opts.Registry.Get(slug); !ok {
		writeError(w, http.StatusNotFound, "template not found: "+slug)
		return nil, false
	}
	return s.editor(r.Context(), slug), true
}

func (s *Server) handleGetSections(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.openEditor(w, r); ok {
		s.writeSections(w, e)
	}
}

func (s *Server) handlePutSections(w http.ResponseWriter, r *http.Request) {
	var st section.State
	if !decode(w, r, &st) {
		return
	}
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	e.Replace(st)
	s.writeSections(w, e)
}

func (s *Server) handleClearSections(w http.ResponseWriter, r *http.Request) {
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	e.Clear(r.Context())
	s.writeSections(w, e)
}

func (s *Server) handleToggleSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      section.Key `json:"id"`
		Enabled *bool       `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	if _, ok := e.State().Enabled[req.ID]; !ok {
		writeError(w, http.StatusBadRequest, "unknown section: "+string(req.ID))
		return
	}
	if req.Enabled == nil {
		e.Toggle(req.ID)
	} else {
		e.SetEnabled(req.ID, *req.Enabled)
	}
	s.writeSections(w, e)
}

func (s *Server) handleMoveSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    section.Key `json:"id"`
		Delta int         `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	e.MoveToIndex(req.ID, req.Delta)
	s.writeSections(w, e)
}

func (s *Server) handleDragSection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string      `json:"action"`
		ID     section.Key `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	switch req.Action {
	case "begin":
		e.BeginDrag(req.ID)
	case "drop":
		e.Drop(req.ID)
	case "cancel":
		e.CancelDrag()
	default:
		writeError(w, http.StatusBadRequest, "action must be begin, drop or cancel")
		return
	}
	s.writeSections(w, e)
}

func (s *Server) handleResetSections(w http.ResponseWriter, r *http.Request) {
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	e.Reset()
	s.writeSections(w, e)
}

func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	body, err := e.Preview("/ws/templates/" + r.PathValue("template"))
	s.writeHTML(w, body, err)
}

func (s *Server) handleExportTemplate(w http.ResponseWriter, r *http.Request) {
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	a, err := e.Export()
	s.writeArtifact(w, a, err)
}

func (s *Server) handleTemplateSocket(w http.ResponseWriter, r *http.Request) {
	e, ok := s.openEditor(w, r)
	if !ok {
		return
	}
	slug := r.PathValue("template")
	var initial *Message
	if frag, err := e.Fragment(); err == nil {
		initial = &Message{Action: "render", HTML: string(frag), Status: e.Status()}
	}
	s.hub.Serve(w, r, templateChannel(slug), initial)
}

// openWorkspace validates the {ws} path value.
func (s *Server) openWorkspace(w http.ResponseWriter, r *http.Request) (*composer.Workspace, bool) {
	name := r.PathValue("ws")
	if !namePattern.MatchString(name) {
		writeError(w, http.StatusBadRequest, "invalid workspace name")
		return nil, false
	}
	return s.workspace(r.Context(), name), true
}

func writeBlocks(w http.ResponseWriter, status int, ws *composer.Workspace) {
	writeJSON(w, status, blocksResponse{Workspace: ws.Name(), Blocks: ws.Blocks(), Status: ws.Status()})
}

func (s *Server) handleGetBlocks(w http.ResponseWriter, r *http.Request) {
	if ws, ok := s.openWorkspace(w, r); ok {
		writeBlocks(w, http.StatusOK, ws)
	}
}

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Type block.Type `json:"type"`
	}
	if !decode(w, r, &req) {
		return
	}
	b, ok := ws.Add(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown block type: "+string(req.Type))
		return
	}
	writeJSON(w, http.StatusCreated, blocksResponse{Workspace: ws.Name(), Blocks: ws.Blocks(), Status: ws.Status(), Block: &b})
}

func (s *Server) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if _, found := block.Find(ws.Blocks(), id); !found {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if !ws.UpdateField(id, req.Field, req.Value) {
		writeError(w, http.StatusBadRequest, "field "+strconv.Quote(req.Field)+" cannot take that value")
		return
	}
	writeBlocks(w, http.StatusOK, ws)
}

func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	if !ws.Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeBlocks(w, http.StatusOK, ws)
}

func (s *Server) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction string `json:"direction"`
		Delta     int    `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if _, found := block.Find(ws.Blocks(), id); !found {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if req.Direction != "" {
		dir, err := block.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ws.Move(id, dir)
	} else {
		ws.MoveToIndex(id, req.Delta)
	}
	writeBlocks(w, http.StatusOK, ws)
}

func (s *Server) handleDragBlock(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
		ID     string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	switch req.Action {
	case "begin":
		ws.BeginDrag(req.ID)
	case "drop":
		ws.Drop(req.ID)
	case "cancel":
		ws.CancelDrag()
	default:
		writeError(w, http.StatusBadRequest, "action must be begin, drop or cancel")
		return
	}
	writeBlocks(w, http.StatusOK, ws)
}

func (s *Server) handlePreviewWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	body, err := ws.Preview("/ws/" + ws.Name())
	s.writeHTML(w, body, err)
}

func (s *Server) handleExportWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	a, err := ws.Export()
	s.writeArtifact(w, a, err)
}

func (s *Server) handleWorkspaceSocket(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var initial *Message
	if frag, err := ws.Fragment(); err == nil {
		initial = &Message{Action: "render", HTML: string(frag), Status: ws.Status()}
	}
	s.hub.Serve(w, r, workspaceChannel(ws.Name()), initial)
}

func (s *Server) writeHTML(w http.ResponseWriter, body []byte, err error) {
	if err != nil {
		s.log.Error("render failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) writeArtifact(w http.ResponseWriter, a *export.Artifact, err error) {
	if err != nil {
		s.log.Error("export failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	if err := export.Render(w, a); err != nil {
		s.log.Warn("export download interrupted", logger.Error(err))
	}
}
