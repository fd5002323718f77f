package api

import (
	"net/http"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/fsservice"
	"github.com/aisu-run/aisu-core/pkg/types"
)

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	root, err := s.fs.GetTree(r.Context(), userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.fs.GetNode(r.Context(), userFrom(r).ID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := s.fs.ListDirectory(r.Context(), userFrom(r).ID,
		q.Get("path"), q.Get("sort_by"), q.Get("sort_dir"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parent string `json:"parent"`
		Name   string `json:"name"`
		Type   string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, err := s.fs.CreateNode(r.Context(), userFrom(r).ID, req.Parent, req.Name, types.NodeType(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		NewName string `json:"new_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.fs.RenameNode(r.Context(), userFrom(r).ID, req.Path, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Src        string `json:"src"`
		DestParent string `json:"dest_parent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.fs.MoveNode(r.Context(), userFrom(r).ID, req.Src, req.DestParent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Src        string `json:"src"`
		DestParent string `json:"dest_parent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.fs.CopyNode(r.Context(), userFrom(r).ID, req.Src, req.DestParent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		Permanent bool   `json:"permanent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.fs.DeleteNode(r.Context(), userFrom(r).ID, req.Path, req.Permanent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths     []string `json:"paths"`
		Permanent bool     `json:"permanent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, apperr.New(apperr.ValidationFailed, "paths must not be empty"))
		return
	}

	writeJSON(w, http.StatusOK, s.fs.BulkDelete(r.Context(), userFrom(r).ID, req.Paths, req.Permanent))
}

func (s *Server) handleBulkMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sources []string `json:"sources"`
		Dest    string   `json:"dest"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Sources) == 0 {
		writeError(w, apperr.New(apperr.ValidationFailed, "sources must not be empty"))
		return
	}

	writeJSON(w, http.StatusOK, s.fs.BulkMove(r.Context(), userFrom(r).ID, req.Sources, req.Dest))
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.fs.ListTrash(r.Context(), userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "total": len(nodes)})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.fs.RestoreNode(r.Context(), userFrom(r).ID, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	count, err := s.fs.EmptyTrash(r.Context(), userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

func (s *Server) handleDesktopPositions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positions []fsservice.PositionUpdate `json:"positions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	nodes, err := s.fs.UpdateDesktopPositions(r.Context(), userFrom(r).ID, req.Positions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nodes, err := s.fs.Search(r.Context(), userFrom(r).ID, q.Get("q"), q.Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "total": len(nodes)})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	content, err := s.fs.ReadFile(r.Context(), userFrom(r).ID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, err := s.fs.WriteFile(r.Context(), userFrom(r).ID, req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}
