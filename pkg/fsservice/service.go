package fsservice

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/containerfs"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/storage"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// ContainerFS is the content side of the VFS, implemented by
// containerfs.Client. Tests substitute an in-memory tree.
type ContainerFS interface {
	Stat(ctx context.Context, userID, p string) (*containerfs.Entry, error)
	Exists(ctx context.Context, userID, p string) (bool, error)
	List(ctx context.Context, userID, p string) ([]*containerfs.Entry, error)
	Tree(ctx context.Context, userID, p string) (*containerfs.Entry, error)
	Search(ctx context.Context, userID, scope, query string) ([]*containerfs.Entry, error)
	CreateFile(ctx context.Context, userID, p string) error
	CreateDir(ctx context.Context, userID, p string) error
	EnsureDir(ctx context.Context, userID, p string) error
	Move(ctx context.Context, userID, src, dst string) error
	Copy(ctx context.Context, userID, src, dst string) error
	Delete(ctx context.Context, userID, p string) error
	MoveToTrash(ctx context.Context, userID, p string) (string, error)
	EmptyTrash(ctx context.Context, userID string) (int, error)
	ReadFile(ctx context.Context, userID, p string) (*containerfs.FileContent, error)
	WriteFile(ctx context.Context, userID, p string, content []byte) error
	UniqueName(ctx context.Context, userID, parent, base string) (string, error)
}

// Service orchestrates content and metadata for the VFS API
type Service struct {
	fs     ContainerFS
	store  storage.Store
	logger zerolog.Logger
}

// NewService creates the filesystem service
func NewService(fs ContainerFS, store storage.Store) *Service {
	return &Service{fs: fs, store: store, logger: log.WithComponent("fsservice")}
}

// Listing is a directory listing response
type Listing struct {
	Parent   *types.FileNode   `json:"parent"`
	Children []*types.FileNode `json:"children"`
	Total    int               `json:"total"`
}

// MoveResult reports a relocation
type MoveResult struct {
	OldPath string          `json:"old_path"`
	NewPath string          `json:"new_path"`
	Node    *types.FileNode `json:"node"`
}

// BulkFailure is one failed entry of a bulk operation
type BulkFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BulkResult summarizes a bulk operation; bulk operations never stop
// at the first failure.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// FileContent is a text file read response
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// PositionUpdate sets a node's desktop coordinates
type PositionUpdate struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// node merges a container-side entry with an optional metadata row
func node(userID string, e *containerfs.Entry, meta *types.NodeMetadata) *types.FileNode {
	created, modified := e.CreatedAt, e.ModifiedAt
	n := &types.FileNode{
		ID:        types.NodeID(userID, e.Path),
		Name:      e.Name,
		Path:      e.Path,
		NodeType:  e.NodeType,
		MimeType:  e.MimeType,
		Size:      e.Size,
		CreatedAt: &created,
		UpdatedAt: &modified,
	}
	if meta != nil {
		n.DesktopX = meta.DesktopX
		n.DesktopY = meta.DesktopY
		n.IsTrashed = meta.IsTrashed
		n.OriginalPath = meta.OriginalPath
		n.TrashedAt = meta.TrashedAt
	}
	return n
}

// findMeta returns the metadata row for a path, nil when absent
func (s *Service) findMeta(userID, p string) *types.NodeMetadata {
	meta, err := s.store.FindNodeMeta(userID, p)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Str("path", p).Msg("Failed to read node metadata")
		}
		return nil
	}
	return meta
}

// GetTree returns the full tree rooted at the user's home, overlaid
// with desktop positions.
func (s *Service) GetTree(ctx context.Context, userID string) (*types.FileNode, error) {
	root, err := s.fs.Tree(ctx, userID, "/")
	if err != nil {
		return nil, err
	}

	positions, err := s.store.ListNodeMetaWithDesktopPos(userID)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*types.NodeMetadata, len(positions))
	for _, meta := range positions {
		byPath[meta.Path] = meta
	}

	var build func(e *containerfs.Entry) *types.FileNode
	build = func(e *containerfs.Entry) *types.FileNode {
		n := node(userID, e, byPath[e.Path])
		for _, child := range e.Children {
			n.Children = append(n.Children, build(child))
		}
		return n
	}
	return build(root), nil
}

// GetNode stats a single node
func (s *Service) GetNode(ctx context.Context, userID, p string) (*types.FileNode, error) {
	entry, err := s.fs.Stat(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	return node(userID, entry, s.findMeta(userID, entry.Path)), nil
}

// ListDirectory lists a directory's children sorted by the requested
// key. Empty sort parameters default to name ascending.
func (s *Service) ListDirectory(ctx context.Context, userID, p, sortBy, sortDir string) (*Listing, error) {
	parent, err := s.fs.Stat(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if parent.NodeType != types.NodeTypeDirectory {
		return nil, apperr.New(apperr.ValidationFailed, "Path is not a directory")
	}

	entries, err := s.fs.List(ctx, userID, p)
	if err != nil {
		return nil, err
	}

	children := make([]*types.FileNode, 0, len(entries))
	for _, e := range entries {
		children = append(children, node(userID, e, s.findMeta(userID, e.Path)))
	}
	if err := sortNodes(children, sortBy, sortDir); err != nil {
		return nil, err
	}

	return &Listing{
		Parent:   node(userID, parent, s.findMeta(userID, parent.Path)),
		Children: children,
		Total:    len(children),
	}, nil
}

func sortNodes(nodes []*types.FileNode, sortBy, sortDir string) error {
	if sortBy == "" {
		sortBy = "name"
	}
	if sortDir == "" {
		sortDir = "asc"
	}
	if sortDir != "asc" && sortDir != "desc" {
		return apperr.New(apperr.ValidationFailed, "sort_dir must be asc or desc")
	}

	var less func(a, b *types.FileNode) bool
	switch sortBy {
	case "name":
		less = func(a, b *types.FileNode) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	case "size":
		less = func(a, b *types.FileNode) bool { return a.Size < b.Size }
	case "created_at":
		less = func(a, b *types.FileNode) bool { return a.CreatedAt.Before(*b.CreatedAt) }
	case "updated_at":
		less = func(a, b *types.FileNode) bool { return a.UpdatedAt.Before(*b.UpdatedAt) }
	default:
		return apperr.New(apperr.ValidationFailed, "sort_by must be one of name, size, created_at, updated_at")
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		if sortDir == "desc" {
			return less(nodes[j], nodes[i])
		}
		return less(nodes[i], nodes[j])
	})
	return nil
}

// Search returns nodes under scope whose name contains the query,
// case-insensitively, capped at the search limit.
func (s *Service) Search(ctx context.Context, userID, query, scope string) ([]*types.FileNode, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.ValidationFailed, "Search query must not be empty")
	}
	if scope == "" {
		scope = "/"
	}

	entries, err := s.fs.Search(ctx, userID, scope, query)
	if err != nil {
		return nil, err
	}
	results := make([]*types.FileNode, 0, len(entries))
	for _, e := range entries {
		results = append(results, node(userID, e, s.findMeta(userID, e.Path)))
	}
	return results, nil
}

// ReadFile returns a file's UTF-8 content
func (s *Service) ReadFile(ctx context.Context, userID, p string) (*FileContent, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	content, err := s.fs.ReadFile(ctx, userID, clean)
	if err != nil {
		return nil, err
	}
	return &FileContent{
		Path:     clean,
		Content:  content.Content,
		MimeType: content.MimeType,
		Size:     content.Size,
	}, nil
}

// WriteFile writes content to a file, creating missing parents, and
// returns the resulting node.
func (s *Service) WriteFile(ctx context.Context, userID, p string, content []byte) (*types.FileNode, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if clean == "/" {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot write to the root directory")
	}
	if err := s.fs.WriteFile(ctx, userID, clean, content); err != nil {
		return nil, err
	}
	return s.GetNode(ctx, userID, clean)
}

// UpdateDesktopPositions records desktop coordinates per path. Paths
// that no longer exist are skipped, not failed.
func (s *Service) UpdateDesktopPositions(ctx context.Context, userID string, updates []PositionUpdate) ([]*types.FileNode, error) {
	updated := make([]*types.FileNode, 0, len(updates))
	for _, update := range updates {
		entry, err := s.fs.Stat(ctx, userID, update.Path)
		if err != nil {
			if apperr.Is(err, apperr.NotFound) {
				continue
			}
			return nil, err
		}

		x, y := update.X, update.Y
		meta := &types.NodeMetadata{
			UserID:   userID,
			Path:     entry.Path,
			Name:     entry.Name,
			NodeType: entry.NodeType,
			MimeType: entry.MimeType,
			Size:     entry.Size,
			DesktopX: &x,
			DesktopY: &y,
		}
		if existing := s.findMeta(userID, entry.Path); existing != nil {
			meta.IsTrashed = existing.IsTrashed
			meta.OriginalPath = existing.OriginalPath
			meta.TrashedAt = existing.TrashedAt
			meta.CreatedAt = existing.CreatedAt
		}
		if err := s.store.UpsertNodeMeta(meta); err != nil {
			return nil, err
		}
		updated = append(updated, node(userID, entry, meta))
	}
	return updated, nil
}
