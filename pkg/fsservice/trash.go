package fsservice

import (
	"context"
	"time"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/containerfs"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// DeleteResult reports a deletion; Path is the trashed location for a
// soft delete and the removed path for a permanent one.
type DeleteResult struct {
	Path      string `json:"path"`
	Permanent bool   `json:"permanent"`
}

// DeleteNode removes a node. A permanent delete drops content and all
// metadata under the path. A soft delete moves the node into the trash
// and records where it came from.
func (s *Service) DeleteNode(ctx context.Context, userID, p string, permanent bool) (*DeleteResult, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if clean == "/" {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot delete the root directory")
	}

	if permanent {
		if err := s.fs.Delete(ctx, userID, clean); err != nil {
			return nil, err
		}
		if err := s.store.DeleteNodeMetaTree(userID, clean); err != nil {
			return nil, err
		}
		return &DeleteResult{Path: clean, Permanent: true}, nil
	}

	entry, err := s.fs.Stat(ctx, userID, clean)
	if err != nil {
		return nil, err
	}

	trashed, err := s.fs.MoveToTrash(ctx, userID, clean)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteNodeMetaTree(userID, clean); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	meta := &types.NodeMetadata{
		UserID:       userID,
		Path:         trashed,
		Name:         containerfs.Base(trashed),
		NodeType:     entry.NodeType,
		MimeType:     entry.MimeType,
		Size:         entry.Size,
		IsTrashed:    true,
		OriginalPath: clean,
		TrashedAt:    &now,
	}
	if err := s.store.UpsertNodeMeta(meta); err != nil {
		return nil, err
	}
	return &DeleteResult{Path: trashed, Permanent: false}, nil
}

// BulkDelete deletes each path, collecting per-path outcomes
func (s *Service) BulkDelete(ctx context.Context, userID string, paths []string, permanent bool) *BulkResult {
	result := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, p := range paths {
		if _, err := s.DeleteNode(ctx, userID, p, permanent); err != nil {
			result.Failed = append(result.Failed, BulkFailure{Path: p, Error: apperr.DetailOf(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, p)
	}
	return result
}

// ListTrash returns the trash directory's children joined with their
// provenance metadata.
func (s *Service) ListTrash(ctx context.Context, userID string) ([]*types.FileNode, error) {
	entries, err := s.fs.List(ctx, userID, containerfs.TrashDir)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			// trash not created yet means an empty trash
			return []*types.FileNode{}, nil
		}
		return nil, err
	}

	trashed, err := s.store.ListNodeMetaTrashed(userID)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*types.NodeMetadata, len(trashed))
	for _, meta := range trashed {
		byPath[meta.Path] = meta
	}

	nodes := make([]*types.FileNode, 0, len(entries))
	for _, e := range entries {
		n := node(userID, e, byPath[e.Path])
		n.IsTrashed = true
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// RestoreNode moves a trashed node back to where it came from,
// suffixing the name if the original location grew a collision.
func (s *Service) RestoreNode(ctx context.Context, userID, p string) (*MoveResult, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}

	meta := s.findMeta(userID, clean)
	if meta == nil || !meta.IsTrashed {
		return nil, apperr.New(apperr.NotFound, "No trashed node at that path")
	}
	if meta.OriginalPath == "" {
		return nil, apperr.New(apperr.ValidationFailed, "Trashed node has no original path")
	}

	targetParent := containerfs.Dir(meta.OriginalPath)
	if err := s.fs.EnsureDir(ctx, userID, targetParent); err != nil {
		return nil, err
	}

	unique, err := s.fs.UniqueName(ctx, userID, targetParent, containerfs.Base(meta.OriginalPath))
	if err != nil {
		return nil, err
	}
	newPath := containerfs.Join(targetParent, unique)

	if err := s.fs.Move(ctx, userID, clean, newPath); err != nil {
		return nil, err
	}
	if err := s.store.DeleteNodeMeta(userID, clean); err != nil {
		return nil, err
	}

	n, err := s.GetNode(ctx, userID, newPath)
	if err != nil {
		return nil, err
	}
	return &MoveResult{OldPath: clean, NewPath: newPath, Node: n}, nil
}

// EmptyTrash removes everything in the trash, content and metadata,
// and returns the number of top-level nodes removed.
func (s *Service) EmptyTrash(ctx context.Context, userID string) (int, error) {
	count, err := s.fs.EmptyTrash(ctx, userID)
	if err != nil {
		return 0, err
	}
	if _, err := s.store.DeleteAllTrashMeta(userID); err != nil {
		return 0, err
	}
	return count, nil
}
