package fsservice

import (
	"context"
	"strings"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/containerfs"
	"github.com/aisu-run/aisu-core/pkg/types"
)

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return apperr.New(apperr.ValidationFailed, "Invalid node name")
	}
	if strings.ContainsAny(name, "/\x00") {
		return apperr.New(apperr.ValidationFailed, "Node name must not contain '/'")
	}
	if len(name) > 255 {
		return apperr.New(apperr.ValidationFailed, "Node name is too long")
	}
	return nil
}

// statDirectory verifies that a path exists and is a directory
func (s *Service) statDirectory(ctx context.Context, userID, p string) (*containerfs.Entry, error) {
	entry, err := s.fs.Stat(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if entry.NodeType != types.NodeTypeDirectory {
		return nil, apperr.New(apperr.ValidationFailed, "Destination is not a directory")
	}
	return entry, nil
}

// CreateNode creates a file or directory under parent. A colliding
// name is silently suffixed to the first free "name N".
func (s *Service) CreateNode(ctx context.Context, userID, parent, name string, nodeType types.NodeType) (*types.FileNode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if nodeType != types.NodeTypeFile && nodeType != types.NodeTypeDirectory {
		return nil, apperr.New(apperr.ValidationFailed, "type must be file or directory")
	}

	parentEntry, err := s.statDirectory(ctx, userID, parent)
	if err != nil {
		return nil, err
	}

	unique, err := s.fs.UniqueName(ctx, userID, parentEntry.Path, name)
	if err != nil {
		return nil, err
	}
	newPath := containerfs.Join(parentEntry.Path, unique)

	if nodeType == types.NodeTypeDirectory {
		err = s.fs.CreateDir(ctx, userID, newPath)
	} else {
		err = s.fs.CreateFile(ctx, userID, newPath)
	}
	if err != nil {
		return nil, err
	}
	return s.GetNode(ctx, userID, newPath)
}

// RenameNode renames a node within its parent. Unlike every other
// mutation, a name collision here is a conflict, not a silent suffix.
func (s *Service) RenameNode(ctx context.Context, userID, p, newName string) (*MoveResult, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if clean == "/" {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot rename the root directory")
	}
	if err := validateName(newName); err != nil {
		return nil, err
	}

	newPath := containerfs.Join(containerfs.Dir(clean), newName)
	if newPath != clean {
		exists, err := s.fs.Exists(ctx, userID, newPath)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.New(apperr.Conflict, "A node with that name already exists")
		}
	}

	if err := s.fs.Move(ctx, userID, clean, newPath); err != nil {
		return nil, err
	}
	if err := s.store.RenameNodeMetaTree(userID, clean, newPath); err != nil {
		return nil, err
	}

	n, err := s.GetNode(ctx, userID, newPath)
	if err != nil {
		return nil, err
	}
	return &MoveResult{OldPath: clean, NewPath: newPath, Node: n}, nil
}

// MoveNode relocates src under destParent, suffixing the name on
// collision. Moving a directory into itself or a descendant is
// rejected.
func (s *Service) MoveNode(ctx context.Context, userID, src, destParent string) (*MoveResult, error) {
	cleanSrc, err := containerfs.Normalize(src)
	if err != nil {
		return nil, err
	}
	cleanDest, err := containerfs.Normalize(destParent)
	if err != nil {
		return nil, err
	}
	if cleanSrc == "/" {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot move the root directory")
	}
	if cleanDest == cleanSrc || strings.HasPrefix(cleanDest, cleanSrc+"/") {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot move a directory into itself")
	}

	if _, err := s.fs.Stat(ctx, userID, cleanSrc); err != nil {
		return nil, err
	}
	if _, err := s.statDirectory(ctx, userID, cleanDest); err != nil {
		return nil, err
	}

	base := containerfs.Base(cleanSrc)
	unique, err := s.fs.UniqueName(ctx, userID, cleanDest, base)
	if err != nil {
		return nil, err
	}

	moveFrom := cleanSrc
	if unique != base {
		// rename in place first so the final move is a plain relocation
		renamed := containerfs.Join(containerfs.Dir(cleanSrc), unique)
		if err := s.fs.Move(ctx, userID, cleanSrc, renamed); err != nil {
			return nil, err
		}
		moveFrom = renamed
	}

	newPath := containerfs.Join(cleanDest, unique)
	if err := s.fs.Move(ctx, userID, moveFrom, newPath); err != nil {
		return nil, err
	}
	if err := s.store.RenameNodeMetaTree(userID, cleanSrc, newPath); err != nil {
		return nil, err
	}

	n, err := s.GetNode(ctx, userID, newPath)
	if err != nil {
		return nil, err
	}
	return &MoveResult{OldPath: cleanSrc, NewPath: newPath, Node: n}, nil
}

// CopyNode copies src under destParent, recursively for directories.
// Metadata is not copied; the new subtree starts unannotated.
func (s *Service) CopyNode(ctx context.Context, userID, src, destParent string) (*MoveResult, error) {
	cleanSrc, err := containerfs.Normalize(src)
	if err != nil {
		return nil, err
	}
	cleanDest, err := containerfs.Normalize(destParent)
	if err != nil {
		return nil, err
	}
	if cleanSrc == "/" {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot copy the root directory")
	}
	if cleanDest == cleanSrc || strings.HasPrefix(cleanDest, cleanSrc+"/") {
		return nil, apperr.New(apperr.ValidationFailed, "Cannot copy a directory into itself")
	}

	if _, err := s.fs.Stat(ctx, userID, cleanSrc); err != nil {
		return nil, err
	}
	if _, err := s.statDirectory(ctx, userID, cleanDest); err != nil {
		return nil, err
	}

	unique, err := s.fs.UniqueName(ctx, userID, cleanDest, containerfs.Base(cleanSrc))
	if err != nil {
		return nil, err
	}
	newPath := containerfs.Join(cleanDest, unique)

	if err := s.fs.Copy(ctx, userID, cleanSrc, newPath); err != nil {
		return nil, err
	}

	n, err := s.GetNode(ctx, userID, newPath)
	if err != nil {
		return nil, err
	}
	return &MoveResult{OldPath: cleanSrc, NewPath: newPath, Node: n}, nil
}

// BulkMove moves each source under dest, collecting per-path outcomes
func (s *Service) BulkMove(ctx context.Context, userID string, sources []string, dest string) *BulkResult {
	result := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, src := range sources {
		if _, err := s.MoveNode(ctx, userID, src, dest); err != nil {
			result.Failed = append(result.Failed, BulkFailure{Path: src, Error: apperr.DetailOf(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, src)
	}
	return result
}
