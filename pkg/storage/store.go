package storage

import (
	"errors"

	"github.com/aisu-run/aisu-core/pkg/types"
)

var (
	// ErrNotFound is wrapped by lookups that miss
	ErrNotFound = errors.New("record not found")

	// ErrConflict is wrapped when a unique constraint is violated
	ErrConflict = errors.New("record already exists")
)

// Store defines the interface for metadata persistence: users, container
// records and events, filesystem node annotations, and beta tokens.
// Implemented by BoltDB-backed storage.
type Store interface {
	// Users
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	GetUserByEmail(email string) (*types.User, error)
	UpdateUser(user *types.User) error
	DeleteUser(id string) error

	// Container records
	GetContainerByUser(userID string) (*types.ContainerRecord, error)
	ListContainers() ([]*types.ContainerRecord, error)
	UpsertContainer(record *types.ContainerRecord) error
	AppendContainerEvent(event *types.ContainerEvent) error
	ListContainerEvents(userID string) ([]*types.ContainerEvent, error)

	// Filesystem node metadata
	FindNodeMeta(userID, path string) (*types.NodeMetadata, error)
	UpsertNodeMeta(meta *types.NodeMetadata) error
	DeleteNodeMeta(userID, path string) error
	DeleteNodeMetaTree(userID, path string) error
	RenameNodeMetaTree(userID, oldPath, newPath string) error
	ListNodeMetaTrashed(userID string) ([]*types.NodeMetadata, error)
	ListNodeMetaWithDesktopPos(userID string) ([]*types.NodeMetadata, error)
	DeleteAllTrashMeta(userID string) (int, error)

	// Beta tokens
	CreateBetaToken(token *types.BetaToken) error
	GetBetaTokenByHash(hash string) (*types.BetaToken, error)
	UpdateBetaToken(token *types.BetaToken) error

	// Utility
	Close() error
}
