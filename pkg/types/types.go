package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// nodeIDNamespace is the fixed UUIDv5 namespace for filesystem node ids.
// Node identity must be a pure function of (user, path) so that clients
// see stable ids across reloads and across processes.
var nodeIDNamespace = uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

// NodeID derives the deterministic id for a user's filesystem node.
func NodeID(userID, path string) string {
	return uuid.NewSHA1(nodeIDNamespace, []byte(userID+":"+path)).String()
}

// Role defines a user's access level
type Role string

const (
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

// User represents an end-user identity
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Wallpaper    string    `json:"wallpaper,omitempty"`
	CPU          int       `json:"cpu"`
	DiskMB       int64     `json:"disk_mb"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ContainerStatus represents the persisted state of a user's container
type ContainerStatus string

const (
	ContainerStatusCreating ContainerStatus = "creating"
	ContainerStatusRunning  ContainerStatus = "running"
	ContainerStatusStopped  ContainerStatus = "stopped"
	ContainerStatusError    ContainerStatus = "error"
	ContainerStatusRemoved  ContainerStatus = "removed"

	// ContainerStatusUnreachable is reported (never persisted) when the
	// runtime cannot be inspected.
	ContainerStatusUnreachable ContainerStatus = "unreachable"
)

// ContainerName derives the deterministic engine name for a user's container.
// The name never changes for the lifetime of the user.
func ContainerName(userID string) string {
	return "aisu_" + userID
}

// ContainerHostname derives the hostname set inside a user's container.
func ContainerHostname(userID string) string {
	id := strings.ReplaceAll(userID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "aisu-" + id
}

// ContainerRecord is the one-to-one persisted record for a user's container
type ContainerRecord struct {
	UserID        string          `json:"user_id"`
	ContainerID   string          `json:"container_id,omitempty"` // engine id, empty until first create
	ContainerName string          `json:"container_name"`
	IPAddress     string          `json:"ip_address,omitempty"`
	Status        ContainerStatus `json:"status"`
	CPULimit      int             `json:"cpu_limit"`
	RAMLimitBytes int64           `json:"ram_limit_bytes"`
	DiskLimitMB   int64           `json:"disk_limit_mb"`
	NetworkRate   string          `json:"network_rate,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	LastActivity  *time.Time      `json:"last_activity,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ContainerEventType enumerates lifecycle events
type ContainerEventType string

const (
	EventCreating ContainerEventType = "creating"
	EventCreated  ContainerEventType = "created"
	EventStarted  ContainerEventType = "started"
	EventStopped  ContainerEventType = "stopped"
	EventError    ContainerEventType = "error"
)

// ContainerEvent is an append-only audit record. Nothing reads these to
// drive control flow.
type ContainerEvent struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	EventType ContainerEventType `json:"event_type"`
	Details   string             `json:"details,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// NodeType distinguishes files from directories
type NodeType string

const (
	NodeTypeFile      NodeType = "file"
	NodeTypeDirectory NodeType = "directory"
)

// NodeMetadata holds the out-of-container annotations for a filesystem
// node: desktop position and trash provenance. Content itself lives in
// the container; metadata survives re-provisioning.
type NodeMetadata struct {
	ID           string     `json:"id"` // UUIDv5 of (user, path)
	UserID       string     `json:"user_id"`
	Path         string     `json:"path"`
	Name         string     `json:"name"`
	NodeType     NodeType   `json:"node_type"`
	MimeType     string     `json:"mime_type,omitempty"`
	Size         int64      `json:"size"`
	IsTrashed    bool       `json:"is_trashed"`
	OriginalPath string     `json:"original_path,omitempty"`
	TrashedAt    *time.Time `json:"trashed_at,omitempty"`
	DesktopX     *int       `json:"desktop_x,omitempty"`
	DesktopY     *int       `json:"desktop_y,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FileNode is the outward representation of a filesystem node: the
// container-side stat merged with any metadata annotations.
type FileNode struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	NodeType     NodeType    `json:"node_type"`
	MimeType     string      `json:"mime_type,omitempty"`
	Size         int64       `json:"size"`
	IsTrashed    bool        `json:"is_trashed"`
	OriginalPath string      `json:"original_path,omitempty"`
	TrashedAt    *time.Time  `json:"trashed_at,omitempty"`
	DesktopX     *int        `json:"desktop_x,omitempty"`
	DesktopY     *int        `json:"desktop_y,omitempty"`
	CreatedAt    *time.Time  `json:"created_at,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
	Children     []*FileNode `json:"children,omitempty"`
}

// BetaToken is a single-use invite token, stored hashed
type BetaToken struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	TokenHash string     `json:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
