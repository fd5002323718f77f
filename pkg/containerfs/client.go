package containerfs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/runtime"
	"github.com/aisu-run/aisu-core/pkg/types"
)

const (
	// execUser is the unprivileged in-container account
	execUser = "aisu"

	// TrashDir holds soft-deleted nodes
	TrashDir = "/.Trash"

	// MaxReadSize caps readFile content
	MaxReadSize = 2 << 20

	// MaxTreeDepth clips recursive tree listings
	MaxTreeDepth = 10

	// SearchLimit caps search results
	SearchLimit = 50
)

// Entry is the container-side view of a filesystem node
type Entry struct {
	Name       string
	Path       string // VFS path
	NodeType   types.NodeType
	Size       int64
	MimeType   string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Children   []*Entry
}

// FileContent is the result of a text file read
type FileContent struct {
	Content  string
	MimeType string
	Size     int64
}

// Client executes the VFS verbs inside a user's container
type Client struct {
	rt     runtime.Runtime
	logger zerolog.Logger
}

// NewClient creates a container filesystem client
func NewClient(rt runtime.Runtime) *Client {
	return &Client{rt: rt, logger: log.WithComponent("containerfs")}
}

// entryJSON is the wire shape printed by the embedded programs
type entryJSON struct {
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	Type     string       `json:"type"`
	Size     int64        `json:"size"`
	Mime     string       `json:"mime"`
	Created  float64      `json:"created"`
	Modified float64      `json:"modified"`
	Children []*entryJSON `json:"children"`
}

type scriptResult struct {
	OK      bool         `json:"ok"`
	Error   string       `json:"error"`
	Exists  bool         `json:"exists"`
	Name    string       `json:"name"`
	Deleted int          `json:"deleted"`
	Content string       `json:"content"`
	Mime    string       `json:"mime"`
	Size    int64        `json:"size"`
	Entry   *entryJSON   `json:"entry"`
	Entries []*entryJSON `json:"entries"`
}

func epochToTime(epoch float64) time.Time {
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

func (e *entryJSON) toEntry() *Entry {
	entry := &Entry{
		Name:       e.Name,
		Path:       e.Path,
		NodeType:   types.NodeType(e.Type),
		Size:       e.Size,
		MimeType:   e.Mime,
		CreatedAt:  epochToTime(e.Created),
		ModifiedAt: epochToTime(e.Modified),
	}
	for _, child := range e.Children {
		entry.Children = append(entry.Children, child.toEntry())
	}
	return entry
}

func toEntries(wire []*entryJSON) []*Entry {
	entries := make([]*Entry, 0, len(wire))
	for _, e := range wire {
		entries = append(entries, e.toEntry())
	}
	return entries
}

// scriptError maps an error discriminant from an embedded program onto
// a structured error.
func scriptError(code string) error {
	switch code {
	case "not_found":
		return apperr.New(apperr.NotFound, "File or folder not found")
	case "permission_denied":
		return apperr.New(apperr.Forbidden, "Permission denied")
	case "not_directory":
		return apperr.New(apperr.ValidationFailed, "Path is not a directory")
	case "is_directory":
		return apperr.New(apperr.ValidationFailed, "Path is a directory")
	case "too_large":
		return apperr.New(apperr.PayloadTooLarge, "File is too large to read")
	case "binary_file":
		return apperr.New(apperr.UnsupportedMedia, "File is not valid UTF-8 text")
	case "conflict":
		return apperr.New(apperr.Conflict, "A node with that name already exists")
	default:
		return apperr.Newf(apperr.Internal, "filesystem operation failed: %s", code)
	}
}

// run executes one embedded program and decodes its JSON output
func (c *Client) run(ctx context.Context, userID, verb, script string, args []string, input []byte) (*scriptResult, error) {
	timer := metrics.NewTimer()
	outcome := "ok"
	defer func() {
		metrics.FSOperationsTotal.WithLabelValues(verb, outcome).Inc()
		timer.ObserveDuration(metrics.FSOperationDuration.WithLabelValues(verb))
	}()

	cmd := append([]string{"python3", "-c", script}, args...)
	result, err := c.rt.Exec(ctx, types.ContainerName(userID), runtime.ExecOptions{
		Cmd:   cmd,
		User:  execUser,
		Input: input,
	})
	if err != nil {
		outcome = "unavailable"
		if errors.Is(err, runtime.ErrNotFound) {
			return nil, apperr.New(apperr.Unavailable, "Container is not running")
		}
		return nil, apperr.Wrap(apperr.Unavailable, "Container is not reachable", err)
	}
	if result.ExitCode != 0 {
		outcome = "error"
		c.logger.Error().
			Str("user_id", userID).
			Str("verb", verb).
			Int("exit_code", result.ExitCode).
			Bytes("stderr", result.Stderr).
			Msg("In-container program failed")
		return nil, apperr.New(apperr.Internal, "Filesystem operation failed")
	}

	var decoded scriptResult
	if err := json.Unmarshal(result.Stdout, &decoded); err != nil {
		outcome = "error"
		return nil, apperr.Wrap(apperr.Internal, "Failed to parse filesystem response", err)
	}
	if !decoded.OK {
		outcome = decoded.Error
		return nil, scriptError(decoded.Error)
	}
	return &decoded, nil
}

// Stat returns the entry at a path
func (c *Client) Stat(ctx context.Context, userID, p string) (*Entry, error) {
	clean, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	res, err := c.run(ctx, userID, "stat", statScript, []string{BasePath, ContainerPath(clean)}, nil)
	if err != nil {
		return nil, err
	}
	return res.Entry.toEntry(), nil
}

// Exists reports whether a path exists
func (c *Client) Exists(ctx context.Context, userID, p string) (bool, error) {
	clean, err := Normalize(p)
	if err != nil {
		return false, err
	}
	res, err := c.run(ctx, userID, "exists", existsScript, []string{BasePath, ContainerPath(clean)}, nil)
	if err != nil {
		return false, err
	}
	return res.Exists, nil
}

// List returns a directory's children, directories first then
// case-insensitive by name.
func (c *Client) List(ctx context.Context, userID, p string) ([]*Entry, error) {
	clean, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	res, err := c.run(ctx, userID, "list", listScript, []string{BasePath, ContainerPath(clean)}, nil)
	if err != nil {
		return nil, err
	}
	return toEntries(res.Entries), nil
}

// Tree returns the recursive listing rooted at a path, clipped at
// MaxTreeDepth.
func (c *Client) Tree(ctx context.Context, userID, p string) (*Entry, error) {
	clean, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	res, err := c.run(ctx, userID, "tree", treeScript,
		[]string{BasePath, ContainerPath(clean), strconv.Itoa(MaxTreeDepth)}, nil)
	if err != nil {
		return nil, err
	}
	return res.Entry.toEntry(), nil
}

// Search walks the scope and returns entries whose name contains the
// query case-insensitively, capped at SearchLimit. The trash directory
// is excluded.
func (c *Client) Search(ctx context.Context, userID, scope, query string) ([]*Entry, error) {
	clean, err := Normalize(scope)
	if err != nil {
		return nil, err
	}
	res, err := c.run(ctx, userID, "search", searchScript,
		[]string{BasePath, ContainerPath(clean), query, strconv.Itoa(SearchLimit)}, nil)
	if err != nil {
		return nil, err
	}
	return toEntries(res.Entries), nil
}

// CreateFile creates an empty file; an existing node is a conflict
func (c *Client) CreateFile(ctx context.Context, userID, p string) error {
	clean, err := Normalize(p)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, userID, "create_file", createFileScript, []string{BasePath, ContainerPath(clean)}, nil)
	return err
}

// CreateDir creates a directory; an existing node is a conflict
func (c *Client) CreateDir(ctx context.Context, userID, p string) error {
	clean, err := Normalize(p)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, userID, "create_dir", createDirScript, []string{BasePath, ContainerPath(clean)}, nil)
	return err
}

// EnsureDir creates a directory and any missing parents; existing
// directories are fine.
func (c *Client) EnsureDir(ctx context.Context, userID, p string) error {
	clean, err := Normalize(p)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, userID, "ensure_dir", ensureDirScript, []string{BasePath, ContainerPath(clean)}, nil)
	return err
}

// Move relocates src to dst. An existing dst is a conflict, which
// gives rename its 409 semantics for free.
func (c *Client) Move(ctx context.Context, userID, src, dst string) error {
	cleanSrc, err := Normalize(src)
	if err != nil {
		return err
	}
	cleanDst, err := Normalize(dst)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, userID, "move", moveScript,
		[]string{BasePath, ContainerPath(cleanSrc), ContainerPath(cleanDst)}, nil)
	return err
}

// Copy copies src to dst, recursively for directories
func (c *Client) Copy(ctx context.Context, userID, src, dst string) error {
	cleanSrc, err := Normalize(src)
	if err != nil {
		return err
	}
	cleanDst, err := Normalize(dst)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, userID, "copy", copyScript,
		[]string{BasePath, ContainerPath(cleanSrc), ContainerPath(cleanDst)}, nil)
	return err
}

// Delete removes a node recursively. The root is protected.
func (c *Client) Delete(ctx context.Context, userID, p string) error {
	clean, err := Normalize(p)
	if err != nil {
		return err
	}
	if clean == "/" {
		return apperr.New(apperr.ValidationFailed, "Cannot delete the root directory")
	}
	_, err = c.run(ctx, userID, "delete", deleteScript, []string{BasePath, ContainerPath(clean)}, nil)
	return err
}

// MoveToTrash moves a node under the trash directory, suffixing the
// name on collision, and returns the trashed path.
func (c *Client) MoveToTrash(ctx context.Context, userID, p string) (string, error) {
	clean, err := Normalize(p)
	if err != nil {
		return "", err
	}
	if clean == "/" {
		return "", apperr.New(apperr.ValidationFailed, "Cannot trash the root directory")
	}
	if err := c.EnsureDir(ctx, userID, TrashDir); err != nil {
		return "", err
	}
	name, err := c.UniqueName(ctx, userID, TrashDir, Base(clean))
	if err != nil {
		return "", err
	}
	trashed := TrashDir + "/" + name
	if err := c.Move(ctx, userID, clean, trashed); err != nil {
		return "", err
	}
	return trashed, nil
}

// EmptyTrash removes every child of the trash directory and returns
// the count removed.
func (c *Client) EmptyTrash(ctx context.Context, userID string) (int, error) {
	res, err := c.run(ctx, userID, "empty_trash", emptyTrashScript,
		[]string{BasePath, ContainerPath(TrashDir)}, nil)
	if err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// ReadFile returns a file's UTF-8 content, capped at MaxReadSize
func (c *Client) ReadFile(ctx context.Context, userID, p string) (*FileContent, error) {
	clean, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	res, err := c.run(ctx, userID, "read_file", readFileScript,
		[]string{BasePath, ContainerPath(clean), strconv.Itoa(MaxReadSize)}, nil)
	if err != nil {
		return nil, err
	}
	return &FileContent{Content: res.Content, MimeType: res.Mime, Size: res.Size}, nil
}

// WriteFile writes content to a file, creating missing parents. The
// content travels over the program's stdin.
func (c *Client) WriteFile(ctx context.Context, userID, p string, content []byte) error {
	clean, err := Normalize(p)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, userID, "write_file", writeFileScript,
		[]string{BasePath, ContainerPath(clean)}, content)
	return err
}

// UniqueName returns base if no child of parent has that name, else
// the first free "base N" with N starting at 2. The counter goes after
// the whole name, extension included ("note.txt 2").
func (c *Client) UniqueName(ctx context.Context, userID, parent, base string) (string, error) {
	clean, err := Normalize(parent)
	if err != nil {
		return "", err
	}
	res, err := c.run(ctx, userID, "unique_name", uniqueNameScript,
		[]string{BasePath, ContainerPath(clean), base}, nil)
	if err != nil {
		return "", err
	}
	return res.Name, nil
}

