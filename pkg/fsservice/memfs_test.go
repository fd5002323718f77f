package fsservice

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/containerfs"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// memFS is an in-memory ContainerFS with the same semantics as the
// real in-container programs.
type memFS struct {
	nodes map[string]*memNode
}

type memNode struct {
	dir      bool
	content  []byte
	created  time.Time
	modified time.Time
}

func newMemFS() *memFS {
	fs := &memFS{nodes: make(map[string]*memNode)}
	fs.nodes["/"] = &memNode{dir: true, created: time.Now(), modified: time.Now()}
	for _, dir := range []string{"/Desktop", "/Documents", "/Downloads", "/Pictures", "/Music", "/Videos", "/.Trash"} {
		fs.nodes[dir] = &memNode{dir: true, created: time.Now(), modified: time.Now()}
	}
	return fs
}

func (f *memFS) entry(p string) *containerfs.Entry {
	n := f.nodes[p]
	nodeType := types.NodeTypeFile
	mime := "text/plain"
	if n.dir {
		nodeType = types.NodeTypeDirectory
		mime = ""
	}
	name := containerfs.Base(p)
	if p == "/" {
		name = "/"
	}
	return &containerfs.Entry{
		Name:       name,
		Path:       p,
		NodeType:   nodeType,
		Size:       int64(len(n.content)),
		MimeType:   mime,
		CreatedAt:  n.created,
		ModifiedAt: n.modified,
	}
}

func (f *memFS) children(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}
	var out []string
	for candidate := range f.nodes {
		if candidate == p || !strings.HasPrefix(candidate, prefix) {
			continue
		}
		if strings.Contains(candidate[len(prefix):], "/") {
			continue
		}
		out = append(out, candidate)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := f.nodes[out[i]].dir, f.nodes[out[j]].dir
		if di != dj {
			return di
		}
		return strings.ToLower(containerfs.Base(out[i])) < strings.ToLower(containerfs.Base(out[j]))
	})
	return out
}

func (f *memFS) Stat(_ context.Context, _ string, p string) (*containerfs.Entry, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if _, ok := f.nodes[clean]; !ok {
		return nil, apperr.New(apperr.NotFound, "File or folder not found")
	}
	return f.entry(clean), nil
}

func (f *memFS) Exists(_ context.Context, _ string, p string) (bool, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return false, err
	}
	_, ok := f.nodes[clean]
	return ok, nil
}

func (f *memFS) List(_ context.Context, _ string, p string) ([]*containerfs.Entry, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	n, ok := f.nodes[clean]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "File or folder not found")
	}
	if !n.dir {
		return nil, apperr.New(apperr.ValidationFailed, "Path is not a directory")
	}
	var out []*containerfs.Entry
	for _, child := range f.children(clean) {
		out = append(out, f.entry(child))
	}
	return out, nil
}

func (f *memFS) Tree(ctx context.Context, userID, p string) (*containerfs.Entry, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if _, ok := f.nodes[clean]; !ok {
		return nil, apperr.New(apperr.NotFound, "File or folder not found")
	}
	root := f.entry(clean)
	if root.NodeType == types.NodeTypeDirectory {
		for _, child := range f.children(clean) {
			sub, err := f.Tree(ctx, userID, child)
			if err != nil {
				return nil, err
			}
			root.Children = append(root.Children, sub)
		}
	}
	return root, nil
}

func (f *memFS) Search(_ context.Context, _ string, scope, query string) ([]*containerfs.Entry, error) {
	clean, err := containerfs.Normalize(scope)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var paths []string
	for p := range f.nodes {
		if p == "/" || !strings.HasPrefix(p, clean) {
			continue
		}
		if p == containerfs.TrashDir || strings.HasPrefix(p, containerfs.TrashDir+"/") {
			continue
		}
		if strings.Contains(strings.ToLower(containerfs.Base(p)), q) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	if len(paths) > containerfs.SearchLimit {
		paths = paths[:containerfs.SearchLimit]
	}
	var out []*containerfs.Entry
	for _, p := range paths {
		out = append(out, f.entry(p))
	}
	return out, nil
}

func (f *memFS) create(p string, dir bool) error {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
	}
	if _, ok := f.nodes[clean]; ok {
		return apperr.New(apperr.Conflict, "A node with that name already exists")
	}
	parent, ok := f.nodes[containerfs.Dir(clean)]
	if !ok || !parent.dir {
		return apperr.New(apperr.NotFound, "File or folder not found")
	}
	f.nodes[clean] = &memNode{dir: dir, created: time.Now(), modified: time.Now()}
	return nil
}

func (f *memFS) CreateFile(_ context.Context, _ string, p string) error {
	return f.create(p, false)
}

func (f *memFS) CreateDir(_ context.Context, _ string, p string) error {
	return f.create(p, true)
}

func (f *memFS) EnsureDir(_ context.Context, _ string, p string) error {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
	}
	segments := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	current := ""
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		current += "/" + segment
		if _, ok := f.nodes[current]; !ok {
			f.nodes[current] = &memNode{dir: true, created: time.Now(), modified: time.Now()}
		}
	}
	return nil
}

func (f *memFS) subtree(p string) []string {
	var out []string
	for candidate := range f.nodes {
		if candidate == p || strings.HasPrefix(candidate, p+"/") {
			out = append(out, candidate)
		}
	}
	return out
}

func (f *memFS) Move(_ context.Context, _ string, src, dst string) error {
	cleanSrc, err := containerfs.Normalize(src)
	if err != nil {
		return err
	}
	cleanDst, err := containerfs.Normalize(dst)
	if err != nil {
		return err
	}
	if _, ok := f.nodes[cleanDst]; ok {
		return apperr.New(apperr.Conflict, "A node with that name already exists")
	}
	if _, ok := f.nodes[cleanSrc]; !ok {
		return apperr.New(apperr.NotFound, "File or folder not found")
	}
	for _, p := range f.subtree(cleanSrc) {
		f.nodes[cleanDst+strings.TrimPrefix(p, cleanSrc)] = f.nodes[p]
		delete(f.nodes, p)
	}
	return nil
}

func (f *memFS) Copy(_ context.Context, _ string, src, dst string) error {
	cleanSrc, err := containerfs.Normalize(src)
	if err != nil {
		return err
	}
	cleanDst, err := containerfs.Normalize(dst)
	if err != nil {
		return err
	}
	if _, ok := f.nodes[cleanDst]; ok {
		return apperr.New(apperr.Conflict, "A node with that name already exists")
	}
	if _, ok := f.nodes[cleanSrc]; !ok {
		return apperr.New(apperr.NotFound, "File or folder not found")
	}
	for _, p := range f.subtree(cleanSrc) {
		original := f.nodes[p]
		copied := *original
		copied.content = append([]byte(nil), original.content...)
		f.nodes[cleanDst+strings.TrimPrefix(p, cleanSrc)] = &copied
	}
	return nil
}

func (f *memFS) Delete(_ context.Context, _ string, p string) error {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
	}
	if clean == "/" {
		return apperr.New(apperr.ValidationFailed, "Cannot delete the root directory")
	}
	paths := f.subtree(clean)
	if len(paths) == 0 {
		return apperr.New(apperr.NotFound, "File or folder not found")
	}
	for _, candidate := range paths {
		delete(f.nodes, candidate)
	}
	return nil
}

func (f *memFS) MoveToTrash(ctx context.Context, userID, p string) (string, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return "", err
	}
	if clean == "/" {
		return "", apperr.New(apperr.ValidationFailed, "Cannot trash the root directory")
	}
	if err := f.EnsureDir(ctx, userID, containerfs.TrashDir); err != nil {
		return "", err
	}
	name, err := f.UniqueName(ctx, userID, containerfs.TrashDir, containerfs.Base(clean))
	if err != nil {
		return "", err
	}
	trashed := containerfs.TrashDir + "/" + name
	if err := f.Move(ctx, userID, clean, trashed); err != nil {
		return "", err
	}
	return trashed, nil
}

func (f *memFS) EmptyTrash(ctx context.Context, userID string) (int, error) {
	children := f.children(containerfs.TrashDir)
	for _, child := range children {
		if err := f.Delete(ctx, userID, child); err != nil {
			return 0, err
		}
	}
	return len(children), nil
}

func (f *memFS) ReadFile(_ context.Context, _ string, p string) (*containerfs.FileContent, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	n, ok := f.nodes[clean]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "File or folder not found")
	}
	if n.dir {
		return nil, apperr.New(apperr.ValidationFailed, "Path is a directory")
	}
	if len(n.content) > containerfs.MaxReadSize {
		return nil, apperr.New(apperr.PayloadTooLarge, "File is too large to read")
	}
	if !utf8.Valid(n.content) {
		return nil, apperr.New(apperr.UnsupportedMedia, "File is not valid UTF-8 text")
	}
	return &containerfs.FileContent{
		Content:  string(n.content),
		MimeType: "text/plain",
		Size:     int64(len(n.content)),
	}, nil
}

func (f *memFS) WriteFile(ctx context.Context, userID, p string, content []byte) error {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
	}
	if err := f.EnsureDir(ctx, userID, containerfs.Dir(clean)); err != nil {
		return err
	}
	n, ok := f.nodes[clean]
	if !ok {
		n = &memNode{created: time.Now()}
		f.nodes[clean] = n
	}
	n.content = append([]byte(nil), content...)
	n.modified = time.Now()
	return nil
}

func (f *memFS) UniqueName(_ context.Context, _ string, parent, base string) (string, error) {
	cleanParent, err := containerfs.Normalize(parent)
	if err != nil {
		return "", err
	}
	taken := func(name string) bool {
		_, ok := f.nodes[containerfs.Join(cleanParent, name)]
		return ok
	}
	if !taken(base) {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := base + " " + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate, nil
		}
	}
}

var _ ContainerFS = (*memFS)(nil)
