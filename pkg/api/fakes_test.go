package api

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/containerfs"
	"github.com/aisu-run/aisu-core/pkg/fsservice"
	"github.com/aisu-run/aisu-core/pkg/runtime"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// fakeStream is a duplex exec whose reads block until the stream is
// closed, like an idle shell.
type fakeStream struct {
	mu      sync.Mutex
	written []byte
	rows    uint
	cols    uint
	done    chan struct{}
	once    sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{done: make(chan struct{})}
}

func (f *fakeStream) Read([]byte) (int, error) {
	<-f.done
	return 0, io.EOF
}

func (f *fakeStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeStream) Resize(_ context.Context, rows, cols uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeStream) input() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written...)
}

func (f *fakeStream) resized(rows, cols uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows == rows && f.cols == cols
}

// fakeRuntime is an in-memory container engine
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*runtime.ContainerState
	streams    []*fakeStream
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]*runtime.ContainerState)}
}

func (f *fakeRuntime) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeRuntime) Create(_ context.Context, spec *runtime.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[spec.Name]; ok {
		return "", runtime.ErrConflict
	}
	f.containers[spec.Name] = &runtime.ContainerState{
		ID: "engine-" + spec.Name, Status: "running", Running: true, IPAddress: "172.20.0.5",
	}
	return "engine-" + spec.Name, nil
}

func (f *fakeRuntime) Start(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.containers[name]
	if !ok {
		return runtime.ErrNotFound
	}
	state.Status, state.Running = "running", true
	return nil
}

func (f *fakeRuntime) Stop(_ context.Context, name string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.containers[name]
	if !ok {
		return runtime.ErrNotFound
	}
	state.Status, state.Running = "exited", false
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) Inspect(_ context.Context, name string) (*runtime.ContainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.containers[name]
	if !ok {
		return nil, runtime.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (f *fakeRuntime) Logs(context.Context, string, int) (string, error) { return "", nil }

func (f *fakeRuntime) Exec(context.Context, string, runtime.ExecOptions) (*runtime.ExecResult, error) {
	return &runtime.ExecResult{}, nil
}

func (f *fakeRuntime) ExecStream(context.Context, string, runtime.ExecOptions) (runtime.Stream, error) {
	stream := newFakeStream()
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()
	return stream, nil
}

func (f *fakeRuntime) Ping(context.Context) error { return nil }

// mapFS is an in-memory ContainerFS mirroring the in-container
// program semantics, keyed by VFS path.
type mapFS struct {
	mu    sync.Mutex
	nodes map[string]*mapNode
}

type mapNode struct {
	dir      bool
	content  []byte
	created  time.Time
	modified time.Time
}

func newMapFS() *mapFS {
	fs := &mapFS{nodes: make(map[string]*mapNode)}
	now := time.Now()
	fs.nodes["/"] = &mapNode{dir: true, created: now, modified: now}
	for _, dir := range []string{"/Desktop", "/Documents", "/Downloads", "/Pictures", "/Music", "/Videos", "/.Trash"} {
		fs.nodes[dir] = &mapNode{dir: true, created: now, modified: now}
	}
	return fs
}

func (f *mapFS) entry(p string) *containerfs.Entry {
	n := f.nodes[p]
	nodeType, mime := types.NodeTypeFile, "text/plain"
	if n.dir {
		nodeType, mime = types.NodeTypeDirectory, ""
	}
	name := containerfs.Base(p)
	if p == "/" {
		name = "/"
	}
	return &containerfs.Entry{
		Name: name, Path: p, NodeType: nodeType, Size: int64(len(n.content)),
		MimeType: mime, CreatedAt: n.created, ModifiedAt: n.modified,
	}
}

func (f *mapFS) childPaths(p string) []string {
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

func (f *mapFS) Stat(_ context.Context, _ string, p string) (*containerfs.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if _, ok := f.nodes[clean]; !ok {
		return nil, apperr.New(apperr.NotFound, "File or folder not found")
	}
	return f.entry(clean), nil
}

func (f *mapFS) Exists(_ context.Context, _ string, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return false, err
	}
	_, ok := f.nodes[clean]
	return ok, nil
}

func (f *mapFS) List(_ context.Context, _ string, p string) ([]*containerfs.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	for _, child := range f.childPaths(clean) {
		out = append(out, f.entry(child))
	}
	return out, nil
}

func (f *mapFS) tree(p string) *containerfs.Entry {
	root := f.entry(p)
	if root.NodeType == types.NodeTypeDirectory {
		for _, child := range f.childPaths(p) {
			root.Children = append(root.Children, f.tree(child))
		}
	}
	return root
}

func (f *mapFS) Tree(_ context.Context, _ string, p string) (*containerfs.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	if _, ok := f.nodes[clean]; !ok {
		return nil, apperr.New(apperr.NotFound, "File or folder not found")
	}
	return f.tree(clean), nil
}

func (f *mapFS) Search(_ context.Context, _ string, scope, query string) ([]*containerfs.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean, err := containerfs.Normalize(scope)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []*containerfs.Entry
	for p := range f.nodes {
		if p == "/" || !strings.HasPrefix(p, clean) || strings.HasPrefix(p, containerfs.TrashDir) {
			continue
		}
		if strings.Contains(strings.ToLower(containerfs.Base(p)), q) {
			out = append(out, f.entry(p))
		}
	}
	if len(out) > containerfs.SearchLimit {
		out = out[:containerfs.SearchLimit]
	}
	return out, nil
}

func (f *mapFS) create(p string, dir bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	now := time.Now()
	f.nodes[clean] = &mapNode{dir: dir, created: now, modified: now}
	return nil
}

func (f *mapFS) CreateFile(_ context.Context, _ string, p string) error { return f.create(p, false) }
func (f *mapFS) CreateDir(_ context.Context, _ string, p string) error  { return f.create(p, true) }

func (f *mapFS) EnsureDir(_ context.Context, _ string, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
	}
	current := ""
	for _, segment := range strings.Split(strings.TrimPrefix(clean, "/"), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment
		if _, ok := f.nodes[current]; !ok {
			now := time.Now()
			f.nodes[current] = &mapNode{dir: true, created: now, modified: now}
		}
	}
	return nil
}

func (f *mapFS) subtree(p string) []string {
	var out []string
	for candidate := range f.nodes {
		if candidate == p || strings.HasPrefix(candidate, p+"/") {
			out = append(out, candidate)
		}
	}
	return out
}

func (f *mapFS) Move(_ context.Context, _ string, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *mapFS) Copy(_ context.Context, _ string, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cleanSrc, err := containerfs.Normalize(src)
	if err != nil {
		return err
	}
	cleanDst, err := containerfs.Normalize(dst)
	if err != nil {
		return err
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

func (f *mapFS) Delete(_ context.Context, _ string, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
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

func (f *mapFS) MoveToTrash(ctx context.Context, userID, p string) (string, error) {
	clean, err := containerfs.Normalize(p)
	if err != nil {
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

func (f *mapFS) EmptyTrash(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	children := f.childPaths(containerfs.TrashDir)
	f.mu.Unlock()
	for _, child := range children {
		if err := f.Delete(ctx, userID, child); err != nil {
			return 0, err
		}
	}
	return len(children), nil
}

func (f *mapFS) ReadFile(_ context.Context, _ string, p string) (*containerfs.FileContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	if !utf8.Valid(n.content) {
		return nil, apperr.New(apperr.UnsupportedMedia, "File is not valid UTF-8 text")
	}
	return &containerfs.FileContent{Content: string(n.content), MimeType: "text/plain", Size: int64(len(n.content))}, nil
}

func (f *mapFS) WriteFile(ctx context.Context, userID, p string, content []byte) error {
	clean, err := containerfs.Normalize(p)
	if err != nil {
		return err
	}
	if err := f.EnsureDir(ctx, userID, containerfs.Dir(clean)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[clean]
	if !ok {
		n = &mapNode{created: time.Now()}
		f.nodes[clean] = n
	}
	n.content = append([]byte(nil), content...)
	n.modified = time.Now()
	return nil
}

func (f *mapFS) UniqueName(_ context.Context, _ string, parent, base string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

var _ fsservice.ContainerFS = (*mapFS)(nil)
var _ runtime.Runtime = (*fakeRuntime)(nil)
