package containerfs

// The in-container programs. Each one reads its inputs from sys.argv
// (argv[1] is always the VFS base path so entries can be reported with
// VFS-relative paths) or stdin, and prints exactly one JSON document:
// {"ok": true, ...} on success, {"ok": false, "error": <code>} on a
// handled failure. Unhandled exceptions exit non-zero and surface as
// internal errors.

const entryHelpers = `
import json, os, sys, stat, mimetypes
base = sys.argv[1]
def vfs(p):
    r = p[len(base):]
    return r if r else "/"
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
def entry(p, st):
    d = stat.S_ISDIR(st.st_mode)
    name = os.path.basename(p) or "/"
    mime = None
    if not d:
        mime = mimetypes.guess_type(name)[0] or "application/octet-stream"
    return {"name": name, "path": vfs(p), "type": "directory" if d else "file",
            "size": 0 if d else st.st_size, "mime": mime,
            "created": st.st_ctime, "modified": st.st_mtime}
`

const statScript = entryHelpers + `
target = sys.argv[2]
try:
    st = os.stat(target)
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True, "entry": entry(target, st)}))
`

const existsScript = `
import json, os, sys
print(json.dumps({"ok": True, "exists": os.path.exists(sys.argv[2])}))
`

const listScript = entryHelpers + `
target = sys.argv[2]
try:
    items = list(os.scandir(target))
except FileNotFoundError:
    fail("not_found")
except NotADirectoryError:
    fail("not_directory")
except PermissionError:
    fail("permission_denied")
out = []
for e in items:
    try:
        st = e.stat(follow_symlinks=False)
    except OSError:
        continue
    out.append(entry(e.path, st))
out.sort(key=lambda n: (n["type"] != "directory", n["name"].lower()))
print(json.dumps({"ok": True, "entries": out}))
`

const treeScript = entryHelpers + `
target, maxdepth = sys.argv[2], int(sys.argv[3])
def walk(p, st, depth):
    node = entry(p, st)
    if node["type"] == "directory" and depth < maxdepth:
        try:
            items = sorted(os.scandir(p),
                           key=lambda e: (not e.is_dir(follow_symlinks=False), e.name.lower()))
        except OSError:
            items = []
        children = []
        for e in items:
            try:
                cst = e.stat(follow_symlinks=False)
            except OSError:
                continue
            children.append(walk(e.path, cst, depth + 1))
        node["children"] = children
    return node
try:
    st = os.stat(target)
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True, "entry": walk(target, st, 0)}))
`

const searchScript = entryHelpers + `
target, query, limit = sys.argv[2], sys.argv[3].lower(), int(sys.argv[4])
out = []
for root, dirs, files in os.walk(target):
    if root == base:
        dirs[:] = [d for d in dirs if d != ".Trash"]
    for name in dirs + files:
        if query in name.lower():
            p = os.path.join(root, name)
            try:
                st = os.stat(p)
            except OSError:
                continue
            out.append(entry(p, st))
            if len(out) >= limit:
                print(json.dumps({"ok": True, "entries": out}))
                sys.exit(0)
print(json.dumps({"ok": True, "entries": out}))
`

const createFileScript = `
import json, sys
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
try:
    open(sys.argv[2], "x").close()
except FileExistsError:
    fail("conflict")
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True}))
`

const createDirScript = `
import json, os, sys
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
try:
    os.mkdir(sys.argv[2])
except FileExistsError:
    fail("conflict")
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True}))
`

const ensureDirScript = `
import json, os, sys
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
try:
    os.makedirs(sys.argv[2], exist_ok=True)
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True}))
`

const moveScript = `
import json, os, sys, shutil
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
src, dst = sys.argv[2], sys.argv[3]
if os.path.exists(dst):
    fail("conflict")
try:
    shutil.move(src, dst)
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True}))
`

const copyScript = `
import json, os, sys, shutil
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
src, dst = sys.argv[2], sys.argv[3]
if os.path.exists(dst):
    fail("conflict")
try:
    if os.path.isdir(src):
        shutil.copytree(src, dst, symlinks=True)
    else:
        shutil.copy2(src, dst)
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True}))
`

const deleteScript = `
import json, os, sys, shutil
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
target = sys.argv[2]
try:
    if os.path.isdir(target) and not os.path.islink(target):
        shutil.rmtree(target)
    else:
        os.remove(target)
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
print(json.dumps({"ok": True}))
`

const emptyTrashScript = `
import json, os, sys, shutil
trash = sys.argv[2]
try:
    items = list(os.scandir(trash))
except FileNotFoundError:
    items = []
count = 0
for e in items:
    try:
        if e.is_dir(follow_symlinks=False):
            shutil.rmtree(e.path)
        else:
            os.remove(e.path)
        count += 1
    except OSError:
        pass
print(json.dumps({"ok": True, "deleted": count}))
`

const readFileScript = `
import json, os, sys, mimetypes
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
target, limit = sys.argv[2], int(sys.argv[3])
try:
    if os.path.isdir(target):
        fail("is_directory")
    size = os.path.getsize(target)
    if size > limit:
        fail("too_large")
    with open(target, "rb") as f:
        data = f.read()
except (FileNotFoundError, NotADirectoryError):
    fail("not_found")
except PermissionError:
    fail("permission_denied")
try:
    text = data.decode("utf-8")
except UnicodeDecodeError:
    fail("binary_file")
mime = mimetypes.guess_type(target)[0] or "text/plain"
print(json.dumps({"ok": True, "content": text, "mime": mime, "size": size}))
`

const writeFileScript = `
import json, os, sys
def fail(code):
    print(json.dumps({"ok": False, "error": code}))
    sys.exit(0)
target = sys.argv[2]
data = sys.stdin.buffer.read()
try:
    parent = os.path.dirname(target)
    if parent:
        os.makedirs(parent, exist_ok=True)
    with open(target, "wb") as f:
        f.write(data)
except PermissionError:
    fail("permission_denied")
except IsADirectoryError:
    fail("is_directory")
print(json.dumps({"ok": True, "size": len(data)}))
`

const uniqueNameScript = `
import json, os, sys
parent, name = sys.argv[2], sys.argv[3]
if not os.path.exists(os.path.join(parent, name)):
    print(json.dumps({"ok": True, "name": name}))
    sys.exit(0)
n = 2
while True:
    cand = "%s %d" % (name, n)
    if not os.path.exists(os.path.join(parent, cand)):
        print(json.dumps({"ok": True, "name": cand}))
        sys.exit(0)
    n += 1
`
