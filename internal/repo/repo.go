// Package repo manages the local working copy of a published APT
// repository: a per-codename directory tree holding pool files and a
// JSON index of package entries.
package repo

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aptpub/aptpub/internal/deb"
)

const indexJSON = "index.json"

var validCodename = regexp.MustCompile(`^[a-z0-9_-]+$`)

// IsValidCodename checks if the given codename is usable as a path
// component and a dists entry.
func IsValidCodename(codename string) bool {
	return validCodename.MatchString(codename)
}

// Entry is one package in the repository index. Local reports whether
// the pool file is present in the local pool (and therefore needs
// uploading) or only exists in the remote repository.
type Entry struct {
	deb.Package
	Local bool `json:"local"`
}

// Repo is a named local working copy of a package repository, keyed by
// codename. It is created once and reused across runs.
type Repo struct {
	dir      string
	codename string

	mu    sync.RWMutex
	index map[string]*Entry // keyed by pool-relative Filename
}

// Open opens the local repository for a codename under stateDir,
// creating it if absent. The second return value reports whether the
// repository had to be created.
func Open(stateDir, codename string) (*Repo, bool, error) {
	if !filepath.IsAbs(stateDir) {
		return nil, false, errors.New("repo: state dir is not absolute: " + stateDir)
	}
	if !IsValidCodename(codename) {
		return nil, false, errors.New("repo: invalid codename: " + codename)
	}

	dir := filepath.Join(stateDir, codename)
	created := false
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		created = true
	} else if err != nil {
		return nil, false, err
	}

	if err := os.MkdirAll(filepath.Join(dir, "pool"), 0750); err != nil {
		return nil, false, errors.Wrap(err, "repo: creating "+dir)
	}

	r := &Repo{
		dir:      dir,
		codename: codename,
		index:    make(map[string]*Entry),
	}
	if err := r.load(); err != nil {
		return nil, false, err
	}
	return r, created, nil
}

// Dir returns the repository directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Codename returns the codename the repository is keyed by.
func (r *Repo) Codename() string {
	return r.codename
}

func (r *Repo) load() error {
	f, err := os.Open(filepath.Join(r.dir, indexJSON)) // #nosec G304 - path is under the validated state dir
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	if err := json.NewDecoder(f).Decode(&r.index); err != nil {
		return errors.Wrap(err, "repo: decoding "+indexJSON)
	}
	return nil
}

// Save persists the index. The file and its directory are synced so a
// crash cannot leave a half-written index behind a successful run.
func (r *Repo) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path := filepath.Join(r.dir, indexJSON)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304 - path is under the validated state dir
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	if err := json.NewEncoder(f).Encode(r.index); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return dirSync(r.dir)
}

// dirSync calls fsync(2) on a directory so renames and creations in it
// are durable.
func dirSync(dir string) error {
	f, err := os.OpenFile(dir, os.O_RDONLY, 0750) // #nosec G304 - dir is under the validated state dir
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Add adds a package file to the repository under the given component,
// defaulting to "main" when the component is empty. When an entry with
// the same pool filename already exists, the new file replaces it
// (force-replace). Returns whether an existing entry was replaced.
func (r *Repo) Add(pkg *deb.Package, srcPath, component string) (bool, error) {
	if component == "" {
		component = "main"
	}
	pkg.Filename = pkg.PoolPath(component)

	dst := filepath.Join(r.dir, filepath.FromSlash(pkg.Filename))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return false, errors.Wrap(err, "repo: Add "+pkg.PoolName())
	}
	if err := installFile(srcPath, dst); err != nil {
		return false, errors.Wrap(err, "repo: Add "+pkg.PoolName())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced := r.index[pkg.Filename]
	if replaced {
		switch c := deb.CompareVersions(pkg.Version, prev.Version); {
		case c == 0 && pkg.SHA256 == prev.SHA256:
			slog.Debug("package unchanged", "package", pkg.Name, "version", pkg.Version)
		case c < 0:
			slog.Warn("replacing package with older version",
				"package", pkg.Name, "old", prev.Version, "new", pkg.Version)
		default:
			slog.Info("replacing package",
				"package", pkg.Name, "old", prev.Version, "new", pkg.Version)
		}
	}
	r.index[pkg.Filename] = &Entry{Package: *pkg, Local: true}
	return replaced, nil
}

// installFile links src to dst, falling back to a copy when they are
// on different filesystems. An existing dst is replaced.
func installFile(src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) // #nosec G304 - src comes from the configured package directory
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304 - dst is under the validated state dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Import merges remote baseline entries into the index. Entries whose
// pool filename is already held locally with identical content keep
// their local marker; everything else is recorded as remote-only.
func (r *Repo) Import(packages []deb.Package) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	imported := 0
	for i := range packages {
		pkg := packages[i]
		if pkg.Filename == "" {
			continue
		}
		local := false
		if prev, ok := r.index[pkg.Filename]; ok {
			local = prev.Local && prev.SHA256 == pkg.SHA256
		}
		r.index[pkg.Filename] = &Entry{Package: pkg, Local: local}
		imported++
	}
	return imported
}

// Packages returns all index entries as package metadata.
func (r *Repo) Packages() []deb.Package {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packages := make([]deb.Package, 0, len(r.index))
	for _, entry := range r.index {
		packages = append(packages, entry.Package)
	}
	deb.SortPackages(packages)
	return packages
}

// LocalFiles returns the pool-relative filename and absolute local
// path of every entry whose package file is held locally.
func (r *Repo) LocalFiles() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make(map[string]string)
	for filename, entry := range r.index {
		if entry.Local {
			files[filename] = filepath.Join(r.dir, filepath.FromSlash(filename))
		}
	}
	return files
}

// Architectures returns the sorted set of architectures present in the
// index. "all" entries do not add an architecture of their own.
func (r *Repo) Architectures() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, entry := range r.index {
		if entry.Architecture != "" && entry.Architecture != "all" {
			set[entry.Architecture] = struct{}{}
		}
	}
	if len(set) == 0 {
		set["amd64"] = struct{}{}
	}

	architectures := make([]string, 0, len(set))
	for arch := range set {
		architectures = append(architectures, arch)
	}
	sort.Strings(architectures)
	return architectures
}

// Len returns the number of index entries.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// String implements fmt.Stringer for logging.
func (r *Repo) String() string {
	return strings.Join([]string{"repo", r.codename}, ":")
}
