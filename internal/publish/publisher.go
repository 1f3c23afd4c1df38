package publish

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aptpub/aptpub/internal/blob"
	"github.com/aptpub/aptpub/internal/deb"
	"github.com/aptpub/aptpub/internal/mirror"
	"github.com/aptpub/aptpub/internal/repo"
	"github.com/aptpub/aptpub/internal/sign"
)

// Store is the object-storage surface the publisher works against.
// Implemented by *blob.Client.
type Store interface {
	DistExists(ctx context.Context, codename string) (bool, error)
	Get(ctx context.Context, relPath string) ([]byte, error)
	Put(ctx context.Context, relPath string, body []byte) error
	List(ctx context.Context, relPrefix string) ([]string, error)
	UploadFiles(ctx context.Context, files []blob.Upload) error
}

// Publisher runs one complete publishing pass for a codename.
type Publisher struct {
	Config   *Config
	Settings *Settings
	Store    Store
	Signer   *sign.Signer
}

// Run executes the publishing steps in order and stops at the first
// failure. Remote state already written by earlier steps is left in
// place.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Config.Check(); err != nil {
		return err
	}
	codename := p.Config.Codename

	remoteExists, err := p.Store.DistExists(ctx, codename)
	if err != nil {
		return errors.Wrap(err, "checking remote repository")
	}
	slog.Info("remote repository", "codename", codename, "exists", remoteExists)

	localRepo, created, err := repo.Open(p.Settings.StateDir, codename)
	if err != nil {
		return err
	}
	if created {
		slog.Info("created local repository", "codename", codename, "dir", localRepo.Dir())
	}

	if remoteExists {
		if err := p.importRemote(ctx, localRepo); err != nil {
			return err
		}
	}

	added, err := p.addPackages(localRepo)
	if err != nil {
		return err
	}
	if err := localRepo.Save(); err != nil {
		return err
	}
	slog.Info("local repository ready", "codename", codename, "added", added, "total", localRepo.Len())

	if err := p.upload(ctx, localRepo, remoteExists); err != nil {
		return err
	}

	if err := UpdateEndpoints(p.Settings.Endpoints, p.Config); err != nil {
		return err
	}

	action := "created"
	if remoteExists {
		action = "updated"
	}
	slog.Info("publish complete", "codename", codename, "bucket", p.Config.Bucket, "action", action)
	return nil
}

// importRemote seeds the local repository from the remote's published
// index. The merge keeps remote-only entries as non-local baseline.
func (p *Publisher) importRemote(ctx context.Context, localRepo *repo.Repo) error {
	codename := p.Config.Codename
	if !mirror.Exists(p.Settings.StateDir, codename) {
		slog.Info("creating mirror of remote repository", "codename", codename)
	}

	verifyKey, err := p.Signer.PublicKey()
	if err != nil {
		return err
	}
	m, err := mirror.New(p.Settings.StateDir, codename, p.Store, verifyKey)
	if err != nil {
		return err
	}
	packages, err := m.Refresh(ctx)
	if err != nil {
		return err
	}

	imported := localRepo.Import(packages)
	slog.Info("imported remote entries", "codename", codename, "imported", imported)
	return nil
}

// addPackages scans the package directory and adds every .deb to the
// local repository, replacing entries that share a pool filename.
func (p *Publisher) addPackages(localRepo *repo.Repo) (int, error) {
	dirEntries, err := os.ReadDir(p.Config.PackageDir)
	if err != nil {
		return 0, errors.Wrap(err, "reading package directory")
	}

	var debPaths []string
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".deb") {
			continue
		}
		debPaths = append(debPaths, filepath.Join(p.Config.PackageDir, dirEntry.Name()))
	}
	if len(debPaths) == 0 {
		return 0, errors.New("no .deb files in " + p.Config.PackageDir)
	}

	for _, debPath := range debPaths {
		pkg, err := deb.Scan(debPath)
		if err != nil {
			return 0, err
		}
		if _, err := localRepo.Add(pkg, debPath, ""); err != nil {
			return 0, err
		}
	}
	return len(debPaths), nil
}

// upload pushes pool files and then the signed metadata, so the
// published indices never reference objects that are not yet there.
func (p *Publisher) upload(ctx context.Context, localRepo *repo.Repo, remoteExists bool) error {
	localFiles := localRepo.LocalFiles()

	skip := make(map[string]bool)
	if remoteExists {
		// Update in place: pool files already on the remote are not
		// transferred again.
		remoteKeys, err := p.Store.List(ctx, "pool/")
		if err != nil {
			return errors.Wrap(err, "listing remote pool")
		}
		for _, key := range remoteKeys {
			skip[key] = true
		}
	}

	var uploads []blob.Upload
	for relPath, localPath := range localFiles {
		if skip[relPath] {
			continue
		}
		info, err := os.Stat(localPath)
		if err != nil {
			return errors.Wrap(err, "stat "+localPath)
		}
		uploads = append(uploads, blob.Upload{
			RelPath:   relPath,
			LocalPath: localPath,
			Size:      info.Size(),
		})
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].RelPath < uploads[j].RelPath })

	if len(uploads) > 0 {
		slog.Info("uploading pool files", "count", len(uploads))
		if err := p.Store.UploadFiles(ctx, uploads); err != nil {
			return err
		}
	}

	tree, err := localRepo.Export(repo.ExportOptions{
		Origin: "aptpub",
		Label:  "aptpub",
		Signer: p.Signer,
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(tree))
	for key := range tree {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := p.Store.Put(ctx, key, tree[key]); err != nil {
			return errors.Wrap(err, "uploading "+key)
		}
	}
	slog.Info("uploaded metadata", "count", len(keys))
	return nil
}
