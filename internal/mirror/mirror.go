// Package mirror reflects the already-published state of a remote APT
// repository so it can seed the local working copy before new packages
// are added. The reflection is metadata-only: pool files stay remote.
package mirror

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cockroachdb/errors"

	"github.com/aptpub/aptpub/internal/blob"
	"github.com/aptpub/aptpub/internal/deb"
)

const stateJSON = "mirror.json"

// Getter downloads single objects by repository-relative path.
// Implemented by *blob.Client.
type Getter interface {
	Get(ctx context.Context, relPath string) ([]byte, error)
}

// state is what Mirror persists between runs.
type state struct {
	Codename    string    `json:"codename"`
	LastRefresh time.Time `json:"last_refresh"`
	Packages    int       `json:"packages"`
}

// Mirror is a named read-only reflection of the remote repository for
// one codename. It is created only when the remote already has content.
type Mirror struct {
	dir      string
	codename string
	store    Getter

	pgp       *crypto.PGPHandle
	verifyKey *crypto.Key
}

// Exists reports whether mirror state for the codename was created by
// an earlier run.
func Exists(stateDir, codename string) bool {
	_, err := os.Stat(filepath.Join(stateDir, codename, stateJSON))
	return err == nil
}

// New creates (or reopens) the mirror for a codename. armoredKey, when
// non-empty, is the public key the remote repository's signature must
// verify against.
func New(stateDir, codename string, store Getter, armoredKey []byte) (*Mirror, error) {
	if !filepath.IsAbs(stateDir) {
		return nil, errors.New("mirror: state dir is not absolute: " + stateDir)
	}

	dir := filepath.Join(stateDir, codename)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(err, "mirror: creating "+dir)
	}

	m := &Mirror{
		dir:      dir,
		codename: codename,
		store:    store,
		pgp:      crypto.PGP(),
	}

	if len(armoredKey) > 0 {
		key, err := crypto.NewKeyFromArmored(string(armoredKey))
		if err != nil {
			return nil, errors.Wrap(err, "mirror: parsing verification key")
		}
		m.verifyKey = key
	}

	return m, nil
}

// Refresh fetches the remote repository's current index and returns
// its package entries. The remote InRelease (or Release + Release.gpg)
// is signature-verified before anything is parsed, and every index
// file is checked against the checksums the release publishes.
func (m *Mirror) Refresh(ctx context.Context) ([]deb.Package, error) {
	release, err := m.fetchRelease(ctx)
	if err != nil {
		return nil, err
	}

	indexFiles := deb.ParseReleaseIndexFiles(release)
	if len(indexFiles) == 0 {
		return nil, errors.New("mirror: remote release lists no index files")
	}

	var packages []deb.Package
	seen := make(map[string]bool)
	for _, indexFile := range indexFiles {
		// The plain Packages variant is all that is needed; the
		// compressed ones repeat the same paragraphs.
		if path.Base(indexFile.Path) != "Packages" {
			continue
		}

		data, err := m.store.Get(ctx, path.Join("dists", m.codename, indexFile.Path))
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				slog.Warn("remote index listed but missing", "codename", m.codename, "path", indexFile.Path)
				continue
			}
			return nil, errors.Wrap(err, "mirror: fetching "+indexFile.Path)
		}

		if err := checkIndex(data, indexFile); err != nil {
			return nil, errors.Wrap(err, "mirror: "+indexFile.Path)
		}

		parsed, err := deb.ParsePackages(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "mirror: parsing "+indexFile.Path)
		}
		for _, pkg := range parsed {
			// Architecture "all" entries repeat across per-arch indices.
			if seen[pkg.Filename] {
				continue
			}
			seen[pkg.Filename] = true
			packages = append(packages, pkg)
		}
	}

	if err := m.saveState(len(packages)); err != nil {
		return nil, err
	}

	slog.Info("mirror refreshed", "codename", m.codename, "packages", len(packages))
	return packages, nil
}

func checkIndex(data []byte, indexFile deb.IndexFile) error {
	if int64(len(data)) != indexFile.Sums.Size {
		return errors.Newf("size mismatch: got %d, release says %d", len(data), indexFile.Sums.Size)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != indexFile.Sums.SHA256 {
		return errors.New("SHA256 mismatch against remote release")
	}
	return nil
}

// fetchRelease downloads and verifies the remote release metadata,
// returning the plain Release body. InRelease is preferred; Release
// with a detached Release.gpg is the fallback, matching what APT
// clients accept.
func (m *Mirror) fetchRelease(ctx context.Context) ([]byte, error) {
	distsPath := path.Join("dists", m.codename)

	inRelease, err := m.store.Get(ctx, path.Join(distsPath, "InRelease"))
	if err == nil {
		return m.verifyCleartext(inRelease)
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return nil, errors.Wrap(err, "mirror: fetching InRelease")
	}

	release, err := m.store.Get(ctx, path.Join(distsPath, "Release"))
	if err != nil {
		return nil, errors.Wrap(err, "mirror: fetching Release")
	}

	if m.verifyKey == nil {
		slog.Warn("no verification key configured, trusting remote release", "codename", m.codename)
		return release, nil
	}

	sig, err := m.store.Get(ctx, path.Join(distsPath, "Release.gpg"))
	if err != nil {
		return nil, errors.Wrap(err, "mirror: fetching Release.gpg")
	}

	verifier, err := m.pgp.Verify().VerificationKey(m.verifyKey).New()
	if err != nil {
		return nil, errors.Wrap(err, "mirror: creating verifier")
	}
	result, err := verifier.VerifyDetached(release, sig, crypto.Armor)
	if err != nil {
		return nil, errors.Wrap(err, "mirror: verifying Release signature")
	}
	if sigErr := result.SignatureError(); sigErr != nil {
		return nil, errors.Wrap(sigErr, "mirror: Release signature invalid")
	}

	slog.Info("remote Release signature is valid", "codename", m.codename, "key_id", m.verifyKey.GetHexKeyID())
	return release, nil
}

func (m *Mirror) verifyCleartext(inRelease []byte) ([]byte, error) {
	if m.verifyKey == nil {
		slog.Warn("no verification key configured, trusting remote release", "codename", m.codename)
		return stripCleartext(inRelease), nil
	}

	verifier, err := m.pgp.Verify().VerificationKey(m.verifyKey).New()
	if err != nil {
		return nil, errors.Wrap(err, "mirror: creating verifier")
	}
	result, err := verifier.VerifyCleartext(inRelease)
	if err != nil {
		return nil, errors.Wrap(err, "mirror: verifying InRelease signature")
	}
	if sigErr := result.SignatureError(); sigErr != nil {
		return nil, errors.Wrap(sigErr, "mirror: InRelease signature invalid")
	}

	slog.Info("remote InRelease signature is valid", "codename", m.codename, "key_id", m.verifyKey.GetHexKeyID())
	return result.Cleartext(), nil
}

// stripCleartext extracts the message body from a cleartext-signed
// InRelease without verifying it.
func stripCleartext(data []byte) []byte {
	const header = "-----BEGIN PGP SIGNED MESSAGE-----"
	const sigHeader = "-----BEGIN PGP SIGNATURE-----"

	start := bytes.Index(data, []byte(header))
	if start < 0 {
		// Not cleartext signed; treat as a plain Release body.
		return data
	}

	body := data[start:]
	// The message starts after the blank line that terminates the hash
	// headers.
	if idx := bytes.Index(body, []byte("\n\n")); idx >= 0 {
		body = body[idx+2:]
	}
	if idx := bytes.Index(body, []byte(sigHeader)); idx >= 0 {
		body = body[:idx]
	}
	return body
}

func (m *Mirror) saveState(packages int) error {
	f, err := os.OpenFile(filepath.Join(m.dir, stateJSON), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) // #nosec G304 - path is under the validated state dir
	if err != nil {
		return errors.Wrap(err, "mirror: saving state")
	}
	defer func() {
		_ = f.Close()
	}()

	return json.NewEncoder(f).Encode(state{
		Codename:    m.codename,
		LastRefresh: time.Now().UTC(),
		Packages:    packages,
	})
}
