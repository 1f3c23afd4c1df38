package repo

import (
	"bytes"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"

	"github.com/aptpub/aptpub/internal/deb"
	"github.com/aptpub/aptpub/internal/sign"
)

// ExportOptions controls the generated repository metadata.
type ExportOptions struct {
	Origin    string
	Label     string
	Component string
	Signer    *sign.Signer
}

// Export renders the signed publish tree for the repository: per-arch
// Packages indices, the Release file, the cleartext-signed InRelease
// and the detached Release.gpg. The result maps repository-relative
// object keys to file contents; pool files are not included.
func (r *Repo) Export(opts ExportOptions) (map[string][]byte, error) {
	if opts.Signer == nil {
		return nil, errors.New("repo: Export requires a signer")
	}
	component := opts.Component
	if component == "" {
		component = "main"
	}

	packages := r.Packages()
	architectures := r.Architectures()
	distsDir := path.Join("dists", r.codename)

	out := make(map[string][]byte)
	var indexFiles []deb.IndexFile

	for _, arch := range architectures {
		var archPackages []deb.Package
		for _, pkg := range packages {
			if pkg.Architecture == arch || pkg.Architecture == "all" {
				archPackages = append(archPackages, pkg)
			}
		}

		index := deb.MarshalPackages(archPackages)
		compressed, err := gzipBytes(index)
		if err != nil {
			return nil, errors.Wrap(err, "repo: compressing Packages")
		}

		relPath := path.Join(component, "binary-"+arch, "Packages")
		out[path.Join(distsDir, relPath)] = index
		out[path.Join(distsDir, relPath+".gz")] = compressed
		indexFiles = append(indexFiles,
			deb.IndexFile{Path: relPath, Sums: deb.ChecksumBytes(index)},
			deb.IndexFile{Path: relPath + ".gz", Sums: deb.ChecksumBytes(compressed)},
		)
	}

	rel := &deb.Release{
		Origin:        opts.Origin,
		Label:         opts.Label,
		Suite:         r.codename,
		Codename:      r.codename,
		Architectures: architectures,
		Components:    []string{component},
	}
	release := rel.Marshal(indexFiles)
	out[path.Join(distsDir, "Release")] = release

	inRelease, err := opts.Signer.Cleartext(release)
	if err != nil {
		return nil, errors.Wrap(err, "repo: signing InRelease")
	}
	out[path.Join(distsDir, "InRelease")] = inRelease

	detached, err := opts.Signer.Detached(release)
	if err != nil {
		return nil, errors.Wrap(err, "repo: signing Release.gpg")
	}
	out[path.Join(distsDir, "Release.gpg")] = detached

	publicKey, err := opts.Signer.PublicKey()
	if err != nil {
		return nil, errors.Wrap(err, "repo: exporting public key")
	}
	out["public.key"] = publicKey

	return out, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
