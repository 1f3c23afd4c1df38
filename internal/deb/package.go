// Package deb handles the Debian binary package and repository index
// formats: .deb control extraction, Packages paragraphs, and Release
// files.
package deb

import (
	"fmt"
	"sort"
	"strings"

	version "github.com/knqyf263/go-deb-version"
)

// Package is the metadata of a single .deb file as it appears in a
// Packages index paragraph.
type Package struct {
	Name         string
	Version      string
	Architecture string

	// Filename is the pool-relative path published in the index,
	// e.g. "pool/main/h/hello/hello_2.10-2_amd64.deb".
	Filename string

	Size   int64
	MD5Sum string
	SHA1   string
	SHA256 string
	SHA512 string

	Maintainer  string
	Description string
	Homepage    string
	Section     string
	Priority    string
	Depends     []string

	// Fields keeps control fields that have no dedicated struct member.
	Fields map[string]string
}

// PoolName returns the canonical pool filename for the package.
func (p *Package) PoolName() string {
	return fmt.Sprintf("%s_%s_%s.deb", p.Name, p.Version, p.Architecture)
}

// PoolPath returns the pool-relative path for the package, following
// the Debian pool layout (pool/<component>/<initial>/<source>/<file>).
func (p *Package) PoolPath(component string) string {
	initial := p.Name[:1]
	if strings.HasPrefix(p.Name, "lib") && len(p.Name) > 3 {
		initial = p.Name[:4]
	}
	return "pool/" + component + "/" + initial + "/" + p.Name + "/" + p.PoolName()
}

// CompareVersions compares two Debian version strings.
// Returns a negative value if a < b, zero if equal, positive if a > b.
// Falls back to string comparison when either version fails to parse.
func CompareVersions(a, b string) int {
	v1, err1 := version.NewVersion(a)
	v2, err2 := version.NewVersion(b)
	if err1 != nil || err2 != nil {
		return strings.Compare(a, b)
	}
	return v1.Compare(v2)
}

// SortPackages orders packages by name, then by Debian version, then by
// architecture, which is the conventional Packages index order.
func SortPackages(packages []Package) {
	sort.Slice(packages, func(i, j int) bool {
		if packages[i].Name != packages[j].Name {
			return packages[i].Name < packages[j].Name
		}
		if c := CompareVersions(packages[i].Version, packages[j].Version); c != 0 {
			return c < 0
		}
		return packages[i].Architecture < packages[j].Architecture
	})
}
