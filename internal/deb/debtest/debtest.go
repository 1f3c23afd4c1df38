// Package debtest builds minimal .deb files for tests.
package debtest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
)

// HelloControl is a control file for a small example package.
const HelloControl = `Package: hello
Version: 2.10-2
Architecture: amd64
Maintainer: Test Maintainer <test@example.com>
Depends: libc6 (>= 2.14)
Section: devel
Priority: optional
Homepage: https://www.gnu.org/software/hello/
Description: example package based on GNU hello
 The GNU hello program produces a familiar, friendly greeting.
`

// Build writes a structurally valid .deb file with the given control
// contents to dir and returns its path.
func Build(dir, filename, control string) (string, error) {
	controlTar, err := tarControl(control)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")
	writeArMember(&buf, "debian-binary", []byte("2.0\n"))
	writeArMember(&buf, "control.tar.gz", controlTar)
	writeArMember(&buf, "data.tar.gz", []byte{})

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// writeArMember appends one member to an ar archive.
// Header layout: name[16] mtime[12] uid[6] gid[6] mode[8] size[10] "`\n".
func writeArMember(buf *bytes.Buffer, name string, data []byte) {
	fmt.Fprintf(buf, "%-16s%-12d%-6d%-6d%-8s%-10d`\n", name, 0, 0, 0, "100644", len(data))
	buf.Write(data)
	if len(data)%2 != 0 {
		buf.WriteByte('\n')
	}
}

func tarControl(control string) ([]byte, error) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	if err := tw.WriteHeader(&tar.Header{
		Name: "./control",
		Mode: 0644,
		Size: int64(len(control)),
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(control)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(tarBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return gzBuf.Bytes(), nil
}
