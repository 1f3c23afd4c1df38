package deb

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Scan parses a .deb file, extracting its control metadata and
// calculating checksums over the whole file.
func Scan(path string) (*Package, error) {
	sums, err := ChecksumFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "deb.Scan: "+path)
	}

	control, err := extractControl(path)
	if err != nil {
		return nil, errors.Wrap(err, "deb.Scan: "+path)
	}

	pkg, err := parseControl(control)
	if err != nil {
		return nil, errors.Wrap(err, "deb.Scan: "+path)
	}

	if pkg.Name == "" || pkg.Version == "" || pkg.Architecture == "" {
		return nil, errors.New("deb.Scan: control file lacks Package, Version or Architecture: " + path)
	}

	pkg.Size = sums.Size
	pkg.MD5Sum = sums.MD5
	pkg.SHA1 = sums.SHA1
	pkg.SHA256 = sums.SHA256
	pkg.SHA512 = sums.SHA512

	return pkg, nil
}

// extractControl reads the control file out of a .deb package.
// A .deb is an ar archive holding debian-binary, control.tar* and
// data.tar*.
func extractControl(path string) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the configured package directory
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	magic := make([]byte, 8)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, errors.Wrap(err, "reading ar magic")
	}
	if string(magic) != "!<arch>\n" {
		return nil, errors.New("not an ar archive")
	}

	for {
		header := make([]byte, 60)
		_, err := io.ReadFull(f, header)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading ar header")
		}

		// Member name is the first 16 bytes, space padded; GNU ar
		// appends a trailing slash.
		name := strings.TrimRight(strings.TrimSpace(string(header[0:16])), "/")

		sizeStr := strings.TrimSpace(string(header[48:58]))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parsing ar member size")
		}

		if strings.HasPrefix(name, "control.tar") {
			data := make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, errors.Wrap(err, "reading control archive")
			}
			return extractControlFromTar(data, name)
		}

		if _, err := f.Seek(size, io.SeekCurrent); err != nil {
			return nil, err
		}
		// ar members are aligned on 2-byte boundaries
		if size%2 != 0 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.New("control.tar not found in package")
}

func extractControlFromTar(data []byte, name string) ([]byte, error) {
	var tr *tar.Reader

	switch {
	case strings.HasSuffix(name, ".gz"):
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = gr.Close()
		}()
		tr = tar.NewReader(gr)
	case strings.HasSuffix(name, ".xz"):
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		tr = tar.NewReader(xr)
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		tr = tar.NewReader(zr)
	default:
		tr = tar.NewReader(bytes.NewReader(data))
	}

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if header.Name == "./control" || header.Name == "control" {
			return io.ReadAll(tr)
		}
	}

	return nil, errors.New("control file not found in " + name)
}

// parseControl parses the RFC 822 style Debian control format.
func parseControl(data []byte) (*Package, error) {
	pkg := &Package{
		Fields: make(map[string]string),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var key string
	var value strings.Builder

	flush := func() {
		if key != "" {
			setControlField(pkg, key, value.String())
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Continuation lines begin with whitespace; "." stands for an
		// empty line.
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			text := strings.TrimSpace(line)
			if text == "." {
				text = ""
			}
			value.WriteString("\n")
			value.WriteString(text)
			continue
		}

		flush()

		idx := strings.Index(line, ":")
		if idx < 0 {
			key = ""
			continue
		}
		key = strings.TrimSpace(line[:idx])
		value.Reset()
		value.WriteString(strings.TrimSpace(line[idx+1:]))
	}
	flush()

	return pkg, scanner.Err()
}

func setControlField(pkg *Package, key, value string) {
	switch key {
	case "Package":
		pkg.Name = value
	case "Version":
		pkg.Version = value
	case "Architecture":
		pkg.Architecture = value
	case "Maintainer":
		pkg.Maintainer = value
	case "Description":
		pkg.Description = value
	case "Homepage":
		pkg.Homepage = value
	case "Section":
		pkg.Section = value
	case "Priority":
		pkg.Priority = value
	case "Depends":
		for _, dep := range strings.Split(value, ",") {
			pkg.Depends = append(pkg.Depends, strings.TrimSpace(dep))
		}
	default:
		pkg.Fields[key] = value
	}
}
