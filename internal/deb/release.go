package deb

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// IndexFile describes an index file listed in a Release paragraph.
// Path is relative to the dists/<codename>/ directory.
type IndexFile struct {
	Path string
	Sums *Checksums
}

// Release describes the repository-level metadata published in the
// dists/<codename>/Release file.
type Release struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Architectures []string
	Components    []string
	Date          time.Time
}

// Marshal renders the Release file with checksum sections for the
// given index files.
func (r *Release) Marshal(files []IndexFile) []byte {
	var buf bytes.Buffer

	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}

	fmt.Fprintf(&buf, "Origin: %s\n", r.Origin)
	fmt.Fprintf(&buf, "Label: %s\n", r.Label)
	fmt.Fprintf(&buf, "Suite: %s\n", r.Suite)
	fmt.Fprintf(&buf, "Codename: %s\n", r.Codename)
	fmt.Fprintf(&buf, "Architectures: %s\n", strings.Join(r.Architectures, " "))
	fmt.Fprintf(&buf, "Components: %s\n", strings.Join(r.Components, " "))
	fmt.Fprintf(&buf, "Date: %s\n", date.UTC().Format(time.RFC1123Z))

	buf.WriteString("MD5Sum:\n")
	for _, file := range files {
		fmt.Fprintf(&buf, " %s %d %s\n", file.Sums.MD5, file.Sums.Size, file.Path)
	}
	buf.WriteString("SHA1:\n")
	for _, file := range files {
		fmt.Fprintf(&buf, " %s %d %s\n", file.Sums.SHA1, file.Sums.Size, file.Path)
	}
	buf.WriteString("SHA256:\n")
	for _, file := range files {
		fmt.Fprintf(&buf, " %s %d %s\n", file.Sums.SHA256, file.Sums.Size, file.Path)
	}
	buf.WriteString("SHA512:\n")
	for _, file := range files {
		fmt.Fprintf(&buf, " %s %d %s\n", file.Sums.SHA512, file.Sums.Size, file.Path)
	}

	return buf.Bytes()
}

// ParseReleaseIndexFiles extracts the SHA256 file list from a Release
// or InRelease body. Paths are relative to the dists/<codename>/
// directory.
func ParseReleaseIndexFiles(data []byte) []IndexFile {
	var files []IndexFile
	inSection := false

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, " ") {
			inSection = strings.TrimRight(line, ":") == "SHA256" && strings.HasSuffix(line, ":")
			continue
		}
		if !inSection {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		var size int64
		if _, err := fmt.Sscanf(fields[1], "%d", &size); err != nil {
			continue
		}
		files = append(files, IndexFile{
			Path: fields[2],
			Sums: &Checksums{SHA256: fields[0], Size: size},
		})
	}

	return files
}
