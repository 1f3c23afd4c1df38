package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// MarshalPackages renders a Packages index from package metadata.
// Entries are ordered by name, version and architecture.
func MarshalPackages(packages []Package) []byte {
	var buf bytes.Buffer

	sorted := make([]Package, len(packages))
	copy(sorted, packages)
	SortPackages(sorted)

	for i := range sorted {
		pkg := &sorted[i]
		fmt.Fprintf(&buf, "Package: %s\n", pkg.Name)
		fmt.Fprintf(&buf, "Version: %s\n", pkg.Version)
		fmt.Fprintf(&buf, "Architecture: %s\n", pkg.Architecture)
		if pkg.Maintainer != "" {
			fmt.Fprintf(&buf, "Maintainer: %s\n", pkg.Maintainer)
		}
		if len(pkg.Depends) > 0 {
			fmt.Fprintf(&buf, "Depends: %s\n", strings.Join(pkg.Depends, ", "))
		}
		if pkg.Section != "" {
			fmt.Fprintf(&buf, "Section: %s\n", pkg.Section)
		}
		if pkg.Priority != "" {
			fmt.Fprintf(&buf, "Priority: %s\n", pkg.Priority)
		}
		if pkg.Homepage != "" {
			fmt.Fprintf(&buf, "Homepage: %s\n", pkg.Homepage)
		}
		fmt.Fprintf(&buf, "Filename: %s\n", pkg.Filename)
		fmt.Fprintf(&buf, "Size: %d\n", pkg.Size)
		fmt.Fprintf(&buf, "MD5sum: %s\n", pkg.MD5Sum)
		fmt.Fprintf(&buf, "SHA1: %s\n", pkg.SHA1)
		fmt.Fprintf(&buf, "SHA256: %s\n", pkg.SHA256)
		fmt.Fprintf(&buf, "SHA512: %s\n", pkg.SHA512)

		// Remaining control fields in stable order.
		keys := make([]string, 0, len(pkg.Fields))
		for key := range pkg.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			writeField(&buf, key, pkg.Fields[key])
		}

		if pkg.Description != "" {
			writeField(&buf, "Description", pkg.Description)
		}

		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// writeField renders one field, indenting continuation lines the way
// the paragraph format requires. An empty continuation line becomes
// the "." placeholder.
func writeField(buf *bytes.Buffer, key, value string) {
	lines := strings.Split(value, "\n")
	fmt.Fprintf(buf, "%s: %s\n", key, lines[0])
	for _, line := range lines[1:] {
		if line == "" {
			line = "."
		}
		fmt.Fprintf(buf, " %s\n", line)
	}
}

// ParsePackages reads a Packages index into package metadata.
func ParsePackages(r io.Reader) ([]Package, error) {
	var packages []Package
	var current *Package

	var field string
	var value strings.Builder

	assign := func() {
		if current != nil && field != "" {
			setIndexField(current, field, value.String())
		}
		field = ""
	}
	flush := func() {
		assign()
		if current != nil {
			packages = append(packages, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// An empty line terminates the paragraph.
		if line == "" {
			flush()
			continue
		}

		// Continuation lines begin with whitespace; "." stands for an
		// empty line.
		if line[0] == ' ' || line[0] == '\t' {
			if field == "" {
				continue
			}
			text := strings.TrimSpace(line)
			if text == "." {
				text = ""
			}
			value.WriteString("\n")
			value.WriteString(text)
			continue
		}

		assign()

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		if current == nil {
			current = &Package{Fields: make(map[string]string)}
		}
		field = line[:idx]
		value.Reset()
		value.WriteString(strings.TrimSpace(line[idx+1:]))
	}
	flush()

	return packages, scanner.Err()
}

func setIndexField(pkg *Package, field, value string) {
	switch field {
	case "Package":
		pkg.Name = value
	case "Version":
		pkg.Version = value
	case "Architecture":
		pkg.Architecture = value
	case "Filename":
		pkg.Filename = value
	case "Size":
		size, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			pkg.Size = size
		}
	case "MD5sum":
		pkg.MD5Sum = value
	case "SHA1":
		pkg.SHA1 = value
	case "SHA256":
		pkg.SHA256 = value
	case "SHA512":
		pkg.SHA512 = value
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
		pkg.Depends = strings.Split(value, ", ")
	default:
		pkg.Fields[field] = value
	}
}
