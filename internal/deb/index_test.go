package deb

import (
	"bytes"
	"strings"
	"testing"
)

func testPackage(name, version string) Package {
	return Package{
		Name:         name,
		Version:      version,
		Architecture: "amd64",
		Filename:     "pool/main/" + name[:1] + "/" + name + "/" + name + "_" + version + "_amd64.deb",
		Size:         1234,
		MD5Sum:       "d41d8cd98f00b204e9800998ecf8427e",
		SHA1:         "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		SHA256:       "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA512:       strings.Repeat("0", 128),
		Maintainer:   "Test <test@example.com>",
		Description:  "test package",
	}
}

func TestMarshalPackagesOrder(t *testing.T) {
	t.Parallel()

	packages := []Package{
		testPackage("zsh", "5.8-3"),
		testPackage("hello", "2.10-2"),
		// Debian ordering: 1.9 < 1.10, unlike lexicographic.
		testPackage("acl", "1.10"),
		testPackage("acl", "1.9"),
	}

	data := MarshalPackages(packages)
	text := string(data)

	iAcl9 := strings.Index(text, "acl_1.9_amd64.deb")
	iAcl10 := strings.Index(text, "acl_1.10_amd64.deb")
	iHello := strings.Index(text, "Package: hello")
	iZsh := strings.Index(text, "Package: zsh")

	if iAcl9 < 0 || iAcl10 < 0 || iHello < 0 || iZsh < 0 {
		t.Fatalf("missing entries in index:\n%s", text)
	}
	if !(iAcl9 < iAcl10 && iAcl10 < iHello && iHello < iZsh) {
		t.Errorf("wrong entry order:\n%s", text)
	}

	// Input slice must not be reordered.
	if packages[0].Name != "zsh" {
		t.Error("MarshalPackages mutated its input")
	}
}

func TestMarshalPackagesMultilineDescription(t *testing.T) {
	t.Parallel()

	pkg := testPackage("hello", "2.10-2")
	pkg.Description = "example package based on GNU hello\nThe GNU hello program produces a familiar, friendly greeting.\n\nIt is fully documented."

	data := MarshalPackages([]Package{pkg})

	// Every line of the extended description must carry the leading
	// space the paragraph format requires; an empty line becomes ".".
	text := string(data)
	for _, want := range []string{
		"Description: example package based on GNU hello\n",
		" The GNU hello program produces a familiar, friendly greeting.\n",
		" .\n",
		" It is fully documented.\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("index lacks %q:\n%s", want, text)
		}
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" || line[0] == ' ' || strings.Contains(line, ": ") {
			continue
		}
		t.Errorf("continuation line emitted without leading space: %q", line)
	}

	parsed, err := ParsePackages(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 {
		t.Fatalf("len(parsed) = %d, want 1", len(parsed))
	}
	if parsed[0].Description != pkg.Description {
		t.Errorf("Description round trip lost content:\ngot  %q\nwant %q", parsed[0].Description, pkg.Description)
	}
}

func TestParsePackagesRoundTrip(t *testing.T) {
	t.Parallel()

	original := []Package{testPackage("hello", "2.10-2")}
	original[0].Depends = []string{"libc6 (>= 2.14)", "libgcc1"}
	original[0].Fields = map[string]string{"Installed-Size": "280"}

	parsed, err := ParsePackages(bytes.NewReader(MarshalPackages(original)))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 {
		t.Fatalf("len(parsed) = %d, want 1", len(parsed))
	}

	pkg := parsed[0]
	if pkg.Name != "hello" || pkg.Version != "2.10-2" {
		t.Errorf("parsed %s %s", pkg.Name, pkg.Version)
	}
	if pkg.Filename != original[0].Filename {
		t.Errorf("pkg.Filename = %q", pkg.Filename)
	}
	if pkg.Size != 1234 {
		t.Errorf("pkg.Size = %d", pkg.Size)
	}
	if pkg.SHA256 != original[0].SHA256 {
		t.Errorf("pkg.SHA256 = %q", pkg.SHA256)
	}
	if len(pkg.Depends) != 2 {
		t.Errorf("pkg.Depends = %v", pkg.Depends)
	}
	if pkg.Fields["Installed-Size"] != "280" {
		t.Errorf("pkg.Fields = %v", pkg.Fields)
	}
}

func TestParsePackagesEmpty(t *testing.T) {
	t.Parallel()

	parsed, err := ParsePackages(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 0 {
		t.Errorf("len(parsed) = %d, want 0", len(parsed))
	}
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	if CompareVersions("1.9", "1.10") >= 0 {
		t.Error(`"1.9" should sort before "1.10"`)
	}
	if CompareVersions("2.10-2", "2.10-2") != 0 {
		t.Error("equal versions should compare equal")
	}
	if CompareVersions("1:1.0", "2.0") <= 0 {
		t.Error("epoch 1 should sort after epoch 0")
	}
}
