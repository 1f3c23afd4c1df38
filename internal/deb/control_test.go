package deb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aptpub/aptpub/internal/deb/debtest"
)

func TestScan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := debtest.Build(dir, "hello_2.10-2_amd64.deb", debtest.HelloControl)
	if err != nil {
		t.Fatal(err)
	}

	pkg, err := Scan(path)
	if err != nil {
		t.Fatal(err)
	}

	if pkg.Name != "hello" {
		t.Errorf(`pkg.Name = %q, want "hello"`, pkg.Name)
	}
	if pkg.Version != "2.10-2" {
		t.Errorf(`pkg.Version = %q, want "2.10-2"`, pkg.Version)
	}
	if pkg.Architecture != "amd64" {
		t.Errorf(`pkg.Architecture = %q, want "amd64"`, pkg.Architecture)
	}
	if pkg.Maintainer != "Test Maintainer <test@example.com>" {
		t.Errorf("pkg.Maintainer = %q", pkg.Maintainer)
	}
	if len(pkg.Depends) != 1 || pkg.Depends[0] != "libc6 (>= 2.14)" {
		t.Errorf("pkg.Depends = %v", pkg.Depends)
	}
	if pkg.Section != "devel" {
		t.Errorf("pkg.Section = %q", pkg.Section)
	}

	// Continuation lines fold into the Description field.
	want := "example package based on GNU hello\nThe GNU hello program produces a familiar, friendly greeting."
	if pkg.Description != want {
		t.Errorf("pkg.Description = %q, want %q", pkg.Description, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Size != info.Size() {
		t.Errorf("pkg.Size = %d, want %d", pkg.Size, info.Size())
	}
	if len(pkg.SHA256) != 64 {
		t.Errorf("pkg.SHA256 = %q, want 64 hex chars", pkg.SHA256)
	}

	if pkg.PoolName() != "hello_2.10-2_amd64.deb" {
		t.Errorf("pkg.PoolName() = %q", pkg.PoolName())
	}
	if pkg.PoolPath("main") != "pool/main/h/hello/hello_2.10-2_amd64.deb" {
		t.Errorf("pkg.PoolPath() = %q", pkg.PoolPath("main"))
	}
}

func TestScanNotAnArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.deb")
	if err := os.WriteFile(path, []byte("this is not an ar archive"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Scan(path); err == nil {
		t.Error("Scan should fail on a non-archive file")
	}
}

func TestScanMissingRequiredFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := debtest.Build(dir, "broken_1.0_all.deb", "Package: broken\n")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Scan(path); err == nil {
		t.Error("Scan should fail when Version and Architecture are missing")
	}
}

func TestPoolPathLibPrefix(t *testing.T) {
	t.Parallel()

	pkg := &Package{Name: "libfoo", Version: "1.0", Architecture: "amd64"}
	if got := pkg.PoolPath("main"); got != "pool/main/libf/libfoo/libfoo_1.0_amd64.deb" {
		t.Errorf("PoolPath = %q", got)
	}
}
