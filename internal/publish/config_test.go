package publish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setPublishEnv(t *testing.T, packageDir string) {
	t.Helper()
	t.Setenv("APT_SIGNING_KEY", "/keys/signing.asc")
	t.Setenv("APT_SIGNING_PASSPHRASE", "secret")
	t.Setenv("APT_S3_REGION", "us-east-1")
	t.Setenv("APT_S3_BUCKET", "apt-example")
	t.Setenv("APT_S3_ACL", "public-read")
	t.Setenv("APT_S3_PREFIX", "ubuntu")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "examplesecret")
	t.Setenv("APT_PACKAGE_DIR", packageDir)
	t.Setenv("APT_CODENAME", "")
}

func TestFromEnv(t *testing.T) {
	packageDir := t.TempDir()
	setPublishEnv(t, packageDir)

	cfg := FromEnv()
	if err := cfg.Check(); err != nil {
		t.Fatal(err)
	}
	if cfg.Bucket != "apt-example" {
		t.Errorf("Bucket = %q", cfg.Bucket)
	}
	if cfg.PackageDir != packageDir {
		t.Errorf("PackageDir = %q", cfg.PackageDir)
	}
	if cfg.Codename != "bionic" {
		t.Errorf("Codename = %q, want default bionic", cfg.Codename)
	}

	t.Setenv("APT_CODENAME", "jammy")
	if cfg := FromEnv(); cfg.Codename != "jammy" {
		t.Errorf("Codename = %q, want jammy", cfg.Codename)
	}
}

func TestCheckReportsAllMissing(t *testing.T) {
	t.Parallel()

	cfg := &Config{Codename: "bionic"}
	err := cfg.Check()
	if err == nil {
		t.Fatal("Check should fail on an empty configuration")
	}
	for _, name := range []string{"APT_SIGNING_KEY", "APT_S3_BUCKET", "AWS_SECRET_ACCESS_KEY", "APT_PACKAGE_DIR"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not mention %s: %v", name, err)
		}
	}
}

func TestCheckRejectsBadValues(t *testing.T) {
	packageDir := t.TempDir()
	setPublishEnv(t, packageDir)

	cfg := FromEnv()
	cfg.Codename = "Bionic Beaver"
	if err := cfg.Check(); err == nil {
		t.Error("Check should reject a codename with spaces and capitals")
	}

	cfg = FromEnv()
	cfg.PackageDir = "relative/dir"
	if err := cfg.Check(); err == nil {
		t.Error("Check should reject a relative package directory")
	}
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "aptpub.toml")
	content := `
state_dir = "` + dir + `"
max_conns = 4

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.StateDir != dir {
		t.Errorf("StateDir = %q", s.StateDir)
	}
	if s.MaxConns != 4 {
		t.Errorf("MaxConns = %d", s.MaxConns)
	}
	if s.Log.Level != "debug" || s.Log.Format != "json" {
		t.Errorf("Log = %+v", s.Log)
	}
	if s.Endpoints != filepath.Join(dir, "endpoints.json") {
		t.Errorf("Endpoints = %q, want default under state dir", s.Endpoints)
	}
}

func TestLoadSettingsExplicitEndpoints(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "aptpub.toml")
	content := `
state_dir = "` + dir + `"
endpoints = "/etc/aptpub/endpoints.json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Endpoints != "/etc/aptpub/endpoints.json" {
		t.Errorf("Endpoints = %q, want the configured path", s.Endpoints)
	}
}

func TestSettingsCheck(t *testing.T) {
	t.Parallel()

	s := &Settings{StateDir: "relative"}
	if err := s.Check(); err == nil {
		t.Error("Check should reject a relative state dir")
	}

	s = &Settings{StateDir: "/var/lib/aptpub", MaxConns: -1}
	if err := s.Check(); err == nil {
		t.Error("Check should reject negative max_conns")
	}

	s = &Settings{StateDir: "/var/lib/aptpub"}
	if err := s.Check(); err != nil {
		t.Fatal(err)
	}
	if s.MaxConns != defaultMaxConns {
		t.Errorf("MaxConns = %d, want default", s.MaxConns)
	}
}

func TestLogConfigApply(t *testing.T) {
	bad := &LogConfig{Level: "loud"}
	if err := bad.Apply(); err == nil {
		t.Error("Apply should reject an unknown level")
	}
	bad = &LogConfig{Format: "xml"}
	if err := bad.Apply(); err == nil {
		t.Error("Apply should reject an unknown format")
	}
}
