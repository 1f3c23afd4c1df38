package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"
)

func endpointsConfig(bucket string) *Config {
	return &Config{
		Region: "us-east-1",
		Bucket: bucket,
		Prefix: "ubuntu",
		ACL:    "public-read",
	}
}

func TestUpdateEndpointsCreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "endpoints.json")
	if err := UpdateEndpoints(path, endpointsConfig("apt-example")); err != nil {
		t.Fatal(err)
	}

	region, prefix, ok := Endpoint(path, "apt-example")
	if !ok {
		t.Fatal("entry missing after update")
	}
	if region != "us-east-1" || prefix != "ubuntu" {
		t.Errorf("entry = %q %q", region, prefix)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if url := gjson.GetBytes(data, "apt-example.url").String(); url != "s3://apt-example/ubuntu/" {
		t.Errorf("url = %q", url)
	}
}

func TestUpdateEndpointsPreservesOtherEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "endpoints.json")
	seed := `{"other-bucket":{"region":"eu-west-1","prefix":"debian","acl":"private","url":"s3://other-bucket/debian/"}}`
	if err := os.WriteFile(path, []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	if err := UpdateEndpoints(path, endpointsConfig("apt-example")); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := Endpoint(path, "apt-example"); !ok {
		t.Error("new entry missing")
	}
	region, _, ok := Endpoint(path, "other-bucket")
	if !ok {
		t.Fatal("existing entry was dropped")
	}
	if region != "eu-west-1" {
		t.Errorf("existing entry region = %q", region)
	}
}

func TestUpdateEndpointsDottedBucket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "endpoints.json")
	if err := UpdateEndpoints(path, endpointsConfig("apt.example.com")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := gjson.ParseBytes(data)
	if n := len(doc.Map()); n != 1 {
		t.Fatalf("dotted bucket split into %d keys", n)
	}
	if _, _, ok := Endpoint(path, "apt.example.com"); !ok {
		t.Error("dotted bucket entry not addressable")
	}
}

func TestUpdateEndpointsOverwritesEntry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "endpoints.json")
	if err := UpdateEndpoints(path, endpointsConfig("apt-example")); err != nil {
		t.Fatal(err)
	}

	cfg := endpointsConfig("apt-example")
	cfg.Region = "ap-northeast-1"
	if err := UpdateEndpoints(path, cfg); err != nil {
		t.Fatal(err)
	}

	region, _, _ := Endpoint(path, "apt-example")
	if region != "ap-northeast-1" {
		t.Errorf("region = %q, want the overwritten value", region)
	}
}

func TestUpdateEndpointsRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "endpoints.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := UpdateEndpoints(path, endpointsConfig("apt-example")); err == nil {
		t.Error("UpdateEndpoints should reject a corrupt file")
	}
}
