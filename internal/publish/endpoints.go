package publish

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// endpoint is the per-bucket record kept in the endpoints file.
type endpoint struct {
	Region string `json:"region"`
	Prefix string `json:"prefix"`
	ACL    string `json:"acl"`
	URL    string `json:"url"`
}

// jsonPathEscaper quotes the characters that are structural in
// gjson/sjson paths, so bucket names like "apt.example.com" address a
// single top-level key.
var jsonPathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
)

// UpdateEndpoints inserts or overwrites the entry for cfg.Bucket in
// the endpoints file at path, leaving every other entry untouched. A
// missing file starts from an empty document.
func UpdateEndpoints(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from validated settings
	switch {
	case os.IsNotExist(err):
		data = []byte("{}\n")
	case err != nil:
		return errors.Wrap(err, "reading endpoints file")
	}
	if !gjson.ValidBytes(data) {
		return errors.New("endpoints file is not valid JSON: " + path)
	}

	url := "s3://" + cfg.Bucket + "/"
	if cfg.Prefix != "" {
		url += strings.Trim(cfg.Prefix, "/") + "/"
	}

	data, err = sjson.SetBytes(data, jsonPathEscaper.Replace(cfg.Bucket), endpoint{
		Region: cfg.Region,
		Prefix: cfg.Prefix,
		ACL:    cfg.ACL,
		URL:    url,
	})
	if err != nil {
		return errors.Wrap(err, "updating endpoints file")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "creating endpoints directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil { // #nosec G306 - endpoints file is not sensitive
		return errors.Wrap(err, "writing endpoints file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "replacing endpoints file")
	}
	return nil
}

// Endpoint returns the recorded entry for a bucket, if any.
func Endpoint(path, bucket string) (region, prefix string, ok bool) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from validated settings
	if err != nil {
		return "", "", false
	}
	entry := gjson.GetBytes(data, jsonPathEscaper.Replace(bucket))
	if !entry.Exists() {
		return "", "", false
	}
	return entry.Get("region").String(), entry.Get("prefix").String(), true
}
