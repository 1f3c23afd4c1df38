// Package blob implements the object storage side of publishing: a
// thin S3 client for existence queries, downloads, and bulk uploads of
// repository trees.
package blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConns = 10

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("blob: object not found")

// Config carries the settings needed to reach the bucket.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	ACL             string
	AccessKeyID     string
	SecretAccessKey string

	// MaxConns bounds parallel transfers within a single upload step.
	MaxConns int
	// Quiet disables the progress bar.
	Quiet bool
}

// api is the subset of the S3 client the package uses.
// It exists so tests can substitute a fake.
type api interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client accesses one bucket under one key prefix.
type Client struct {
	api      api
	bucket   string
	prefix   string
	acl      s3types.ObjectCannedACL
	maxConns int
	quiet    bool
}

// New builds a Client from static credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "blob: loading AWS configuration")
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	return &Client{
		api:      s3.NewFromConfig(awsCfg),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		acl:      s3types.ObjectCannedACL(cfg.ACL),
		maxConns: maxConns,
		quiet:    cfg.Quiet,
	}, nil
}

// Key returns the full object key for a repository-relative path.
func (c *Client) Key(relPath string) string {
	relPath = strings.TrimPrefix(relPath, "/")
	if c.prefix == "" {
		return relPath
	}
	return c.prefix + "/" + relPath
}

// DistExists reports whether the bucket already publishes a dists
// entry for the codename. Matching is exact: "bionic" does not match
// "bionic-security". A missing bucket counts as "does not exist".
func (c *Client) DistExists(ctx context.Context, codename string) (bool, error) {
	base := c.Key("dists/")
	out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(base),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		var noBucket *s3types.NoSuchBucket
		if errors.As(err, &noBucket) {
			return false, nil
		}
		return false, errors.Wrap(err, "blob: listing dists")
	}

	var listed []string
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix != nil {
			listed = append(listed, *cp.Prefix)
		}
	}
	return matchDist(listed, base, codename), nil
}

// matchDist checks a listing of dists/ sub-prefixes for an exact
// codename match.
func matchDist(prefixes []string, base, codename string) bool {
	for _, prefix := range prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(prefix, base), "/")
		if name == codename {
			return true
		}
	}
	return false
}

// List returns the repository-relative keys of all objects under the
// given repository-relative prefix.
func (c *Client) List(ctx context.Context, relPrefix string) ([]string, error) {
	full := c.Key(relPrefix)
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(full),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var noBucket *s3types.NoSuchBucket
			if errors.As(err, &noBucket) {
				return nil, nil
			}
			return nil, errors.Wrap(err, "blob: listing "+relPrefix)
		}
		for _, object := range page.Contents {
			if object.Key == nil {
				continue
			}
			key := *object.Key
			if c.prefix != "" {
				key = strings.TrimPrefix(key, c.prefix+"/")
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Get downloads one object by repository-relative path.
// Returns ErrNotFound when the object or bucket does not exist.
func (c *Client) Get(ctx context.Context, relPath string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.Key(relPath)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		var noBucket *s3types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, errors.Wrap(ErrNotFound, relPath)
		}
		return nil, errors.Wrap(err, "blob: getting "+relPath)
	}
	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, "blob: reading "+relPath)
	}
	return data, nil
}

// Put uploads one in-memory object under the configured ACL.
func (c *Client) Put(ctx context.Context, relPath string, body []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.Key(relPath)),
		Body:   bytes.NewReader(body),
		ACL:    c.acl,
	})
	if err != nil {
		return errors.Wrap(err, "blob: putting "+relPath)
	}
	return nil
}

// Upload is one file scheduled for UploadFiles.
type Upload struct {
	// RelPath is the repository-relative object key.
	RelPath string
	// LocalPath is the file to read.
	LocalPath string
	// Size in bytes, used for progress accounting.
	Size int64
}

// UploadFiles uploads local files on a bounded worker group, showing a
// byte-level progress bar unless quiet.
func (c *Client) UploadFiles(ctx context.Context, files []Upload) error {
	if len(files) == 0 {
		return nil
	}

	var total int64
	for _, file := range files {
		total += file.Size
	}

	var bar *pb.ProgressBar
	if !c.quiet {
		bar = pb.Full.Start64(total)
		bar.Set(pb.Bytes, true)
		defer bar.Finish()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxConns)

	for _, file := range files {
		group.Go(func() error {
			f, err := os.Open(file.LocalPath) // #nosec G304 - paths come from the local repository pool
			if err != nil {
				return errors.Wrap(err, "blob: opening "+file.LocalPath)
			}
			defer func() {
				_ = f.Close()
			}()

			var body io.Reader = f
			if bar != nil {
				body = bar.NewProxyReader(f)
			}

			_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
				Bucket:        aws.String(c.bucket),
				Key:           aws.String(c.Key(file.RelPath)),
				Body:          body,
				ContentLength: aws.Int64(file.Size),
				ACL:           c.acl,
			})
			if err != nil {
				return errors.Wrap(err, "blob: uploading "+file.RelPath)
			}
			slog.Debug("uploaded", "key", file.RelPath, "size", file.Size)
			return nil
		})
	}

	return group.Wait()
}
