// Package s3 provides an S3-compatible remote backend for imgset.
//
// This adapter supports AWS S3, MinIO, Ceph RGW, LocalStack and other
// S3-compatible object stores. It is read-only: datasets are expected to be
// uploaded out of band.
//
// # Addressing
//
// Keys passed to the store take one of three forms:
//   - "path/to/object": resolved against Config.Bucket and Config.Prefix
//   - "s3://bucket/path/to/object": explicit bucket, prefix not applied
//   - "cluster:s3://bucket/path/to/object": explicit bucket on the named
//     cluster client from Config.Clusters
//
// The URI forms are what path mappings usually produce, for example
// "data/imagenet/" -> "openmmlab:s3://openmmlab/datasets/imagenet/".
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/imgset/imgset"
)

const uriScheme = "s3://"

// ErrUnknownCluster indicates a key names a cluster with no configured client.
var ErrUnknownCluster = errors.New("s3: unknown cluster")

// ErrNoBucket indicates a plain key was used without a configured bucket.
var ErrNoBucket = errors.New("s3: no bucket configured for plain key")

// API defines the subset of the S3 client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the bucket used for plain keys. Optional when every key is
	// an s3:// URI.
	Bucket string

	// Prefix is an optional key prefix for plain keys.
	// A trailing slash is added if missing.
	Prefix string

	// Clusters maps cluster names to clients for "cluster:s3://" keys.
	Clusters map[string]API
}

// Store implements imgset.Store using an S3-compatible backend.
type Store struct {
	client   API
	bucket   string
	prefix   string
	clusters map[string]API
}

var _ imgset.Store = (*Store)(nil)

// New creates a new S3 store with the given default client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use NewClient or github.com/aws/aws-sdk-go-v2/config to build one.
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	clusters := make(map[string]API, len(cfg.Clusters))
	for name, c := range cfg.Clusters {
		if c == nil {
			return nil, fmt.Errorf("s3: cluster %q has no client", name)
		}
		clusters[name] = c
	}

	return &Store{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   prefix,
		clusters: clusters,
	}, nil
}

// Get retrieves the object addressed by key.
// Returns imgset.ErrNotFound if the object does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	t, err := s.target(key, false)
	if err != nil {
		return nil, err
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, imgset.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get object %s/%s: %w", t.bucket, t.key, err)
	}

	return out.Body, nil
}

// Exists checks whether the object addressed by key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	t, err := s.target(key, false)
	if err != nil {
		return false, err
	}

	_, err = t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3: head object %s/%s: %w", t.bucket, t.key, err)
	}
	return true, nil
}

// List returns all keys under prefix.
// Pagination is handled automatically; all matching keys are returned.
//
// Keys come back in the same form as prefix: relative to Config.Prefix for
// plain prefixes, full URIs for URI prefixes.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	t, err := s.target(prefix, true)
	if err != nil {
		return nil, err
	}

	var keys []string
	var continuationToken *string

	for {
		out, err := t.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(t.bucket),
			Prefix:            aws.String(t.key),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list objects %s/%s: %w", t.bucket, t.key, err)
		}

		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, t.external(*obj.Key))
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return keys, nil
}

// -----------------------------------------------------------------------------
// Key resolution
// -----------------------------------------------------------------------------

// target is a resolved request location.
type target struct {
	client API
	bucket string
	key    string

	// uriBase is "cluster:s3://bucket/" for URI keys, empty for plain keys.
	uriBase string
	// stripPrefix is removed from listed keys of plain requests.
	stripPrefix string
}

// external maps a raw object key back into the addressing form of the request.
func (t target) external(objectKey string) string {
	if t.uriBase != "" {
		return t.uriBase + objectKey
	}
	return strings.TrimPrefix(objectKey, t.stripPrefix)
}

func (s *Store) target(key string, isPrefix bool) (target, error) {
	i := strings.Index(key, uriScheme)
	if i < 0 {
		return s.plainTarget(key, isPrefix)
	}

	head := key[:i]
	cluster := ""
	if head != "" {
		if !strings.HasSuffix(head, ":") || strings.Contains(head[:len(head)-1], ":") {
			return target{}, imgset.ErrInvalidPath
		}
		cluster = head[:len(head)-1]
	}

	client := s.client
	if cluster != "" {
		c, ok := s.clusters[cluster]
		if !ok {
			return target{}, fmt.Errorf("%w: %q", ErrUnknownCluster, cluster)
		}
		client = c
	}

	bucket, objectKey, _ := strings.Cut(key[i+len(uriScheme):], "/")
	if bucket == "" {
		return target{}, imgset.ErrInvalidPath
	}

	cleaned, err := cleanKey(objectKey, isPrefix)
	if err != nil {
		return target{}, err
	}

	return target{
		client:  client,
		bucket:  bucket,
		key:     cleaned,
		uriBase: head + uriScheme + bucket + "/",
	}, nil
}

func (s *Store) plainTarget(key string, isPrefix bool) (target, error) {
	if s.bucket == "" {
		return target{}, ErrNoBucket
	}
	cleaned, err := cleanKey(key, isPrefix)
	if err != nil {
		return target{}, err
	}
	return target{
		client:      s.client,
		bucket:      s.bucket,
		key:         s.prefix + cleaned,
		stripPrefix: s.prefix,
	}, nil
}

// cleanKey normalizes an object key or list prefix. A trailing slash on a
// prefix is kept so "a/" does not match "ab/x".
func cleanKey(key string, isPrefix bool) (string, error) {
	if key == "" {
		if isPrefix {
			return "", nil
		}
		return "", imgset.ErrInvalidPath
	}

	cleaned := path.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", imgset.ErrInvalidPath
	}
	if cleaned == "." {
		if isPrefix {
			return "", nil
		}
		return "", imgset.ErrInvalidPath
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		if isPrefix {
			return "", nil
		}
		return "", imgset.ErrInvalidPath
	}
	if isPrefix && strings.HasSuffix(key, "/") {
		cleaned += "/"
	}
	return cleaned, nil
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
