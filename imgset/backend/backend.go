// Package backend turns a Config record into a ready imgset.Client.
//
// Backends are looked up by Kind in a constructor table. Adding a backend
// means adding a Kind and a table entry; callers only ever see
// *imgset.Client.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/imgset/imgset"
	"github.com/pithecene-io/imgset/imgset/s3"
)

// Kind names a storage backend.
type Kind string

// Known backend kinds.
const (
	Local  Kind = "local"
	Remote Kind = "remote"
	Memory Kind = "memory"
)

// ErrUnknownBackend indicates a Config names a backend with no constructor.
var ErrUnknownBackend = errors.New("unknown backend")

type constructor func(ctx context.Context, cfg Config) (imgset.Store, error)

var constructors = map[Kind]constructor{
	Local:  openLocal,
	Remote: openRemote,
	Memory: openMemory,
}

// Kinds returns the registered backend kinds in sorted order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Open builds the store for cfg.Backend and binds a Client to it.
//
// Path mappings are applied for every backend. For Remote with no explicit
// mapping and a ClusterName set, DefaultPathMapping is used.
func Open(ctx context.Context, cfg Config) (*imgset.Client, error) {
	kind := cfg.Backend
	if kind == "" {
		kind = Local
	}
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownBackend, kind, Kinds())
	}

	mapping, err := cfg.mappingTable()
	if err != nil {
		return nil, err
	}

	store, err := ctor(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", kind, err)
	}

	if len(mapping) == 0 && kind == Remote && cfg.ClusterName != "" {
		mapping = DefaultPathMapping(cfg.ClusterName)
	}

	return imgset.NewClient(store, imgset.WithPathMapping(mapping))
}

// DefaultPathMapping maps the conventional local ImageNet layout onto the
// shared remote copy on the given cluster.
func DefaultPathMapping(cluster string) map[string]string {
	remote := cluster + ":s3://openmmlab/datasets/classification/imagenet/"
	return map[string]string{
		"./data/imagenet/": remote,
		"data/imagenet/":   remote,
	}
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func openLocal(_ context.Context, cfg Config) (imgset.Store, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return imgset.NewFS(root)
}

func openMemory(context.Context, Config) (imgset.Store, error) {
	return imgset.NewMemory(), nil
}

// newS3Client is replaced in tests.
var newS3Client = func(ctx context.Context, c S3Config) (s3.API, error) {
	return s3.NewClient(ctx, c.clientConfig())
}

func openRemote(ctx context.Context, cfg Config) (imgset.Store, error) {
	client, err := newS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	clusters := make(map[string]s3.API, len(cfg.Clusters))
	for name, cc := range cfg.Clusters {
		c, err := newS3Client(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("s3 client for cluster %q: %w", name, err)
		}
		clusters[name] = c
	}
	// The default client also answers for the configured cluster name.
	if cfg.ClusterName != "" {
		if _, ok := clusters[cfg.ClusterName]; !ok {
			clusters[cfg.ClusterName] = client
		}
	}

	return s3.New(client, s3.Config{
		Bucket:   cfg.S3.Bucket,
		Prefix:   cfg.S3.Prefix,
		Clusters: clusters,
	})
}

var _ s3.API = (*awss3.Client)(nil)
