package imgset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/sirupsen/logrus"
)

// -----------------------------------------------------------------------------
// Dataset Configuration
// -----------------------------------------------------------------------------

// datasetConfig holds the resolved configuration for a dataset.
type datasetConfig struct {
	root        string
	transform   Transform
	ignoreEmpty bool
	logger      logrus.FieldLogger
}

// Option configures dataset construction.
type Option func(*datasetConfig)

// WithRoot sets the prefix joined in front of every sample key before it is
// fetched. Default: none.
func WithRoot(root string) Option {
	return func(cfg *datasetConfig) {
		cfg.root = root
	}
}

// WithTransform sets the transform applied to every decoded image.
// Default: none.
func WithTransform(t Transform) Option {
	return func(cfg *datasetConfig) {
		cfg.transform = t
	}
}

// WithIgnoreEmpty makes Get return an empty Item instead of an error when the
// fetched bytes cannot be decoded. Fetch failures are still returned.
// Default: false.
func WithIgnoreEmpty(ignore bool) Option {
	return func(cfg *datasetConfig) {
		cfg.ignoreEmpty = ignore
	}
}

// WithLogger sets the logger used for per-sample diagnostics.
// Default: logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(cfg *datasetConfig) {
		cfg.logger = l
	}
}

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// Dataset is a sequence of (image, label) samples backed by an Index and a
// Client.
//
// A Dataset is read-only after construction; Get may be called from multiple
// goroutines as long as the underlying Store supports it. Nothing is cached:
// every Get fetches and decodes again.
type Dataset struct {
	index       *Index
	client      *Client
	root        string
	transform   Transform
	ignoreEmpty bool
	log         logrus.FieldLogger
}

// New creates a Dataset over index, fetching through client.
func New(index *Index, client *Client, opts ...Option) (*Dataset, error) {
	if index == nil {
		return nil, errors.New("imgset: index is required")
	}
	if client == nil {
		return nil, errors.New("imgset: client is required")
	}

	cfg := &datasetConfig{
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.StandardLogger()
	}

	return &Dataset{
		index:       index,
		client:      client,
		root:        cfg.root,
		transform:   cfg.transform,
		ignoreEmpty: cfg.ignoreEmpty,
		log:         cfg.logger,
	}, nil
}

// Open builds the Index and the Dataset in one step.
//
// With an empty annFile, root is scanned as a class-per-subdirectory folder
// on the client's store (after path mapping). Otherwise annFile is fetched
// through client and parsed by LoadAnnotations, and its keys are taken
// relative to root.
func Open(ctx context.Context, client *Client, root, annFile string, opts ...Option) (*Dataset, error) {
	if client == nil {
		return nil, errors.New("imgset: client is required")
	}

	var (
		index *Index
		err   error
	)
	if annFile == "" {
		index, err = ScanFolder(ctx, client.Store(), client.Resolve(root))
	} else {
		index, err = LoadAnnotations(ctx, client, annFile)
	}
	if err != nil {
		return nil, err
	}

	return New(index, client, append([]Option{WithRoot(root)}, opts...)...)
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return d.index.Len()
}

// Index returns the annotation index backing the dataset.
func (d *Dataset) Index() *Index {
	return d.index
}

// Classes returns the class names of the index, if known.
func (d *Dataset) Classes() []string {
	return d.index.Classes()
}

// Key returns the full storage key of sample i, before path mapping.
func (d *Dataset) Key(i int) (string, error) {
	if err := d.checkIndex(i); err != nil {
		return "", err
	}
	return JoinKey(d.root, d.index.At(i).Key), nil
}

// Get fetches, decodes and transforms sample i.
//
// Errors:
//   - ErrIndexOutOfRange when i is outside [0, Len()); nothing is fetched.
//   - ErrFetch when the backend fails.
//   - ErrDecode when the bytes are not an image, unless WithIgnoreEmpty is
//     set, in which case an Item with a nil Image and a nil error is returned.
//   - Transform errors are logged with the sample's key, size and mode and
//     returned unchanged. A transform that returns a nil image without an
//     error fails with ErrNilImage.
func (d *Dataset) Get(ctx context.Context, i int) (Item, error) {
	if err := d.checkIndex(i); err != nil {
		return Item{}, err
	}

	sample := d.index.At(i)
	key := JoinKey(d.root, sample.Key)

	data, err := d.client.Fetch(ctx, key)
	if err != nil {
		return Item{}, fmt.Errorf("sample %d: %w", i, err)
	}

	src, format, err := Decode(data)
	if err != nil {
		if d.ignoreEmpty {
			d.log.WithFields(logrus.Fields{
				"index": i,
				"key":   key,
			}).WithError(err).Debug("skipping undecodable sample")
			return Item{Label: sample.Label, Key: key}, nil
		}
		return Item{}, fmt.Errorf("sample %d: %s: %w", i, key, err)
	}

	var img image.Image = ToRGB(src)
	if d.transform != nil {
		out, err := d.transform.Apply(img)
		if err == nil && out == nil {
			err = fmt.Errorf("sample %d: %s: %w", i, key, ErrNilImage)
		}
		if err != nil {
			size := src.Bounds().Size()
			d.log.WithFields(logrus.Fields{
				"index":  i,
				"key":    key,
				"label":  sample.Label,
				"size":   fmt.Sprintf("%dx%d", size.X, size.Y),
				"mode":   Mode(src),
				"format": format,
			}).WithError(err).Error("transform failed")
			return Item{}, err
		}
		img = out
	}

	return Item{Image: img, Label: sample.Label, Key: key}, nil
}

func (d *Dataset) checkIndex(i int) error {
	if n := d.index.Len(); i < 0 || i >= n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, n)
	}
	return nil
}

// JoinKey joins a dataset root and a sample key with a single "/".
// The result is not cleaned, so URI roots such as "s3://bucket/x" survive.
func JoinKey(root, key string) string {
	switch {
	case root == "":
		return key
	case key == "":
		return root
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(key, "/")
}
