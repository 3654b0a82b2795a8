// Package imgset loads image-classification samples from pluggable storage
// backends.
//
// A Dataset resolves a sample index into a (key, label) pair through an
// annotation Index, fetches the raw bytes through a backend-agnostic Client,
// decodes them into a three-channel RGB image and applies an optional
// Transform. It does not cache, retry, or schedule work; batching and
// parallel loading belong to the caller.
package imgset

import (
	"context"
	"errors"
	"image"
	"io"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Sample identifies one training or evaluation example.
type Sample struct {
	// Key is the storage key of the image, relative to the dataset root.
	Key string `json:"key"`

	// Label is the integer class label.
	Label int `json:"label"`
}

// Item is the result of a single Dataset.Get call.
type Item struct {
	// Image is the decoded (and possibly transformed) image.
	// Nil when the sample could not be decoded and empty samples are ignored.
	Image image.Image

	// Label is the class label recorded for the sample.
	Label int

	// Key is the full storage key the image was fetched from.
	Key string
}

// Empty reports whether the item is the "no sample" sentinel returned for
// undecodable images when WithIgnoreEmpty is set.
func (it Item) Empty() bool {
	return it.Image == nil
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the storage system samples are read from.
//
// Implementations may target filesystems, S3, or other object stores.
// The interface is read-only and intentionally minimal; a new backend only
// has to produce bytes for a key.
type Store interface {
	// Get retrieves data from the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// -----------------------------------------------------------------------------
// Transform interface
// -----------------------------------------------------------------------------

// Transform is applied to every decoded image before it is returned.
//
// Implementations report shape or size incompatibilities as errors; the
// Dataset logs the offending sample and returns the error unchanged.
type Transform interface {
	Apply(img image.Image) (image.Image, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(img image.Image) (image.Image, error)

// Apply calls f(img).
func (f TransformFunc) Apply(img image.Image) (image.Image, error) {
	return f(img)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested key does not exist in the store.
	ErrNotFound = errNotFound{}

	// ErrIndexOutOfRange indicates a sample index outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrAnnotationFormat indicates a malformed annotation source.
	ErrAnnotationFormat = errors.New("malformed annotation")

	// ErrNoSamples indicates an annotation source or folder produced no samples.
	ErrNoSamples = errors.New("no samples found")

	// ErrFetch indicates the backend failed to produce the bytes for a key.
	ErrFetch = errors.New("fetch failed")

	// ErrDecode indicates the fetched bytes are not a readable image.
	ErrDecode = errors.New("decode failed")

	// ErrNilImage indicates a transform returned no image and no error.
	ErrNilImage = errors.New("transform returned nil image")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }
