package imgset

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decompressor unwraps a compressed annotation source.
type Decompressor interface {
	// Name returns the compressor identifier (for example, "gzip", "zstd", "noop").
	Name() string

	// Extension returns the file suffix handled (for example, ".gz", ".zst", "").
	Extension() string

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

var decompressors = []Decompressor{
	&gzipDecompressor{},
	&zstdDecompressor{},
}

// decompressorFor picks a Decompressor from the file suffix of name and
// returns name with that suffix removed.
func decompressorFor(name string) (Decompressor, string) {
	lower := strings.ToLower(name)
	for _, d := range decompressors {
		if strings.HasSuffix(lower, d.Extension()) {
			return d, name[:len(name)-len(d.Extension())]
		}
	}
	return &noopDecompressor{}, name
}

// -----------------------------------------------------------------------------
// Gzip
// -----------------------------------------------------------------------------

type gzipDecompressor struct{}

func (g *gzipDecompressor) Name() string { return "gzip" }

func (g *gzipDecompressor) Extension() string { return ".gz" }

func (g *gzipDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd
// -----------------------------------------------------------------------------

type zstdDecompressor struct{}

func (z *zstdDecompressor) Name() string { return "zstd" }

func (z *zstdDecompressor) Extension() string { return ".zst" }

func (z *zstdDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp
// -----------------------------------------------------------------------------

type noopDecompressor struct{}

func (n *noopDecompressor) Name() string { return "noop" }

func (n *noopDecompressor) Extension() string { return "" }

func (n *noopDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}
