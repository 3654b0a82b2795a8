package imgset

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// -----------------------------------------------------------------------------
// Index
// -----------------------------------------------------------------------------

// Index is the ordered, read-only table of samples backing a Dataset.
type Index struct {
	samples []Sample
	classes []string
}

// NewIndex builds an Index from samples in iteration order. classes is
// optional; when set, classes[i] names label i.
func NewIndex(samples []Sample, classes []string) *Index {
	idx := &Index{
		samples: make([]Sample, len(samples)),
	}
	copy(idx.samples, samples)
	if len(classes) > 0 {
		idx.classes = make([]string, len(classes))
		copy(idx.classes, classes)
	}
	return idx
}

// Len returns the number of samples.
func (x *Index) Len() int {
	return len(x.samples)
}

// At returns the sample at position i. It panics if i is out of range.
func (x *Index) At(i int) Sample {
	return x.samples[i]
}

// Samples returns a copy of all samples in order.
func (x *Index) Samples() []Sample {
	out := make([]Sample, len(x.samples))
	copy(out, x.samples)
	return out
}

// Classes returns the class names, or nil when the source carried none.
func (x *Index) Classes() []string {
	if x.classes == nil {
		return nil
	}
	out := make([]string, len(x.classes))
	copy(out, x.classes)
	return out
}

// -----------------------------------------------------------------------------
// Annotation errors
// -----------------------------------------------------------------------------

// AnnotationError describes the first malformed record of an annotation
// source. It matches ErrAnnotationFormat with errors.Is.
type AnnotationError struct {
	// Line is the 1-based line or row number.
	Line int

	// Text is the offending record as read.
	Text string

	// Reason says what is wrong with the record.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

func (e *AnnotationError) Error() string {
	msg := fmt.Sprintf("%s: line %d: %s", ErrAnnotationFormat, e.Line, e.Reason)
	if e.Text != "" {
		msg += fmt.Sprintf(": %q", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnnotationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAnnotationFormat}
	}
	return []error{ErrAnnotationFormat, e.Err}
}

// -----------------------------------------------------------------------------
// Text annotations
// -----------------------------------------------------------------------------

// ParseAnnotations reads the text annotation format: one "<key> <label>"
// pair per line, separated by whitespace. Blank lines are skipped.
//
// The first malformed line fails the whole parse with an *AnnotationError;
// no partial index is returned.
func ParseAnnotations(r io.Reader) (*Index, error) {
	var samples []Sample
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if !utf8.Valid(raw) {
			return nil, &AnnotationError{Line: lineNo, Reason: "invalid UTF-8"}
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		sample, err := parseAnnotationLine(lineNo, line)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading annotations: %w", err)
	}
	return &Index{samples: samples}, nil
}

func parseAnnotationLine(lineNo int, line string) (Sample, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Sample{}, &AnnotationError{
			Line:   lineNo,
			Text:   line,
			Reason: fmt.Sprintf("expected 2 fields, got %d", len(fields)),
		}
	}
	label, err := strconv.Atoi(fields[1])
	if err != nil {
		return Sample{}, &AnnotationError{
			Line:   lineNo,
			Text:   line,
			Reason: "label is not an integer",
			Err:    err,
		}
	}
	return Sample{Key: fields[0], Label: label}, nil
}

// -----------------------------------------------------------------------------
// Loading from a backend
// -----------------------------------------------------------------------------

// LoadAnnotations fetches annFile through client and parses it.
//
// The format follows the file suffix: ".jsonl" and ".ndjson" are JSON Lines,
// ".parquet" is a parquet table, anything else is the text format. A
// trailing ".gz" or ".zst" is decompressed first, so "val.txt.gz" is gzipped
// text.
func LoadAnnotations(ctx context.Context, client *Client, annFile string) (*Index, error) {
	data, err := client.Fetch(ctx, annFile)
	if err != nil {
		return nil, fmt.Errorf("annotations %s: %w", annFile, err)
	}

	idx, err := decodeAnnotations(annFile, data)
	if err != nil {
		return nil, fmt.Errorf("annotations %s: %w", annFile, err)
	}
	return idx, nil
}

func decodeAnnotations(name string, data []byte) (*Index, error) {
	dec, base := decompressorFor(name)
	rc, err := dec.Decompress(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dec.Name(), err)
	}
	defer func() { _ = rc.Close() }()

	switch strings.ToLower(path.Ext(base)) {
	case ".jsonl", ".ndjson":
		return ParseAnnotationsJSONL(rc)
	case ".parquet":
		return ParseAnnotationsParquet(rc)
	default:
		return ParseAnnotations(rc)
	}
}
