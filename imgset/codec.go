package imgset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// JSONL annotations
// -----------------------------------------------------------------------------

// jsonlRecord accepts both the native field names and the ones used by
// mmcls-style annotation dumps.
type jsonlRecord struct {
	Key      *string `json:"key"`
	Filename *string `json:"filename"`
	Label    *int    `json:"label"`
	GTLabel  *int    `json:"gt_label"`
}

// ParseAnnotationsJSONL reads one JSON object per line. Each object needs a
// string "key" (or "filename") and an integer "label" (or "gt_label").
// Blank lines are skipped; any other malformed line fails the parse.
func ParseAnnotationsJSONL(r io.Reader) (*Index, error) {
	var samples []Sample
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec jsonlRecord
		if err := jsonCodec.Unmarshal(line, &rec); err != nil {
			return nil, &AnnotationError{Line: lineNo, Text: string(line), Reason: "invalid JSON record", Err: err}
		}
		sample, reason := rec.sample()
		if reason != "" {
			return nil, &AnnotationError{Line: lineNo, Text: string(line), Reason: reason}
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading annotations: %w", err)
	}
	return &Index{samples: samples}, nil
}

func (r jsonlRecord) sample() (Sample, string) {
	key := r.Key
	if key == nil {
		key = r.Filename
	}
	label := r.Label
	if label == nil {
		label = r.GTLabel
	}
	switch {
	case key == nil || *key == "":
		return Sample{}, "missing key"
	case label == nil:
		return Sample{}, "missing label"
	}
	return Sample{Key: *key, Label: *label}, ""
}

// -----------------------------------------------------------------------------
// Parquet annotations
// -----------------------------------------------------------------------------

// annotationRow is the parquet schema for annotation tables.
type annotationRow struct {
	Key   string `parquet:"key"`
	Label int64  `parquet:"label"`
}

// ParseAnnotationsParquet reads a parquet table with a string "key" column
// and an integer "label" column. Rows keep file order.
func ParseAnnotationsParquet(r io.Reader) (*Index, error) {
	// Parquet needs random access to the footer.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, &AnnotationError{Line: 0, Reason: "empty parquet file"}
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &AnnotationError{Reason: "invalid parquet file", Err: err}
	}
	for _, col := range []string{"key", "label"} {
		if _, ok := file.Schema().Lookup(col); !ok {
			return nil, &AnnotationError{Reason: fmt.Sprintf("missing column %q", col)}
		}
	}

	rows, err := parquet.Read[annotationRow](bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &AnnotationError{Reason: "reading parquet rows", Err: err}
	}

	samples := make([]Sample, 0, len(rows))
	for i, row := range rows {
		if row.Key == "" {
			return nil, &AnnotationError{Line: i + 1, Reason: "missing key"}
		}
		samples = append(samples, Sample{Key: row.Key, Label: int(row.Label)})
	}
	return &Index{samples: samples}, nil
}
