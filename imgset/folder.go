package imgset

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
)

// imageExtensions are the file suffixes counted by ScanFolder.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".ppm": true, ".bmp": true,
	".pgm": true, ".tif": true, ".tiff": true, ".webp": true, ".gif": true,
}

// IsImageKey reports whether key has an image file extension ScanFolder
// recognizes. The match is case-insensitive.
func IsImageKey(key string) bool {
	return imageExtensions[strings.ToLower(path.Ext(key))]
}

// ScanFolder builds an Index from a class-per-subdirectory layout under
// prefix:
//
//	prefix/<class>/<...>/<image>
//
// Labels are assigned by sorted class name. Within a class, samples are
// ordered by key. Keys in the returned Index are relative to prefix. Files
// directly under prefix and files without an image extension are ignored,
// but a subdirectory holding any file still counts as a class.
func ScanFolder(ctx context.Context, store Store, prefix string) (*Index, error) {
	p := trimDotSlash(strings.TrimSuffix(prefix, "/"))
	listPrefix := ""
	if p != "" {
		listPrefix = p + "/"
	}

	keys, err := store.List(ctx, listPrefix)
	if err != nil {
		return nil, fmt.Errorf("scanning %q: %w", prefix, err)
	}

	byClass := make(map[string][]string)
	for _, key := range keys {
		rel := trimDotSlash(key)
		if listPrefix != "" {
			if !strings.HasPrefix(rel, listPrefix) {
				continue
			}
			rel = rel[len(listPrefix):]
		}
		class, rest, ok := strings.Cut(rel, "/")
		if !ok || class == "" || rest == "" {
			continue
		}
		if _, seen := byClass[class]; !seen {
			byClass[class] = nil
		}
		if IsImageKey(rest) {
			byClass[class] = append(byClass[class], rel)
		}
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	var samples []Sample
	for label, class := range classes {
		files := byClass[class]
		sort.Strings(files)
		for _, f := range files {
			samples = append(samples, Sample{Key: f, Label: label})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("scanning %q: %w", prefix, ErrNoSamples)
	}

	return &Index{samples: samples, classes: classes}, nil
}

func trimDotSlash(s string) string {
	for strings.HasPrefix(s, "./") {
		s = s[2:]
	}
	return s
}
