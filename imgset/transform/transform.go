// Package transform provides ready-made imgset.Transform implementations.
//
// Transforms are plain image -> image functions built on
// github.com/disintegration/imaging. Results are *imgset.RGB, so a
// transformed sample keeps its three channels.
package transform

import (
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/pithecene-io/imgset/imgset"
)

// ErrSizeMismatch indicates an image whose size is incompatible with a
// transform, such as a crop larger than the image.
var ErrSizeMismatch = errors.New("image size mismatch")

// Compose applies ts in order, stopping at the first error.
func Compose(ts ...imgset.Transform) imgset.Transform {
	return imgset.TransformFunc(func(img image.Image) (image.Image, error) {
		var err error
		for _, t := range ts {
			if img, err = t.Apply(img); err != nil {
				return nil, err
			}
		}
		return img, nil
	})
}

// Resize scales the image to width x height using Lanczos resampling.
// A zero width or height preserves the aspect ratio.
func Resize(width, height int) imgset.Transform {
	return imgset.TransformFunc(func(img image.Image) (image.Image, error) {
		if width < 0 || height < 0 || (width == 0 && height == 0) {
			return nil, fmt.Errorf("%w: resize to %dx%d", ErrSizeMismatch, width, height)
		}
		return imgset.ToRGB(imaging.Resize(img, width, height, imaging.Lanczos)), nil
	})
}

// ResizeShorter scales the image so its shorter side equals size.
func ResizeShorter(size int) imgset.Transform {
	return imgset.TransformFunc(func(img image.Image) (image.Image, error) {
		if size <= 0 {
			return nil, fmt.Errorf("%w: resize shorter side to %d", ErrSizeMismatch, size)
		}
		b := img.Bounds()
		if b.Dx() <= b.Dy() {
			return imgset.ToRGB(imaging.Resize(img, size, 0, imaging.Lanczos)), nil
		}
		return imgset.ToRGB(imaging.Resize(img, 0, size, imaging.Lanczos)), nil
	})
}

// CenterCrop cuts a width x height rectangle out of the image center.
// Images smaller than the crop fail with ErrSizeMismatch.
func CenterCrop(width, height int) imgset.Transform {
	return imgset.TransformFunc(func(img image.Image) (image.Image, error) {
		b := img.Bounds()
		if width <= 0 || height <= 0 || b.Dx() < width || b.Dy() < height {
			return nil, fmt.Errorf("%w: crop %dx%d from %dx%d", ErrSizeMismatch, width, height, b.Dx(), b.Dy())
		}
		return imgset.ToRGB(imaging.CropCenter(img, width, height)), nil
	})
}

// HorizontalFlip mirrors the image left to right with probability p.
// Unflipped images are returned as given.
// rng may be nil for a time-seeded source; it is guarded by a mutex so the
// transform is safe for concurrent use.
func HorizontalFlip(p float64, rng *rand.Rand) imgset.Transform {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	var mu sync.Mutex
	return imgset.TransformFunc(func(img image.Image) (image.Image, error) {
		mu.Lock()
		flip := rng.Float64() < p
		mu.Unlock()
		if !flip {
			return img, nil
		}
		return imgset.ToRGB(imaging.FlipH(img)), nil
	})
}
