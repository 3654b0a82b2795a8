package imgset_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pithecene-io/imgset/imgset"
	"github.com/pithecene-io/imgset/imgset/transform"
	"github.com/pithecene-io/imgset/internal/testutil"
)

// countingStore records the keys requested through Get.
type countingStore struct {
	imgset.Store
	mu   sync.Mutex
	gets []string
}

func (s *countingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.gets = append(s.gets, key)
	s.mu.Unlock()
	return s.Store.Get(ctx, key)
}

func (s *countingStore) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.gets...)
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func newTestDataset(t *testing.T, files map[string][]byte, samples []imgset.Sample, opts ...imgset.Option) (*imgset.Dataset, *countingStore) {
	t.Helper()
	store := &countingStore{Store: seedMemory(t, files)}
	client, err := imgset.NewClient(store)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	logger, _ := quietLogger()
	opts = append([]imgset.Option{imgset.WithLogger(logger)}, opts...)
	ds, err := imgset.New(imgset.NewIndex(samples, nil), client, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ds, store
}

func TestNew_RequiresIndexAndClient(t *testing.T) {
	client, _ := imgset.NewClient(imgset.NewMemory())
	if _, err := imgset.New(nil, client); err == nil {
		t.Error("expected error for nil index")
	}
	if _, err := imgset.New(imgset.NewIndex(nil, nil), nil); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestGet_ReturnsRGBAndLabel(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	ds, _ := newTestDataset(t,
		map[string][]byte{"root/n01/a.png": testutil.PNG(testutil.Solid(5, 4, red))},
		[]imgset.Sample{{Key: "n01/a.png", Label: 7}},
		imgset.WithRoot("root"),
	)

	item, err := ds.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Label != 7 {
		t.Errorf("Label = %d, want 7", item.Label)
	}
	if item.Key != "root/n01/a.png" {
		t.Errorf("Key = %q, want %q", item.Key, "root/n01/a.png")
	}
	rgb, ok := item.Image.(*imgset.RGB)
	if !ok {
		t.Fatalf("Image is %T, want *imgset.RGB", item.Image)
	}
	if rgb.Channels() != 3 {
		t.Errorf("Channels = %d, want 3", rgb.Channels())
	}
	if got := rgb.Bounds().Size(); got != (image.Point{X: 5, Y: 4}) {
		t.Errorf("size = %v, want 5x4", got)
	}
	if got := rgb.RGBAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel = %v, want red", got)
	}
}

func TestGet_GrayscaleAndPalettedBecomeRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(0, 0, color.Gray{Y: 90})

	ds, _ := newTestDataset(t,
		map[string][]byte{
			"gray.png": testutil.PNG(gray),
			"pal.gif":  testutil.GIF(testutil.Solid(2, 2, color.NRGBA{A: 255})),
		},
		[]imgset.Sample{{Key: "gray.png", Label: 0}, {Key: "pal.gif", Label: 1}},
	)

	for i := 0; i < ds.Len(); i++ {
		item, err := ds.Get(context.Background(), i)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		if imgset.Mode(item.Image) != "RGB" {
			t.Errorf("Get(%d) mode = %q, want RGB", i, imgset.Mode(item.Image))
		}
	}
}

func TestGet_OutOfRangeDoesNotFetch(t *testing.T) {
	ds, store := newTestDataset(t,
		map[string][]byte{"a.png": testutil.PNG(testutil.Solid(1, 1, color.NRGBA{A: 255}))},
		[]imgset.Sample{{Key: "a.png", Label: 0}},
	)

	for _, i := range []int{-1, 1, 100} {
		_, err := ds.Get(context.Background(), i)
		if !errors.Is(err, imgset.ErrIndexOutOfRange) {
			t.Errorf("Get(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
		if _, err := ds.Key(i); !errors.Is(err, imgset.ErrIndexOutOfRange) {
			t.Errorf("Key(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
	if calls := store.calls(); len(calls) != 0 {
		t.Errorf("store fetched %v for out-of-range indices", calls)
	}
}

func TestOpen_AnnotationRoundTrip(t *testing.T) {
	const n = 25
	files := make(map[string][]byte, n+1)
	var ann strings.Builder
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("n%02d/img%03d.png", i%4, i)
		files["data/"+key] = testutil.PNG(testutil.Solid(2, 2, color.NRGBA{R: uint8(i), A: 255}))
		fmt.Fprintf(&ann, "%s %d\n", key, i%4)
	}
	files["meta/train.txt"] = []byte(ann.String())

	client, _ := imgset.NewClient(seedMemory(t, files))
	logger, _ := quietLogger()
	ds, err := imgset.Open(context.Background(), client, "data", "meta/train.txt", imgset.WithLogger(logger))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if ds.Len() != n {
		t.Fatalf("Len = %d, want %d", ds.Len(), n)
	}

	for i := 0; i < n; i++ {
		item, err := ds.Get(context.Background(), i)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		wantKey := fmt.Sprintf("data/n%02d/img%03d.png", i%4, i)
		if item.Key != wantKey || item.Label != i%4 {
			t.Errorf("Get(%d) = (%q, %d), want (%q, %d)", i, item.Key, item.Label, wantKey, i%4)
		}
		if got := item.Image.(*imgset.RGB).RGBAt(0, 0).R; got != uint8(i) {
			t.Errorf("Get(%d) pixel R = %d, want %d", i, got, i)
		}
	}
}

func TestOpen_MalformedAnnotationFails(t *testing.T) {
	client, _ := imgset.NewClient(seedMemory(t, map[string][]byte{
		"ann.txt": []byte("good.jpg 1\nfoo.jpg notanumber\n"),
	}))

	ds, err := imgset.Open(context.Background(), client, "", "ann.txt")
	if ds != nil {
		t.Error("expected no dataset")
	}
	if !errors.Is(err, imgset.ErrAnnotationFormat) {
		t.Errorf("expected ErrAnnotationFormat, got %v", err)
	}
}

func TestOpen_ScansFolderWithoutAnnotations(t *testing.T) {
	px := testutil.PNG(testutil.Solid(1, 1, color.NRGBA{A: 255}))
	client, _ := imgset.NewClient(seedMemory(t, map[string][]byte{
		"imgs/remote/cat/1.png": px,
		"imgs/remote/dog/2.png": px,
	}), imgset.WithPathMapping(map[string]string{"data/": "imgs/remote/"}))

	ds, err := imgset.Open(context.Background(), client, "data/", "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := ds.Classes(); len(got) != 2 || got[0] != "cat" || got[1] != "dog" {
		t.Errorf("Classes = %v, want [cat dog]", got)
	}

	item, err := ds.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Key != "data/dog/2.png" || item.Label != 1 {
		t.Errorf("Get(1) = (%q, %d), want (data/dog/2.png, 1)", item.Key, item.Label)
	}
}

func TestGet_PathMappingRewritesKey(t *testing.T) {
	px := testutil.PNG(testutil.Solid(1, 1, color.NRGBA{A: 255}))
	store := &countingStore{Store: seedMemory(t, map[string][]byte{
		"remote://bucket/x/img001.jpg": px,
	})}
	client, _ := imgset.NewClient(store, imgset.WithPathMapping(map[string]string{
		"data/x/": "remote://bucket/x/",
	}))

	if got := client.Resolve("data/x/img001.jpg"); got != "remote://bucket/x/img001.jpg" {
		t.Errorf("Resolve = %q, want %q", got, "remote://bucket/x/img001.jpg")
	}

	logger, _ := quietLogger()
	ds, err := imgset.New(imgset.NewIndex([]imgset.Sample{{Key: "img001.jpg", Label: 3}}, nil), client,
		imgset.WithRoot("data/x"), imgset.WithLogger(logger))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	item, err := ds.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Key != "data/x/img001.jpg" {
		t.Errorf("Key = %q, want logical key", item.Key)
	}
	calls := store.calls()
	if len(calls) != 1 || calls[0] != "remote://bucket/x/img001.jpg" {
		t.Errorf("store received %v, want [remote://bucket/x/img001.jpg]", calls)
	}
}

func TestGet_IgnoreEmpty(t *testing.T) {
	files := map[string][]byte{"bad.png": testutil.Corrupt()}
	samples := []imgset.Sample{{Key: "bad.png", Label: 4}, {Key: "missing.png", Label: 5}}

	t.Run("enabled", func(t *testing.T) {
		ds, _ := newTestDataset(t, files, samples, imgset.WithIgnoreEmpty(true))

		item, err := ds.Get(context.Background(), 0)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !item.Empty() {
			t.Errorf("expected empty item, got %T", item.Image)
		}
		if item.Label != 4 || item.Key != "bad.png" {
			t.Errorf("item = (%q, %d), want (bad.png, 4)", item.Key, item.Label)
		}

		// Fetch failures are never swallowed.
		if _, err := ds.Get(context.Background(), 1); !errors.Is(err, imgset.ErrFetch) {
			t.Errorf("missing: expected ErrFetch, got %v", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		ds, _ := newTestDataset(t, files, samples)

		_, err := ds.Get(context.Background(), 0)
		if !errors.Is(err, imgset.ErrDecode) {
			t.Errorf("expected ErrDecode, got %v", err)
		}
		_, err = ds.Get(context.Background(), 1)
		if !errors.Is(err, imgset.ErrFetch) || !errors.Is(err, imgset.ErrNotFound) {
			t.Errorf("expected ErrFetch wrapping ErrNotFound, got %v", err)
		}
	})
}

func TestGet_TransformApplied(t *testing.T) {
	var seen image.Image
	half := imgset.TransformFunc(func(img image.Image) (image.Image, error) {
		seen = img
		b := img.Bounds()
		return image.NewNRGBA(image.Rect(0, 0, b.Dx()/2, b.Dy()/2)), nil
	})

	ds, _ := newTestDataset(t,
		map[string][]byte{"a.png": testutil.PNG(testutil.Solid(8, 6, color.NRGBA{A: 255}))},
		[]imgset.Sample{{Key: "a.png", Label: 0}},
		imgset.WithTransform(half),
	)

	item, err := ds.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := seen.(*imgset.RGB); !ok {
		t.Errorf("transform input is %T, want *imgset.RGB", seen)
	}
	if got := item.Image.Bounds().Size(); got != (image.Point{X: 4, Y: 3}) {
		t.Errorf("size = %v, want 4x3", got)
	}
}

func TestGet_TransformErrorLoggedAndReturned(t *testing.T) {
	errShape := errors.New("bad shape")
	failing := imgset.TransformFunc(func(image.Image) (image.Image, error) {
		return nil, errShape
	})

	store := seedMemory(t, map[string][]byte{"n01/a.png": testutil.PNG(testutil.Solid(3, 2, color.NRGBA{A: 255}))})
	client, _ := imgset.NewClient(store)
	logger, hook := quietLogger()
	ds, err := imgset.New(imgset.NewIndex([]imgset.Sample{{Key: "n01/a.png", Label: 9}}, nil), client,
		imgset.WithTransform(failing), imgset.WithLogger(logger))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = ds.Get(context.Background(), 0)
	if err != errShape {
		t.Fatalf("expected transform error unchanged, got %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Level != logrus.ErrorLevel {
		t.Errorf("Level = %v, want error", entry.Level)
	}
	want := map[string]any{
		"index": 0,
		"key":   "n01/a.png",
		"label": 9,
		"size":  "3x2",
		"mode":  "RGBA",
	}
	for k, v := range want {
		if entry.Data[k] != v {
			t.Errorf("field %s = %v, want %v", k, entry.Data[k], v)
		}
	}
}

func TestGet_ShippedTransformsKeepRGB(t *testing.T) {
	ds, _ := newTestDataset(t,
		map[string][]byte{"n01/a.png": testutil.PNG(testutil.Gradient(9, 6))},
		[]imgset.Sample{{Key: "n01/a.png", Label: 2}},
		imgset.WithTransform(transform.Compose(transform.ResizeShorter(4), transform.CenterCrop(4, 4))),
	)

	item, err := ds.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	rgb, ok := item.Image.(*imgset.RGB)
	if !ok {
		t.Fatalf("Image is %T, want *imgset.RGB", item.Image)
	}
	if rgb.Channels() != 3 || imgset.Mode(rgb) != "RGB" {
		t.Errorf("channels = %d, mode = %q; want 3, RGB", rgb.Channels(), imgset.Mode(rgb))
	}
	if got := rgb.Bounds().Size(); got != (image.Point{X: 4, Y: 4}) {
		t.Errorf("size = %v, want 4x4", got)
	}
}

func TestGet_TransformNilImageFails(t *testing.T) {
	blank := imgset.TransformFunc(func(image.Image) (image.Image, error) {
		return nil, nil
	})

	ds, _ := newTestDataset(t,
		map[string][]byte{"a.png": testutil.PNG(testutil.Solid(2, 2, color.NRGBA{A: 255}))},
		[]imgset.Sample{{Key: "a.png", Label: 0}},
		imgset.WithTransform(blank),
		imgset.WithIgnoreEmpty(true),
	)

	item, err := ds.Get(context.Background(), 0)
	if !errors.Is(err, imgset.ErrNilImage) {
		t.Fatalf("expected ErrNilImage, got %v", err)
	}
	if item.Key != "" || item.Image != nil {
		t.Errorf("failed Get returned item %+v, want zero Item", item)
	}
}

func TestGet_Idempotent(t *testing.T) {
	ds, _ := newTestDataset(t,
		map[string][]byte{"a.png": testutil.PNG(testutil.Gradient(6, 5))},
		[]imgset.Sample{{Key: "a.png", Label: 2}},
	)

	first, err := ds.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := ds.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	a, b := first.Image.(*imgset.RGB), second.Image.(*imgset.RGB)
	if first.Label != second.Label || !bytes.Equal(a.Pix, b.Pix) {
		t.Error("repeated Get returned different results")
	}
	if &a.Pix[0] == &b.Pix[0] {
		t.Error("repeated Get shared pixel buffers")
	}
}

func TestGet_Concurrent(t *testing.T) {
	files := make(map[string][]byte)
	var samples []imgset.Sample
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("%d.png", i)
		files[key] = testutil.PNG(testutil.Solid(2, 2, color.NRGBA{G: uint8(i), A: 255}))
		samples = append(samples, imgset.Sample{Key: key, Label: i})
	}
	ds, _ := newTestDataset(t, files, samples)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ds.Len(); i++ {
				item, err := ds.Get(context.Background(), i)
				if err != nil {
					errs <- err
					return
				}
				if item.Label != i || item.Image.(*imgset.RGB).RGBAt(0, 0).G != uint8(i) {
					errs <- fmt.Errorf("sample %d mismatched", i)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		root, key, want string
	}{
		{"", "a.jpg", "a.jpg"},
		{"data", "", "data"},
		{"data", "a.jpg", "data/a.jpg"},
		{"data/", "/a.jpg", "data/a.jpg"},
		{"c:s3://bucket/x", "n01/a.jpg", "c:s3://bucket/x/n01/a.jpg"},
	}
	for _, tt := range tests {
		if got := imgset.JoinKey(tt.root, tt.key); got != tt.want {
			t.Errorf("JoinKey(%q, %q) = %q, want %q", tt.root, tt.key, got, tt.want)
		}
	}
}
