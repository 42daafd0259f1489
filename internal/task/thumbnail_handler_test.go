package task

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/thumbnail"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// countingGenerator wraps a Generator and counts invocations.
type countingGenerator struct {
	inner Generator
	calls int
}

func (g *countingGenerator) Generate(src []byte) ([]byte, error) {
	g.calls++
	return g.inner.Generate(src)
}

func newThumbnailTask(t *testing.T, fileKey string) *Task {
	t.Helper()
	task, err := New(KindThumbnail, ThumbnailPayload{FileKey: fileKey})
	require.NoError(t, err)
	return task
}

func TestThumbnailHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	const fileKey = "orders/DTF-AB12CD34/front.png"
	derived := thumbnail.DerivedKey(fileKey)

	t.Run("generates and stores the derived artifact", func(t *testing.T) {
		objects := objectstore.NewMemoryStore()
		caches := cache.NewPipeline(cache.DefaultOptions())
		require.NoError(t, objects.Put(ctx, fileKey, pngBytes(t, 400, 200)))

		h := NewThumbnailHandler(objects, caches, thumbnail.NewGenerator())
		require.NoError(t, h.Handle(ctx, newThumbnailTask(t, fileKey)))

		thumb, err := objects.Get(ctx, derived)
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.LessOrEqual(t, img.Bounds().Dx(), thumbnail.MaxWidth)
		assert.LessOrEqual(t, img.Bounds().Dy(), thumbnail.MaxHeight)

		exists, known := caches.ThumbnailExists(derived)
		assert.True(t, known)
		assert.True(t, exists)
	})

	t.Run("short-circuits on cached existence without generating", func(t *testing.T) {
		objects := objectstore.NewMemoryStore()
		caches := cache.NewPipeline(cache.DefaultOptions())
		caches.MarkThumbnail(derived, true)
		gen := &countingGenerator{inner: thumbnail.NewGenerator()}

		h := NewThumbnailHandler(objects, caches, gen)
		assert.NoError(t, h.Handle(ctx, newThumbnailTask(t, fileKey)))
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("adopts an existing stored artifact without generating", func(t *testing.T) {
		objects := objectstore.NewMemoryStore()
		caches := cache.NewPipeline(cache.DefaultOptions())
		require.NoError(t, objects.Put(ctx, derived, pngBytes(t, 50, 50)))
		gen := &countingGenerator{inner: thumbnail.NewGenerator()}

		h := NewThumbnailHandler(objects, caches, gen)
		require.NoError(t, h.Handle(ctx, newThumbnailTask(t, fileKey)))
		assert.Equal(t, 0, gen.calls)

		exists, known := caches.ThumbnailExists(derived)
		assert.True(t, known)
		assert.True(t, exists)
	})

	t.Run("missing source is non-retryable", func(t *testing.T) {
		objects := objectstore.NewMemoryStore()
		caches := cache.NewPipeline(cache.DefaultOptions())

		h := NewThumbnailHandler(objects, caches, thumbnail.NewGenerator())
		err := h.Handle(ctx, newThumbnailTask(t, fileKey))
		assert.ErrorIs(t, err, ErrNonRetryable)
	})

	t.Run("undecodable source is non-retryable", func(t *testing.T) {
		objects := objectstore.NewMemoryStore()
		caches := cache.NewPipeline(cache.DefaultOptions())
		require.NoError(t, objects.Put(ctx, fileKey, []byte("not an image")))

		h := NewThumbnailHandler(objects, caches, thumbnail.NewGenerator())
		err := h.Handle(ctx, newThumbnailTask(t, fileKey))
		assert.ErrorIs(t, err, ErrNonRetryable)
	})

	t.Run("invalid payload is non-retryable", func(t *testing.T) {
		h := NewThumbnailHandler(objectstore.NewMemoryStore(), cache.NewPipeline(cache.DefaultOptions()), thumbnail.NewGenerator())

		task := newThumbnailTask(t, fileKey)
		task.Payload = []byte("{")
		assert.ErrorIs(t, h.Handle(ctx, task), ErrNonRetryable)

		assert.ErrorIs(t, h.Handle(ctx, newThumbnailTask(t, "")), ErrNonRetryable)
	})
}
