package overlay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

type fakeFetcher struct {
	img image.Image
	err error
	n   int
}

func (f *fakeFetcher) FetchImage(ctx context.Context, rect Rectangle) (image.Image, error) {
	f.n++
	return f.img, f.err
}

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestAcquireFetchesOnceAndRefcounts(t *testing.T) {
	fetcher := &fakeFetcher{img: solidImage(4, 4, color.White)}
	cache := NewCache(fetcher)
	rect := Rectangle{West: 0, South: 0, East: 1, North: 1}

	t1, err := cache.Acquire(context.Background(), rect)
	require.NoError(t, err)
	assert.Equal(t, Loaded, t1.State)
	assert.Equal(t, 1, t1.references)

	t2, err := cache.Acquire(context.Background(), rect)
	require.NoError(t, err)
	assert.Same(t, t1, t2)
	assert.Equal(t, 2, t1.references)
	assert.Equal(t, 1, fetcher.n, "second acquire must not re-fetch")
}

func TestReleaseThenSweepFreesZeroRefTile(t *testing.T) {
	fetcher := &fakeFetcher{img: solidImage(2, 2, color.Black)}
	cache := NewCache(fetcher)
	rect := Rectangle{East: 1, North: 1}

	tile, err := cache.Acquire(context.Background(), rect)
	require.NoError(t, err)
	require.Equal(t, Loaded, tile.State)

	cache.Release(rect)
	cache.Sweep()

	_, stillTracked := cache.tiles[rect]
	assert.False(t, stillTracked)
}

func TestAcquireFetchFailureSetsFailed(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("network down")}
	cache := NewCache(fetcher)
	rect := Rectangle{East: 1, North: 1}

	_, err := cache.Acquire(context.Background(), rect)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverlayFetch)

	tile := cache.tiles[rect]
	assert.Equal(t, Failed, tile.State)
}

func TestAttachDetachPreservesOrder(t *testing.T) {
	content := &tileset.Content{
		RasterMappings: []tileset.RasterMapping{
			{OverlayTileID: "a"},
			{OverlayTileID: "b"},
		},
	}

	require.NoError(t, Attach(content, 1, tileset.RasterMapping{OverlayTileID: "b", ScaleU: 1, ScaleV: 1}))
	assert.True(t, content.RasterMappings[1].Attached)
	assert.Equal(t, "a", content.RasterMappings[0].OverlayTileID)
	assert.Equal(t, "b", content.RasterMappings[1].OverlayTileID)

	require.NoError(t, Detach(content, 1))
	assert.False(t, content.RasterMappings[1].Attached)
}

func TestBlitWritesWithinTargetRectangle(t *testing.T) {
	dst := solidImage(10, 10, color.Black)
	src := solidImage(4, 4, color.White)
	mapping := tileset.RasterMapping{TranslationU: 0.5, TranslationV: 0.5, ScaleU: 0.4, ScaleV: 0.4}

	Blit(dst, src, mapping)

	r, g, b, _ := dst.At(6, 6).RGBA()
	assert.NotZero(t, r+g+b, "pixel inside the mapped rectangle should have been overwritten")

	r, g, b, _ = dst.At(1, 1).RGBA()
	assert.Zero(t, r+g+b, "pixel outside the mapped rectangle must remain untouched")
}
