// Package overlay implements the raster-overlay tile cache and the
// RasterMapping attach/detach operations tiles use to bind a region of
// raster imagery to a region of their mesh's UV space.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/gift"
	"golang.org/x/image/draw"

	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// State is a RasterOverlayTile's lifecycle.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Rectangle is a geographic rectangle in radians, matching
// tileset.RasterMapping's coordinate space.
type Rectangle struct {
	West, South, East, North float64
}

// ErrOverlayFetch is returned when an overlay image source fails, mirroring
// the tile fetch error taxonomy's wrapped-sentinel style.
var ErrOverlayFetch = errors.New("overlay: fetch error")

// Fetcher retrieves the raw raster image bytes for one overlay tile.
type Fetcher interface {
	FetchImage(ctx context.Context, rect Rectangle) (image.Image, error)
}

// Tile is a RasterOverlayTile: a geographic-rectangle image, refcounted
// across every RasterMapping that references it.
type Tile struct {
	Rectangle  Rectangle
	State      State
	references int

	image image.Image
}

// Image returns the tile's decoded raster, nil until it reaches Loaded.
func (t *Tile) Image() image.Image { return t.image }

// Cache owns the set of in-flight and loaded overlay tiles, keyed by
// rectangle identity: "one rectangle, refcounted" instead of named image
// layers.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	tiles   map[Rectangle]*Tile
}

// NewCache wires a Cache against its image-fetching collaborator.
func NewCache(fetcher Fetcher) *Cache {
	return &Cache{fetcher: fetcher, tiles: make(map[Rectangle]*Tile)}
}

// Acquire returns the overlay tile for rect, fetching it if this is the
// first reference, and increments its reference count. Overlay tiles are
// owned by the cache and referenced from host tiles by a shared, refcounted
// handle, never copied into the host tile.
func (c *Cache) Acquire(ctx context.Context, rect Rectangle) (*Tile, error) {
	c.mu.Lock()
	t, ok := c.tiles[rect]
	if !ok {
		t = &Tile{Rectangle: rect, State: Unloaded}
		c.tiles[rect] = t
	}
	t.references++
	needsFetch := t.State == Unloaded
	if needsFetch {
		t.State = Loading
	}
	c.mu.Unlock()

	if !needsFetch {
		return t, nil
	}

	img, err := c.fetcher.FetchImage(ctx, rect)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		t.State = Failed
		return nil, fmt.Errorf("%w: %v", ErrOverlayFetch, err)
	}
	t.image = img
	t.State = Loaded
	return t, nil
}

// Release decrements rect's reference count; once it reaches zero and the
// tile is Loaded, it becomes eligible for Sweep to free.
func (c *Cache) Release(rect Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tiles[rect]
	if !ok {
		return
	}
	t.references--
}

// Sweep frees every tracked tile with zero references and state Loaded.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for rect, t := range c.tiles {
		if t.references <= 0 && t.State == Loaded {
			delete(c.tiles, rect)
		}
	}
}

// ResizeForMapping resamples an overlay tile's image to the pixel
// resolution a RasterMapping's target texture needs, via a gift Lanczos
// resize.
func ResizeForMapping(src image.Image, width, height int) *image.NRGBA {
	g := gift.New(gift.Resize(width, height, gift.LanczosResampling))
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// Attach binds an overlay tile to a host tile's RasterMapping. A tile's
// RasterMappings entries keep the same order for the tile's lifetime;
// attachment writes mapping, with Attached set, into the existing slot at
// index and never inserts or removes a slot. index must already exist
// in content.RasterMappings (created when the mapping was first requested).
func Attach(content *tileset.Content, index int, mapping tileset.RasterMapping) error {
	if content == nil || index < 0 || index >= len(content.RasterMappings) {
		return fmt.Errorf("overlay: attach: index %d out of range", index)
	}
	mapping.Attached = true
	content.RasterMappings[index] = mapping
	return nil
}

// Detach flips a mapping's Attached bit off in place, without removing the
// slot (so ordering is preserved for the tile's lifetime).
func Detach(content *tileset.Content, index int) error {
	if content == nil || index < 0 || index >= len(content.RasterMappings) {
		return fmt.Errorf("overlay: detach: index %d out of range", index)
	}
	content.RasterMappings[index].Attached = false
	return nil
}

// Blit composites src (already resized to the mapping's target resolution)
// onto dst at the rectangle described by the mapping's translation/scale
// (in dst's normalized UV space, [0,1]²), via golang.org/x/image/draw.
func Blit(dst draw.Image, src image.Image, mapping tileset.RasterMapping) {
	bounds := dst.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	x0 := bounds.Min.X + int(mapping.TranslationU*float64(w))
	y0 := bounds.Min.Y + int(mapping.TranslationV*float64(h))
	x1 := x0 + int(mapping.ScaleU*float64(w))
	y1 := y0 + int(mapping.ScaleV*float64(h))

	target := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if target.Empty() {
		return
	}
	draw.Draw(dst, target, src, image.Point{}, draw.Over)
}
