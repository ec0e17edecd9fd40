// Package tileset holds the tile tree data model: the Tile type, its load
// state machine, and the per-frame selection scratch the selector writes.
package tileset

import (
	"container/list"

	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/google/uuid"
)

// RefineMode is a tile's refine tag.
type RefineMode int

const (
	// Replace means rendering descendants replaces this tile.
	Replace RefineMode = iota
	// Add means this tile continues to render alongside its descendants.
	Add
)

// LoadState is the tile lifecycle state machine.
type LoadState int

const (
	Unloaded LoadState = iota
	ContentLoading
	ContentLoaded
	Done
	Unloading
	FailedTemporary
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case ContentLoading:
		return "ContentLoading"
	case ContentLoaded:
		return "ContentLoaded"
	case Done:
		return "Done"
	case Unloading:
		return "Unloading"
	case FailedTemporary:
		return "FailedTemporary"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SelectionKind is the per-frame selection-state tag.
type SelectionKind int

const (
	SelectionNone SelectionKind = iota
	SelectionCulled
	SelectionRendered
	SelectionRefined
	SelectionRenderedAndKicked
	SelectionRefinedAndKicked
)

// SelectionState carries the selection kind plus the frame it was set on,
// used by the kick-descendants fix-up.
type SelectionState struct {
	Kind  SelectionKind
	Frame uint64
}

// RasterMapping associates one raster-overlay tile with a rectangle in this
// tile's texture-coordinate space.
type RasterMapping struct {
	OverlayTileID  string
	TranslationU   float64
	TranslationV   float64
	ScaleU         float64
	ScaleV         float64
	Attached       bool
}

// Content is present iff the tile's state is ContentLoaded or Done.
type Content struct {
	Model          *Model
	RasterMappings []RasterMapping
}

// Model is the decoded in-memory representation the external ContentParser
// produces. Its structure is an implementation detail of the parser
// collaborator; the engine only needs a handle plus the mesh used by
// the upsampler.
type Model struct {
	// Handle is the opaque renderer handle produced by the external
	// ResourcePreparer once the tile reaches Done.
	Handle interface{}
	// Mesh is populated when the content carries triangle geometry eligible
	// for raster-overlay upsampling; nil for point clouds and other
	// mesh-less content.
	Mesh *Mesh
}

// CancelFunc cancels an outstanding load; invoked on eviction before
// completion.
type CancelFunc func()

// Tile is the tree node. Children are arena-owned by Parent; Parent is a
// non-owning back-reference, never a second strong owner.
type Tile struct {
	ID uuid.UUID

	BoundingVolume      geom.BoundingVolume
	ViewerRequestVolume *geom.BoundingVolume
	GeometricError      float64
	Refine              RefineMode
	Transform           [16]float64
	ContentURI          string

	Parent   *Tile
	Children []*Tile

	State      LoadState
	Content    *Content
	CancelLoad CancelFunc

	// Per-frame scratch, written only by the single-threaded selector.
	LastSelectionState      SelectionState
	LastSelectionResultFrame uint64

	// loadedTilesElem links this tile into the loader's LRU of Done tiles;
	// present iff State == Done.
	loadedTilesElem *list.Element

	// ByteSize is the resident content size once loaded, used by the
	// eviction byte budget.
	ByteSize int64
}

// NewTile constructs an unloaded, empty-hierarchy tile.
func NewTile(bv geom.BoundingVolume, geometricError float64, refine RefineMode) *Tile {
	return &Tile{
		ID:             uuid.New(),
		BoundingVolume: bv,
		GeometricError: geometricError,
		Refine:         refine,
		State:          Unloaded,
	}
}

// IsEmpty reports whether the tile carries no content URI — a pure
// hierarchy node that contributes only structure.
func (t *Tile) IsEmpty() bool {
	return t.ContentURI == ""
}

// IsRenderable reports whether the tile's content is ready to be drawn:
// either it's a pure hierarchy (empty) tile, which renders as "nothing,
// successfully", or its state has reached Done.
func (t *Tile) IsRenderable() bool {
	return t.IsEmpty() || t.State == Done
}

// LRUElement returns the tile's intrusive LRU list element, or nil.
func (t *Tile) LRUElement() *list.Element { return t.loadedTilesElem }

// SetLRUElement is called only by the loader's LRU bookkeeping.
func (t *Tile) SetLRUElement(e *list.Element) { t.loadedTilesElem = e }
