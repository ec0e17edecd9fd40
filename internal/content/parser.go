package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/tile3d/internal/geom"
	"github.com/MeKo-Tech/tile3d/internal/loader"
	"github.com/MeKo-Tech/tile3d/internal/tileset"
)

// ErrParse is returned for any content the parser cannot decode. The loader
// handles it like a fetch error: it re-queues the tile until its retry
// budget is used up and then marks it Failed.
var ErrParse = errors.New("content: parse error")

type decoderFunc func(ctx context.Context, data []byte, url string) (*loader.ParseResult, error)

// Parser implements loader.ContentParser via an explicit registry keyed by
// magic-number Kind, a registered-converter pattern rather than a type
// switch that grows unbounded.
type Parser struct {
	decoders map[Kind]decoderFunc
}

// NewParser builds a Parser with the standard set of decoders registered.
func NewParser() *Parser {
	p := &Parser{decoders: make(map[Kind]decoderFunc)}
	p.Register(KindB3DM, p.decodeB3DM)
	p.Register(KindPNTS, p.decodePNTS)
	p.Register(KindExternalTileset, p.decodeExternalTileset)
	p.Register(KindGLTF, p.decodeGLTF)
	return p
}

// Register adds or replaces the decoder for one content Kind.
func (p *Parser) Register(k Kind, fn decoderFunc) {
	p.decoders[k] = fn
}

// Parse implements loader.ContentParser.
func (p *Parser) Parse(ctx context.Context, data []byte, url string) (*loader.ParseResult, error) {
	kind := Sniff(data)
	dec, ok := p.decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized content at %s", ErrParse, url)
	}
	result, err := dec(ctx, data, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, url, err)
	}
	return result, nil
}

// decodeB3DM extracts the batched-3D-model's embedded glTF payload. The
// geometry itself is delegated to decodeGLTF; the feature/batch tables are
// out of scope.
func (p *Parser) decodeB3DM(ctx context.Context, data []byte, url string) (*loader.ParseResult, error) {
	header, headerLength, err := sniffB3DM(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) < header.ByteLength {
		return nil, fmt.Errorf("b3dm: declared byteLength %d exceeds payload length %d", header.ByteLength, len(data))
	}

	glbStart := headerLength + int(header.FeatureTableJSONByteLength) + int(header.FeatureTableBinaryByteLength)
	glbStart += int(header.BatchTableJSONByteLength) + int(header.BatchTableBinaryByteLength)
	glbEnd := int(header.ByteLength)
	if glbEnd <= glbStart {
		return nil, fmt.Errorf("b3dm: embedded glTF start %d is past its end %d", glbStart, glbEnd)
	}
	return p.decodeGLTF(ctx, data[glbStart:glbEnd], url)
}

// decodePNTS models point-cloud content with no mesh — ineligible for
// raster-overlay upsampling.
func (p *Parser) decodePNTS(ctx context.Context, data []byte, url string) (*loader.ParseResult, error) {
	return &loader.ParseResult{
		Model: &tileset.Model{Mesh: nil},
	}, nil
}

// decodeGLTF produces a Model handle for a glTF/binary-glTF payload.
// Full glTF decoding is explicitly out of scope; this hands the raw bytes
// through as the model handle for the external ResourcePreparer to
// interpret, matching how the engine treats content parsing as a black-box
// collaborator.
func (p *Parser) decodeGLTF(ctx context.Context, data []byte, url string) (*loader.ParseResult, error) {
	if len(data) == 0 {
		return nil, errors.New("empty glTF payload")
	}
	return &loader.ParseResult{
		Model: &tileset.Model{Handle: data},
	}, nil
}

// externalTileset mirrors the small subset of the 3D Tiles tileset.json
// schema the engine needs to grow the tree: bounding volume, geometric
// error, refinement mode, content URI, and children.
type externalTileset struct {
	Root externalTile `json:"root"`
}

type externalTile struct {
	BoundingVolume externalBoundingVolume `json:"boundingVolume"`
	GeometricError float64                `json:"geometricError"`
	Refine         string                 `json:"refine"`
	Content        *externalContent       `json:"content"`
	Children       []externalTile         `json:"children"`
}

type externalContent struct {
	URI string `json:"uri"`
}

type externalBoundingVolume struct {
	// Region is [west, south, east, north, minHeight, maxHeight] in radians.
	Region *[6]float64 `json:"region"`
	// Sphere is [centerX, centerY, centerZ, radius].
	Sphere *[4]float64 `json:"sphere"`
	// Box is [centerX,Y,Z, halfAxisX{X,Y,Z}, halfAxisY{X,Y,Z}, halfAxisZ{X,Y,Z}].
	Box *[12]float64 `json:"box"`
}

func (b externalBoundingVolume) toGeom() (geom.BoundingVolume, error) {
	switch {
	case b.Region != nil:
		r := *b.Region
		return geom.NewRegionVolume(geom.Region{
			West: r[0], South: r[1], East: r[2], North: r[3],
			MinHeight: r[4], MaxHeight: r[5],
		}), nil
	case b.Sphere != nil:
		s := *b.Sphere
		return geom.NewSphereVolume(geom.Vector3{X: s[0], Y: s[1], Z: s[2]}, s[3]), nil
	case b.Box != nil:
		v := *b.Box
		return geom.NewOrientedBoxVolume(
			geom.Vector3{X: v[0], Y: v[1], Z: v[2]},
			[3]geom.Vector3{
				{X: v[3], Y: v[4], Z: v[5]},
				{X: v[6], Y: v[7], Z: v[8]},
				{X: v[9], Y: v[10], Z: v[11]},
			},
		), nil
	default:
		return geom.BoundingVolume{}, errors.New("boundingVolume: none of region/sphere/box present")
	}
}

func (t externalTile) toTile(parent *tileset.Tile) (*tileset.Tile, error) {
	bv, err := t.BoundingVolume.toGeom()
	if err != nil {
		return nil, err
	}
	refine := tileset.Replace
	if t.Refine == "ADD" {
		refine = tileset.Add
	}
	tile := tileset.NewTile(bv, t.GeometricError, refine)
	tile.Parent = parent
	if t.Content != nil {
		tile.ContentURI = t.Content.URI
	}
	for _, c := range t.Children {
		child, err := c.toTile(tile)
		if err != nil {
			return nil, err
		}
		tile.Children = append(tile.Children, child)
	}
	return tile, nil
}

// decodeExternalTileset parses a referenced tileset.json into the child
// subtree discovered by parsing it.
func (p *Parser) decodeExternalTileset(ctx context.Context, data []byte, url string) (*loader.ParseResult, error) {
	var doc externalTileset
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tileset.json: %w", err)
	}
	root, err := doc.Root.toTile(nil)
	if err != nil {
		return nil, err
	}
	return &loader.ParseResult{
		Children: []*tileset.Tile{root},
	}, nil
}
