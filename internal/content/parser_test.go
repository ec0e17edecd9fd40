package content

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modernB3DMHeader(gltfLen int) []byte {
	total := b3dmHeaderSize + gltfLen
	buf := make([]byte, total)
	copy(buf[0:4], "b3dm")
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(total))
	// feature table / batch table all empty
	copy(buf[b3dmHeaderSize:], []byte("glTF"))
	return buf
}

func TestSniffMagicNumbers(t *testing.T) {
	assert.Equal(t, KindB3DM, Sniff([]byte("b3dm")))
	assert.Equal(t, KindPNTS, Sniff([]byte("pnts")))
	assert.Equal(t, KindI3DM, Sniff([]byte("i3dm")))
	assert.Equal(t, KindCMPT, Sniff([]byte("cmpt")))
	assert.Equal(t, KindGLTF, Sniff([]byte("glTF")))
	assert.Equal(t, KindExternalTileset, Sniff([]byte(`{"asset":{}}`)))
	assert.Equal(t, KindUnknown, Sniff([]byte("xxxx")))
}

func TestParseB3DMModernHeader(t *testing.T) {
	p := NewParser()
	data := modernB3DMHeader(4)
	res, err := p.Parse(context.Background(), data, "tile.b3dm")
	require.NoError(t, err)
	require.NotNil(t, res.Model)
}

func TestParseB3DMLegacyHeader(t *testing.T) {
	gltf := []byte("glTF-stub")
	total := b3dmLegacyHeaderSize1 + len(gltf)
	buf := make([]byte, total)
	copy(buf[0:4], "b3dm")
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(total))
	// Offset 20 is where the modern header keeps batchTableJsonByteLength;
	// a value at or above the 0x22000000 threshold there is what tells the
	// sniffer this is actually the legacy [batchLength][batchTableByteLength]
	// layout. The glTF payload copied below starts at offset 20 and
	// overwrites this value, and its "glTF" magic is above the threshold too.
	binary.LittleEndian.PutUint32(buf[20:24], legacyThreshold)
	copy(buf[b3dmLegacyHeaderSize1:], gltf)

	p := NewParser()
	res, err := p.Parse(context.Background(), buf, "legacy.b3dm")
	require.NoError(t, err)
	require.NotNil(t, res.Model)
}

func TestParseExternalTileset(t *testing.T) {
	p := NewParser()
	doc := []byte(`{
		"root": {
			"geometricError": 50,
			"refine": "REPLACE",
			"boundingVolume": {"sphere": [0,0,0,100]},
			"content": {"uri": "child.b3dm"},
			"children": [
				{
					"geometricError": 10,
					"boundingVolume": {"sphere": [0,0,0,50]}
				}
			]
		}
	}`)
	res, err := p.Parse(context.Background(), doc, "tileset.json")
	require.NoError(t, err)
	require.Len(t, res.Children, 1)
	root := res.Children[0]
	assert.Equal(t, "child.b3dm", root.ContentURI)
	assert.Equal(t, 50.0, root.GeometricError)
	require.Len(t, root.Children, 1)
	assert.Same(t, root, root.Children[0].Parent)
}

func TestParseUnrecognizedContent(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(context.Background(), []byte("????"), "mystery.bin")
	assert.ErrorIs(t, err, ErrParse)
}

func TestAvailabilityMask(t *testing.T) {
	bits := []byte{0b00000101} // indices 0 and 2 available
	m := NewAvailabilityMask(bits, 8)
	assert.True(t, m.IsAvailable(0))
	assert.False(t, m.IsAvailable(1))
	assert.True(t, m.IsAvailable(2))
	assert.Equal(t, 2, m.AvailableCount())

	constAvail := NewConstantAvailabilityMask(10, true)
	assert.Equal(t, 10, constAvail.AvailableCount())

	constUnavail := NewConstantAvailabilityMask(10, false)
	assert.Equal(t, 0, constUnavail.AvailableCount())
}
