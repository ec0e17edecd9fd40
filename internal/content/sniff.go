package content

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Kind identifies the small set of content magic numbers the parser
// recognizes: this mapping is purely an implementation detail of the
// parser collaborator, not part of the engine's contract.
type Kind int

const (
	KindUnknown Kind = iota
	KindB3DM
	KindPNTS
	KindI3DM
	KindCMPT
	KindExternalTileset
	KindGLTF
)

func (k Kind) String() string {
	switch k {
	case KindB3DM:
		return "b3dm"
	case KindPNTS:
		return "pnts"
	case KindI3DM:
		return "i3dm"
	case KindCMPT:
		return "cmpt"
	case KindExternalTileset:
		return "tileset.json"
	case KindGLTF:
		return "glTF"
	default:
		return "unknown"
	}
}

// Sniff identifies content by its leading magic bytes, falling back to a
// JSON-object sniff for external tileset references.
func Sniff(data []byte) Kind {
	if len(data) >= 4 {
		switch string(data[:4]) {
		case "b3dm":
			return KindB3DM
		case "pnts":
			return KindPNTS
		case "i3dm":
			return KindI3DM
		case "cmpt":
			return KindCMPT
		case "glTF":
			return KindGLTF
		}
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return KindExternalTileset
	}
	return KindUnknown
}

// b3dmHeader is the decoded Batched-3D-Model header, normalized into the
// modern four-length-field shape regardless of which byte layout was
// actually read off the wire.
type b3dmHeader struct {
	Magic                        [4]byte
	Version                      uint32
	ByteLength                   uint32
	FeatureTableJSONByteLength   uint32
	FeatureTableBinaryByteLength uint32
	BatchTableJSONByteLength     uint32
	BatchTableBinaryByteLength   uint32
}

const b3dmHeaderSize = 28        // magic,version,byteLength + 4 table lengths
const b3dmLegacyHeaderSize1 = 20 // magic,version,byteLength,batchLength,batchTableByteLength
const b3dmLegacyHeaderSize2 = 24 // magic,version,byteLength,batchTableJsonByteLength,batchTableBinaryByteLength,batchLength

// legacyThreshold is the minimum value a genuine length field would take if
// it were actually the leading four bytes of a JSON string (a quotation
// mark, 0x22) or the glTF magic (0x67): 0x22000000. It is vanishingly
// unlikely a real feature/batch table exceeds 570MB, so a length field at or
// above this value means the header is actually laid out in one of the two
// pre-feature-table formats.
const legacyThreshold = 570425344

// sniffB3DM decodes a b3dm header. Most tiles use the current layout
// ([featureTableJson][featureTableBinary][batchTableJson][batchTableBinary]);
// two legacy layouts predate the feature table and are detected by the
// magic-threshold check above, tried in the same order the reference loader
// tries them.
func sniffB3DM(data []byte) (h b3dmHeader, headerLength int, err error) {
	if len(data) < b3dmHeaderSize {
		return b3dmHeader{}, 0, fmt.Errorf("%w: b3dm header truncated", ErrParse)
	}
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	h.ByteLength = binary.LittleEndian.Uint32(data[8:12])

	batchTableJSONByteLength := binary.LittleEndian.Uint32(data[20:24])
	if batchTableJSONByteLength >= legacyThreshold {
		// Legacy #1: [batchLength][batchTableByteLength], no feature table.
		h.BatchTableJSONByteLength = binary.LittleEndian.Uint32(data[16:20])
		return h, b3dmLegacyHeaderSize1, nil
	}

	batchTableBinaryByteLength := binary.LittleEndian.Uint32(data[24:28])
	if batchTableBinaryByteLength >= legacyThreshold {
		// Legacy #2: [batchTableJsonByteLength][batchTableBinaryByteLength]
		// [batchLength], no feature table.
		h.BatchTableJSONByteLength = binary.LittleEndian.Uint32(data[12:16])
		h.BatchTableBinaryByteLength = binary.LittleEndian.Uint32(data[16:20])
		return h, b3dmLegacyHeaderSize2, nil
	}

	h.FeatureTableJSONByteLength = binary.LittleEndian.Uint32(data[12:16])
	h.FeatureTableBinaryByteLength = binary.LittleEndian.Uint32(data[16:20])
	h.BatchTableJSONByteLength = batchTableJSONByteLength
	h.BatchTableBinaryByteLength = batchTableBinaryByteLength
	return h, b3dmHeaderSize, nil
}
