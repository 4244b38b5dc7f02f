package googleearth

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Layer types in quadtree packets
const (
	LayerTypeImagery        = 0
	LayerTypeTerrain        = 1
	LayerTypeVector         = 2
	LayerTypeImageryHistory = 3
)

// Packet is a decoded TimeMachine quadtree packet
type Packet struct {
	Epoch int
	Nodes map[int]*QuadtreeNode
}

// QuadtreeNode is one node of a packet, keyed by its sub-index
type QuadtreeNode struct {
	CacheNodeEpoch int
	Layers         []QuadtreeLayer
}

// QuadtreeLayer is a node layer. Only ImageryHistory layers carry dates.
type QuadtreeLayer struct {
	Type       int
	LayerEpoch int
	Provider   int
	DatedTiles []ImageryDatedTile
}

// ImageryDatedTile is one capture date of a node
type ImageryDatedTile struct {
	Date     int // Packed date: (year<<9)|(month<<5)|day
	Epoch    int
	Provider int
}

// History returns the node's ImageryHistory layer, or nil
func (n *QuadtreeNode) History() *QuadtreeLayer {
	for i := range n.Layers {
		if n.Layers[i].Type == LayerTypeImageryHistory {
			return &n.Layers[i]
		}
	}
	return nil
}

// DecodeDate unpacks a Google Earth date
func DecodeDate(packed int) (year, month, day int) {
	return packed >> 9, (packed >> 5) & 0xF, packed & 0x1F
}

// EncodeDate packs a date into the Google Earth format
func EncodeDate(year, month, day int) int {
	return ((year & 0x7FF) << 9) | ((month & 0xF) << 5) | (day & 0x1F)
}

// Time converts the packed date, reporting false for impossible dates
func (d ImageryDatedTile) Time() (time.Time, bool) {
	year, month, day := DecodeDate(d.Date)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// ParsePacket decodes a decompressed quadtree packet. Google Earth encodes
// nested messages as groups; length-delimited encodings are accepted too.
func ParsePacket(data []byte) (*Packet, error) {
	p := &Packet{Nodes: make(map[int]*QuadtreeNode)}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1: // packet_epoch
			p.Epoch = varint(typ, v)
		case 2: // sparsequadtreenode
			if !nested(typ) {
				return nil
			}
			index, node, err := parseSparseNode(v)
			if err != nil {
				return fmt.Errorf("sparse node: %w", err)
			}
			if index >= 0 {
				p.Nodes[index] = node
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseSparseNode(data []byte) (int, *QuadtreeNode, error) {
	index := -1
	node := &QuadtreeNode{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 3: // index
			index = varint(typ, v)
		case 4: // node
			if nested(typ) {
				return parseNode(v, node)
			}
		}
		return nil
	})
	return index, node, err
}

func parseNode(data []byte, node *QuadtreeNode) error {
	return eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 2: // cache_node_epoch
			node.CacheNodeEpoch = varint(typ, v)
		case 3: // layer
			if !nested(typ) {
				return nil
			}
			layer, err := parseLayer(v)
			if err != nil {
				return fmt.Errorf("layer: %w", err)
			}
			node.Layers = append(node.Layers, layer)
		}
		return nil
	})
}

func parseLayer(data []byte) (QuadtreeLayer, error) {
	var layer QuadtreeLayer
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			layer.Type = varint(typ, v)
		case 2:
			layer.LayerEpoch = varint(typ, v)
		case 3:
			layer.Provider = varint(typ, v)
		case 4: // dates_layer
			if !nested(typ) {
				return nil
			}
			return eachField(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num != 1 || !nested(typ) {
					return nil
				}
				dt, err := parseDatedTile(v)
				if err != nil {
					return err
				}
				layer.DatedTiles = append(layer.DatedTiles, dt)
				return nil
			})
		}
		return nil
	})
	return layer, err
}

func parseDatedTile(data []byte) (ImageryDatedTile, error) {
	var dt ImageryDatedTile
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			dt.Date = varint(typ, v)
		case 2:
			dt.Epoch = varint(typ, v)
		case 3:
			dt.Provider = varint(typ, v)
		}
		return nil
	})
	return dt, err
}

// eachField calls fn for every field of a message body. For groups and
// length-delimited fields v is the nested body; otherwise it is the raw
// field value.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var v []byte
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.StartGroupType:
			v, n = protowire.ConsumeGroup(num, b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				v = b[:n]
			}
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		if err := fn(num, typ, v); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func nested(typ protowire.Type) bool {
	return typ == protowire.BytesType || typ == protowire.StartGroupType
}

// varint decodes v as a varint field; other wire types read as zero
func varint(typ protowire.Type, v []byte) int {
	if typ != protowire.VarintType {
		return 0
	}
	x, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0
	}
	return int(int32(x))
}
