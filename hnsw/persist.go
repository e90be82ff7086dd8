package hnsw

import (
	"encoding/binary"
	"fmt"
)

// EncodeNode serializes a single node's adjacency lists to the on-disk
// graph-node record format: a 1-byte top layer, followed by, for each layer
// from 0 up to and including that top layer, a 2-byte little-endian
// neighbor count and then that many 4-byte little-endian neighbor ids.
//
// This is the record the optimized storage backend keys by node id under
// the graph/ prefix; it intentionally excludes the vector itself (which
// lives in the fixed-stride vector file) and the Tombstoned flag (which
// lives in the metadata/manifest side of a commit).
func EncodeNode(n *Node) ([]byte, error) {
	// n.Connections is allocated wider than n.Layer (the construction-time
	// candidate-list cap doubles as its initial length), but only indices
	// 0..n.Layer are ever populated or read, so that is what gets persisted.
	topLayer := n.Layer
	if topLayer < 0 || topLayer > 0xff || topLayer >= len(n.Connections) {
		return nil, fmt.Errorf("hnsw: node %d has out-of-range layer %d", n.ID, n.Layer)
	}

	buf := make([]byte, 1)
	buf[0] = byte(topLayer)

	for level := 0; level <= topLayer; level++ {
		neighbors := n.Connections[level]
		if len(neighbors) > 0xffff {
			return nil, fmt.Errorf("hnsw: node %d layer %d has too many neighbors (%d)", n.ID, level, len(neighbors))
		}

		head := make([]byte, 2)
		binary.LittleEndian.PutUint16(head, uint16(len(neighbors)))
		buf = append(buf, head...)

		for _, id := range neighbors {
			idBuf := make([]byte, 4)
			binary.LittleEndian.PutUint32(idBuf, id)
			buf = append(buf, idBuf...)
		}
	}

	return buf, nil
}

// DecodeNode parses a graph-node record produced by EncodeNode back into a
// Node's id, layer, and adjacency lists. Callers must fill in Vector and
// Tombstoned separately from the vector file and metadata side of a commit.
func DecodeNode(id uint32, data []byte) (*Node, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("hnsw: graph node %d record too short", id)
	}

	topLayer := int(data[0])
	pos := 1

	connections := make([][]uint32, topLayer+1)
	for level := 0; level <= topLayer; level++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("hnsw: graph node %d record truncated at layer %d count", id, level)
		}
		count := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2

		neighbors := make([]uint32, count)
		for i := 0; i < count; i++ {
			if pos+4 > len(data) {
				return nil, fmt.Errorf("hnsw: graph node %d record truncated at layer %d neighbor %d", id, level, i)
			}
			neighbors[i] = binary.LittleEndian.Uint32(data[pos : pos+4])
			pos += 4
		}
		connections[level] = neighbors
	}

	return &Node{
		ID:          id,
		Layer:       topLayer,
		Connections: connections,
	}, nil
}
