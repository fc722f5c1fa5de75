package node

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
)

// Storage encoding, deterministic and length-prefixed:
//
//	[version u8][level u8][count uvarint]
//	leaf item:     [klen uvarint][key][vlen uvarint][value]
//	internal item: [klen uvarint][key][32-byte child hash]
//
// The same bytes always decode to the same node and re-encode to the same
// bytes, which is what content addressing requires.

const encodingVersion = 1

// Encode serializes the node for storage.
func (n *Node) Encode() []byte {
	var buf bytes.Buffer
	var lenBuf [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		sz := binary.PutUvarint(lenBuf[:], v)
		buf.Write(lenBuf[:sz])
	}

	buf.WriteByte(encodingVersion)
	buf.WriteByte(n.Level)
	putUvarint(uint64(n.ItemCount()))

	if n.IsLeaf() {
		for _, e := range n.Entries {
			putUvarint(uint64(len(e.Key)))
			buf.Write(e.Key)
			putUvarint(uint64(len(e.Value)))
			buf.Write(e.Value)
		}
		return buf.Bytes()
	}

	for _, c := range n.Children {
		putUvarint(uint64(len(c.Key)))
		buf.Write(c.Key)
		buf.Write(c.Hash[:])
	}
	return buf.Bytes()
}

// Decode parses a stored node without verifying its address. Most callers
// want DecodeVerified.
func Decode(data []byte) (*Node, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("node: truncated encoding: %w", err)
	}
	if version != encodingVersion {
		return nil, fmt.Errorf("node: unsupported encoding version %d", version)
	}

	level, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("node: truncated encoding: %w", err)
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("node: bad item count: %w", err)
	}
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("node: item count %d exceeds payload", count)
	}

	readBytes := func(what string) ([]byte, error) {
		sz, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("node: bad %s length: %w", what, err)
		}
		if sz > uint64(r.Len()) {
			return nil, fmt.Errorf("node: %s length %d exceeds payload", what, sz)
		}
		b := make([]byte, sz)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("node: truncated %s: %w", what, err)
		}
		return b, nil
	}

	n := &Node{Level: level}
	if level == 0 {
		n.Entries = make([]Entry, 0, count)
		for i := uint64(0); i < count; i++ {
			key, err := readBytes("key")
			if err != nil {
				return nil, err
			}
			value, err := readBytes("value")
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, Entry{Key: key, Value: value})
		}
	} else {
		n.Children = make([]ChildRef, 0, count)
		for i := uint64(0); i < count; i++ {
			key, err := readBytes("separator key")
			if err != nil {
				return nil, err
			}
			var h hash.Hash
			if _, err := io.ReadFull(r, h[:]); err != nil {
				return nil, fmt.Errorf("node: truncated child hash: %w", err)
			}
			n.Children = append(n.Children, ChildRef{Key: key, Hash: h})
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("node: %d trailing bytes after decode", r.Len())
	}
	return n, nil
}

// DecodeVerified parses a stored node and checks that it hashes to the
// address it was fetched under. A mismatch means storage corruption and is
// returned as ErrCorruptedNode.
func DecodeVerified(data []byte, addr hash.Hash) (*Node, error) {
	n, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedNode, err)
	}
	if got := n.Hash(); !got.Equal(addr) {
		return nil, fmt.Errorf("%w: stored %s, computed %s",
			ErrCorruptedNode, addr.Short(), got.Short())
	}
	return n, nil
}
