package versioning

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/zhangfengcdt/prollytree/pkg/hash"
	"github.com/zhangfengcdt/prollytree/pkg/store"
)

const commitVersion = 1

// Commit is one node of the history DAG. It is content-addressed: the ID
// is the hash of the encoded commit, so equal commits share an ID and any
// alteration is detectable.
type Commit struct {
	ID        hash.Hash
	Root      hash.Hash // tree root this commit points at
	Parents   []hash.Hash
	Author    string
	Committer string
	Message   string
	Timestamp time.Time
}

// IsMerge reports whether the commit joins two lines of history.
func (c *Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

func (c *Commit) String() string {
	return fmt.Sprintf("%s %s", c.ID.Short(), c.Message)
}

// encode serializes every field except ID. The encoding is deterministic
// so the same commit always hashes to the same ID.
func (c *Commit) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(commitVersion)
	buf.Write(c.Root[:])

	var tmp [binary.MaxVarintLen64]byte
	writeUvarint := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	writeString := func(s string) {
		writeUvarint(uint64(len(s)))
		buf.WriteString(s)
	}

	writeUvarint(uint64(len(c.Parents)))
	for _, p := range c.Parents {
		buf.Write(p[:])
	}
	writeString(c.Author)
	writeString(c.Committer)
	writeString(c.Message)
	n := binary.PutVarint(tmp[:], c.Timestamp.UnixNano())
	buf.Write(tmp[:n])
	return buf.Bytes()
}

func decodeCommit(data []byte, id hash.Hash) (*Commit, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("versioning: truncated commit %s", id.Short())
	}
	if version != commitVersion {
		return nil, fmt.Errorf("versioning: unsupported commit version %d", version)
	}

	c := &Commit{ID: id}
	if _, err := io.ReadFull(r, c.Root[:]); err != nil {
		return nil, fmt.Errorf("versioning: truncated commit %s", id.Short())
	}
	nParents, err := binary.ReadUvarint(r)
	if err != nil || nParents > 16 {
		return nil, fmt.Errorf("versioning: corrupt commit %s", id.Short())
	}
	c.Parents = make([]hash.Hash, nParents)
	for i := range c.Parents {
		if _, err := io.ReadFull(r, c.Parents[i][:]); err != nil {
			return nil, fmt.Errorf("versioning: truncated commit %s", id.Short())
		}
	}
	readString := func() (string, error) {
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return "", fmt.Errorf("versioning: corrupt commit %s", id.Short())
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("versioning: truncated commit %s", id.Short())
		}
		return string(b), nil
	}
	if c.Author, err = readString(); err != nil {
		return nil, err
	}
	if c.Committer, err = readString(); err != nil {
		return nil, err
	}
	if c.Message, err = readString(); err != nil {
		return nil, err
	}
	nanos, err := binary.ReadVarint(r)
	if err != nil {
		return nil, fmt.Errorf("versioning: corrupt commit %s", id.Short())
	}
	c.Timestamp = time.Unix(0, nanos).UTC()
	if r.Len() != 0 {
		return nil, fmt.Errorf("versioning: trailing bytes in commit %s", id.Short())
	}
	return c, nil
}

// writeCommit assigns the content address and persists the commit.
func writeCommit(st store.Store, c *Commit) error {
	data := c.encode()
	c.ID = hash.Sum(data)
	return st.Put(c.ID, data)
}

func readCommit(st store.Store, id hash.Hash) (*Commit, error) {
	data, err := st.Get(id)
	if err != nil {
		return nil, fmt.Errorf("versioning: loading commit %s: %w", id.Short(), err)
	}
	return decodeCommit(data, id)
}
