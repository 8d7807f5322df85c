// Package vectorindex is the in-memory nearest-neighbour index used at
// query time. Vectors live in a flat slice and their document records in a
// dense arena addressed by Handle.
package vectorindex

import (
	"errors"
	"fmt"
)

var ErrInvalidHandle = errors.New("invalid record handle")

const (
	MetaSource     = "source"
	MetaFilename   = "filename"
	MetaFileType   = "file_type"
	MetaChunkIndex = "chunk_index"
)

// Handle is a position in an Arena. It is valid only when
// 0 <= handle < arena.Len().
type Handle int

// Metadata is the per-chunk attribute map written by the index builder.
type Metadata map[string]any

func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (m Metadata) Source() string {
	return m.String(MetaSource)
}

func (m Metadata) Filename() string {
	return m.String(MetaFilename)
}

func (m Metadata) FileType() string {
	return m.String(MetaFileType)
}

// Record is one indexed chunk as persisted in the metadata file.
type Record struct {
	DocID    string   `json:"doc_id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Index    int      `json:"index"`
}

// Arena owns records by position.
type Arena struct {
	records []Record
}

func NewArena(records []Record) *Arena {
	return &Arena{records: records}
}

func (a *Arena) Len() int {
	return len(a.records)
}

// Get rejects out-of-range handles instead of returning an empty record.
func (a *Arena) Get(h Handle) (Record, error) {
	if h < 0 || int(h) >= len(a.records) {
		return Record{}, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidHandle, h, len(a.records))
	}
	return a.records[h], nil
}

func (a *Arena) append(records []Record) Handle {
	start := Handle(len(a.records))
	a.records = append(a.records, records...)
	return start
}
