package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-kbqa/internal/apperr"
)

func sampleIndex(t *testing.T) *FlatIndex {
	t.Helper()
	ix := NewFlatIndex(3)
	err := ix.Add(
		[][]float32{{1, 0, 0}, {0, 2, 0}, {1, 1, 0}},
		[]Record{
			{DocID: "a-0", Content: "alpha", Metadata: Metadata{MetaSource: "docs/a.md", MetaFilename: "a.md"}},
			{DocID: "b-0", Content: "beta", Metadata: Metadata{MetaSource: "docs/b.md", MetaFilename: "b.md"}},
			{DocID: "c-0", Content: "gamma", Metadata: Metadata{MetaSource: "docs/c.md", MetaFilename: "c.md", MetaChunkIndex: 2}},
		},
	)
	require.NoError(t, err)
	return ix
}

func TestArenaGet(t *testing.T) {
	arena := NewArena([]Record{{DocID: "x"}})

	t.Run("Valid handle returns the record", func(t *testing.T) {
		rec, err := arena.Get(0)
		require.NoError(t, err)
		assert.Equal(t, "x", rec.DocID)
	})

	t.Run("Negative and past-the-end handles are rejected", func(t *testing.T) {
		_, err := arena.Get(-1)
		assert.ErrorIs(t, err, ErrInvalidHandle)
		_, err = arena.Get(1)
		assert.ErrorIs(t, err, ErrInvalidHandle)
	})
}

func TestFlatIndexSearch(t *testing.T) {
	ix := sampleIndex(t)

	t.Run("Orders hits by descending cosine similarity", func(t *testing.T) {
		hits, err := ix.Search(Normalize([]float32{1, 0.2, 0}), 3)

		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, Handle(0), hits[0].Handle)
		assert.Equal(t, Handle(2), hits[1].Handle)
		assert.Equal(t, Handle(1), hits[2].Handle)
		assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
		assert.InDelta(t, 0.9806, hits[0].Similarity, 1e-3)
	})

	t.Run("Stored vectors are normalised", func(t *testing.T) {
		hits, err := ix.Search([]float32{0, 1, 0}, 1)

		require.NoError(t, err)
		assert.Equal(t, Handle(1), hits[0].Handle)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6, "Expected unit similarity for an identical direction")
	})

	t.Run("k larger than the index is capped", func(t *testing.T) {
		hits, err := ix.Search([]float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, hits, 3)
	})

	t.Run("Empty index returns no hits", func(t *testing.T) {
		hits, err := NewFlatIndex(3).Search([]float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("Query dimension must match", func(t *testing.T) {
		_, err := ix.Search([]float32{1, 0}, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Records carry their position", func(t *testing.T) {
		rec, err := ix.Record(2)
		require.NoError(t, err)
		assert.Equal(t, 2, rec.Index)
		assert.Equal(t, "c.md", rec.Metadata.Filename())
		assert.Equal(t, "2", rec.Metadata.String(MetaChunkIndex))
	})
}

func TestFlatIndexAdd(t *testing.T) {
	t.Run("Rejects vectors of the wrong dimension", func(t *testing.T) {
		ix := NewFlatIndex(2)
		err := ix.Add([][]float32{{1, 2, 3}}, []Record{{}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("Rejects mismatched vector and record counts", func(t *testing.T) {
		ix := NewFlatIndex(2)
		err := ix.Add([][]float32{{1, 2}}, nil)
		assert.Error(t, err)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("Zero vector stays zero", func(t *testing.T) {
		assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
	})

	t.Run("Result has unit length", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})
}

func TestSaveLoad(t *testing.T) {
	t.Run("Round trip keeps vectors and records", func(t *testing.T) {
		dir := t.TempDir()
		ix := sampleIndex(t)

		require.NoError(t, Save(ix, dir))
		loaded, err := Load(dir)

		require.NoError(t, err)
		assert.Equal(t, ix.Dimension(), loaded.Dimension())
		assert.Equal(t, ix.Len(), loaded.Len())
		want, _ := ix.Search([]float32{0.6, 0.8, 0}, 3)
		got, _ := loaded.Search([]float32{0.6, 0.8, 0}, 3)
		for i := range want {
			assert.Equal(t, want[i].Handle, got[i].Handle)
			assert.InDelta(t, want[i].Similarity, got[i].Similarity, 1e-6)
		}
		rec, err := loaded.Record(1)
		require.NoError(t, err)
		assert.Equal(t, "docs/b.md", rec.Metadata.Source())
	})

	t.Run("Missing metadata file is a configuration error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Save(sampleIndex(t), dir))
		require.NoError(t, os.Remove(filepath.Join(dir, MetadataFile)))

		_, err := Load(dir)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})

	t.Run("Missing vector file is a configuration error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Save(sampleIndex(t), dir))
		require.NoError(t, os.Remove(filepath.Join(dir, VectorsFile)))

		_, err := Load(dir)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})

	t.Run("Cardinality mismatch is a configuration error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Save(sampleIndex(t), dir))
		records := []Record{{DocID: "a-0", Index: 0}, {DocID: "b-0", Index: 1}}
		raw, err := json.Marshal(records)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), raw, 0o644))

		_, err = Load(dir)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Contains(t, err.Error(), "3 vectors but metadata has 2 records")
	})

	t.Run("Oversized header count is rejected before allocation", func(t *testing.T) {
		dir := t.TempDir()
		var buf bytes.Buffer
		header := fileHeader{Magic: magic, Version: formatVersion, Dimension: 1536, Count: 0xFFFFFFFF}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, header))
		require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), buf.Bytes(), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("[]"), 0o644))

		_, err := Load(dir)

		assert.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Contains(t, err.Error(), "metadata has 0 records")
	})

	t.Run("Truncated vector body is rejected by size", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Save(sampleIndex(t), dir))
		path := filepath.Join(dir, VectorsFile)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw[:len(raw)-4], 0o644))

		_, err = Load(dir)

		assert.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Contains(t, err.Error(), "header describes")
	})

	t.Run("Corrupt vector file is a configuration error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Save(sampleIndex(t), dir))
		require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), []byte("nope"), 0o644))

		_, err := Load(dir)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})
}

func TestHolder(t *testing.T) {
	t.Run("Swap publishes a new index to later readers", func(t *testing.T) {
		first := sampleIndex(t)
		holder := NewHolder(first)
		second := NewFlatIndex(3)

		prev := holder.Swap(second)

		assert.Same(t, first, prev)
		assert.Same(t, second, holder.Current())
		assert.Equal(t, 0, holder.Len())
	})

	t.Run("Concurrent searches during a swap see a complete index", func(t *testing.T) {
		holder := NewHolder(sampleIndex(t))
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					ix := holder.Current()
					hits, err := ix.Search([]float32{1, 0, 0}, 3)
					assert.NoError(t, err)
					assert.Len(t, hits, ix.Len())
				}
			}()
		}
		for i := 0; i < 10; i++ {
			holder.Swap(sampleIndex(t))
		}
		wg.Wait()
	})

	t.Run("Empty holder reports zero records", func(t *testing.T) {
		assert.Nil(t, NewHolder(nil).Current())
		assert.Equal(t, 0, NewHolder(nil).Len())
	})
}
