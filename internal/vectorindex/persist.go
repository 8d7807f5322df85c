package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopherai-kbqa/internal/apperr"
)

const (
	VectorsFile  = "vectors.bin"
	MetadataFile = "metadata.json"

	formatVersion uint32 = 1
)

var magic = [4]byte{'K', 'B', 'Q', 'V'}

type fileHeader struct {
	Magic     [4]byte
	Version   uint32
	Dimension uint32
	Count     uint32
}

// Load reads the vector file and the metadata file from dir. Both must
// exist and describe the same number of entries; any inconsistency is a
// configuration error.
func Load(dir string) (*FlatIndex, error) {
	records, err := loadRecords(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	dim, vectors, err := loadVectors(filepath.Join(dir, VectorsFile), len(records))
	if err != nil {
		return nil, err
	}
	for i, rec := range records {
		if rec.Index != i {
			return nil, fmt.Errorf("%w: metadata entry %d has index %d", apperr.ErrConfiguration, i, rec.Index)
		}
	}

	ix := NewFlatIndex(dim)
	if err := ix.Add(vectors, records); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrConfiguration, err)
	}
	return ix, nil
}

// Save writes both artifacts into dir. Each file is written to a temporary
// name first and renamed into place.
func Save(ix *FlatIndex, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, VectorsFile), func(w io.Writer) error {
		header := fileHeader{Magic: magic, Version: formatVersion, Dimension: uint32(ix.dim), Count: uint32(ix.Len())}
		if err := binary.Write(w, binary.LittleEndian, header); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, ix.vectors)
	}); err != nil {
		return fmt.Errorf("write vectors failed: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, MetadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ix.arena.records)
	}); err != nil {
		return fmt.Errorf("write metadata failed: %w", err)
	}
	return nil
}

func loadRecords(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata file: %w", apperr.ErrConfiguration, err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: parse metadata file: %w", apperr.ErrConfiguration, err)
	}
	return records, nil
}

// loadVectors checks the header against the metadata record count and the
// file size before allocating anything.
func loadVectors(path string, recordCount int) (int, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: open vector file: %w", apperr.ErrConfiguration, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header fileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, nil, fmt.Errorf("%w: read vector header: %w", apperr.ErrConfiguration, err)
	}
	if header.Magic != magic {
		return 0, nil, fmt.Errorf("%w: %s is not a vector index file", apperr.ErrConfiguration, path)
	}
	if header.Version != formatVersion {
		return 0, nil, fmt.Errorf("%w: unsupported vector file version %d", apperr.ErrConfiguration, header.Version)
	}
	if header.Dimension == 0 {
		return 0, nil, fmt.Errorf("%w: vector file declares dimension 0", apperr.ErrConfiguration)
	}

	if int64(header.Count) != int64(recordCount) {
		return 0, nil, fmt.Errorf("%w: index has %d vectors but metadata has %d records", apperr.ErrConfiguration, header.Count, recordCount)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: stat vector file: %w", apperr.ErrConfiguration, err)
	}
	want := int64(binary.Size(header)) + int64(header.Count)*int64(header.Dimension)*4
	if info.Size() != want {
		return 0, nil, fmt.Errorf("%w: vector file is %d bytes, header describes %d", apperr.ErrConfiguration, info.Size(), want)
	}

	dim := int(header.Dimension)
	vectors := make([][]float32, header.Count)
	for i := range vectors {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return 0, nil, fmt.Errorf("%w: vector %d truncated: %w", apperr.ErrConfiguration, i, err)
		}
		vectors[i] = vec
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		return 0, nil, fmt.Errorf("%w: trailing data after %d vectors", apperr.ErrConfiguration, header.Count)
	}
	return dim, vectors, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
