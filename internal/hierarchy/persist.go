package hierarchy

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Artifact filenames under the models directory
const (
	SpecFilename   = "hierarchy_spec.json"
	MatrixFilename = "summing_matrix.f32"
)

// specArtifact is the JSON shape of the persisted hierarchy specification
type specArtifact struct {
	BottomIDs []string `json:"bottom_ids"`
	NStores   int      `json:"n_stores"`
	NFamilies int      `json:"n_families"`
	NBottom   int      `json:"n_bottom"`
}

// TagFilename returns the artifact filename for one tag level
func TagFilename(level Level) string {
	return "tags_" + strings.ToLower(string(level)) + ".bin"
}

// SaveArtifacts persists the spec (JSON), the summing matrix (binary
// float32) and the per-level tag arrays into dir
func SaveArtifacts(dir string, spec *Spec, m *SummingMatrix) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	specPath := filepath.Join(dir, SpecFilename)
	if err := saveSpecJSON(specPath, spec); err != nil {
		return fmt.Errorf("save hierarchy spec: %w", err)
	}

	matrixPath := filepath.Join(dir, MatrixFilename)
	if err := SaveMatrix(matrixPath, m); err != nil {
		return fmt.Errorf("save summing matrix: %w", err)
	}

	for _, level := range Levels {
		tagPath := filepath.Join(dir, TagFilename(level))
		if err := saveTagArray(tagPath, spec.Tags[level]); err != nil {
			return fmt.Errorf("save %s tags: %w", level, err)
		}
	}

	slog.Info("saved hierarchy artifacts",
		slog.String("dir", dir),
		slog.Int("n_bottom", spec.NBottom),
		slog.Int("matrix_rows", m.Rows),
		slog.Int("matrix_cols", m.Cols))

	return nil
}

// LoadArtifacts restores the spec, matrix and tags from dir
func LoadArtifacts(dir string) (*Spec, *SummingMatrix, error) {
	spec, err := loadSpecJSON(filepath.Join(dir, SpecFilename))
	if err != nil {
		return nil, nil, fmt.Errorf("load hierarchy spec: %w", err)
	}

	m, err := LoadMatrix(filepath.Join(dir, MatrixFilename))
	if err != nil {
		return nil, nil, fmt.Errorf("load summing matrix: %w", err)
	}

	spec.Tags = make(map[Level][]string, len(Levels))
	for _, level := range Levels {
		tags, err := loadTagArray(filepath.Join(dir, TagFilename(level)))
		if err != nil {
			return nil, nil, fmt.Errorf("load %s tags: %w", level, err)
		}
		if len(tags) != spec.NBottom {
			return nil, nil, fmt.Errorf("dimension mismatch: %s tag array has %d entries, spec has %d bottom series",
				level, len(tags), spec.NBottom)
		}
		spec.Tags[level] = tags
	}

	return spec, m, nil
}

func saveSpecJSON(path string, spec *Spec) error {
	artifact := specArtifact{
		BottomIDs: spec.BottomIDs,
		NStores:   spec.NStores,
		NFamilies: spec.NFamilies,
		NBottom:   spec.NBottom,
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadSpecJSON(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var artifact specArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse spec JSON: %w", err)
	}

	if len(artifact.BottomIDs) != artifact.NBottom {
		return nil, fmt.Errorf("dimension mismatch: %d bottom ids, n_bottom=%d",
			len(artifact.BottomIDs), artifact.NBottom)
	}

	spec := &Spec{
		BottomIDs: artifact.BottomIDs,
		NStores:   artifact.NStores,
		NFamilies: artifact.NFamilies,
		NBottom:   artifact.NBottom,
	}

	// Dimension values are recovered from the bottom ids, which enumerate
	// stores in the outer loop and families in the inner loop.
	seenStores := make(map[int]struct{})
	seenFamilies := make(map[string]struct{})
	for _, id := range artifact.BottomIDs {
		store, family, err := SplitBottomID(id)
		if err != nil {
			return nil, err
		}
		if _, ok := seenStores[store]; !ok {
			seenStores[store] = struct{}{}
			spec.Stores = append(spec.Stores, store)
		}
		if _, ok := seenFamilies[family]; !ok {
			seenFamilies[family] = struct{}{}
			spec.Families = append(spec.Families, family)
		}
	}

	if len(spec.Stores) != spec.NStores || len(spec.Families) != spec.NFamilies {
		return nil, fmt.Errorf("dimension mismatch: recovered %d stores and %d families, spec says %d and %d",
			len(spec.Stores), len(spec.Families), spec.NStores, spec.NFamilies)
	}

	return spec, nil
}

// SaveMatrix writes the summing matrix as two little-endian uint32
// dimensions followed by the row-major float32 entries
func SaveMatrix(path string, m *SummingMatrix) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create matrix file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, uint32(m.Rows)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(m.Cols)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Data); err != nil {
		return err
	}

	return w.Flush()
}

// LoadMatrix reads a matrix written by SaveMatrix
func LoadMatrix(path string) (*SummingMatrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("read matrix dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, fmt.Errorf("read matrix dimensions: %w", err)
	}

	m := &SummingMatrix{
		Rows: int(rows),
		Cols: int(cols),
		Data: make([]float32, int(rows)*int(cols)),
	}
	if err := binary.Read(r, binary.LittleEndian, m.Data); err != nil {
		return nil, fmt.Errorf("read matrix entries: %w", err)
	}

	return m, nil
}

// saveTagArray writes a string array as a count followed by
// length-prefixed UTF-8 strings
func saveTagArray(path string, tags []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tags))); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(tag))); err != nil {
			return err
		}
		if _, err := w.WriteString(tag); err != nil {
			return err
		}
	}

	return w.Flush()
}

func loadTagArray(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read tag count: %w", err)
	}

	tags := make([]string, count)
	for i := range tags {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("read tag %d length: %w", i, err)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read tag %d: %w", i, err)
		}
		tags[i] = string(buf)
	}

	return tags, nil
}
