package hierarchy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Level identifies one level of the aggregation hierarchy
type Level string

const (
	LevelTotal  Level = "Total"
	LevelStore  Level = "Store"
	LevelFamily Level = "Family"
	LevelBottom Level = "Bottom"
)

// Levels lists the aggregate levels carrying tag arrays, most aggregate first
var Levels = []Level{LevelTotal, LevelStore, LevelFamily}

// Separator joins the store number and family name into a bottom series id
const Separator = "_"

// Spec is the hierarchy specification derived from the feature matrix.
// It is built once per feature-matrix snapshot and immutable thereafter.
type Spec struct {
	// BottomIDs enumerates the bottom-level series in deterministic order:
	// stores ascending in the outer loop, families ascending in the inner.
	BottomIDs []string

	Stores   []int
	Families []string

	NStores   int
	NFamilies int
	NBottom   int

	// Tags maps each aggregate level to an array of size NBottom giving
	// each bottom series' parent node id at that level.
	Tags map[Level][]string
}

// BuildSpec derives the hierarchy specification from per-row dimension
// values. Rows may repeat; distinct values are extracted and sorted so that
// repeated builds from the same input produce identical ordering.
func BuildSpec(storeNbrs []int, families []string) (*Spec, error) {
	if len(storeNbrs) == 0 || len(families) == 0 {
		return nil, fmt.Errorf("empty dimension columns: %d store values, %d family values",
			len(storeNbrs), len(families))
	}

	stores := distinctInts(storeNbrs)
	fams := distinctStrings(families)

	spec := &Spec{
		Stores:    stores,
		Families:  fams,
		NStores:   len(stores),
		NFamilies: len(fams),
		NBottom:   len(stores) * len(fams),
	}

	spec.BottomIDs = make([]string, 0, spec.NBottom)
	for _, store := range stores {
		for _, family := range fams {
			spec.BottomIDs = append(spec.BottomIDs, BottomID(store, family))
		}
	}

	spec.Tags = buildTags(spec.BottomIDs)

	return spec, nil
}

// BottomID forms the bottom series identifier for a store and family
func BottomID(storeNbr int, family string) string {
	return strconv.Itoa(storeNbr) + Separator + family
}

// SplitBottomID decomposes a bottom series id back into its dimensions.
// Family names may themselves contain the separator, so only the first
// occurrence splits.
func SplitBottomID(id string) (storeNbr int, family string, err error) {
	idx := strings.Index(id, Separator)
	if idx <= 0 || idx == len(id)-1 {
		return 0, "", fmt.Errorf("malformed bottom id %q", id)
	}

	storeNbr, err = strconv.Atoi(id[:idx])
	if err != nil {
		return 0, "", fmt.Errorf("malformed store number in bottom id %q: %w", id, err)
	}

	return storeNbr, id[idx+1:], nil
}

// buildTags derives the per-level parent arrays by decomposing bottom ids
func buildTags(bottomIDs []string) map[Level][]string {
	tags := map[Level][]string{
		LevelTotal:  make([]string, len(bottomIDs)),
		LevelStore:  make([]string, len(bottomIDs)),
		LevelFamily: make([]string, len(bottomIDs)),
	}

	for i, id := range bottomIDs {
		idx := strings.Index(id, Separator)
		tags[LevelTotal][i] = string(LevelTotal)
		tags[LevelStore][i] = "Store" + Separator + id[:idx]
		tags[LevelFamily][i] = "Family" + Separator + id[idx+1:]
	}

	return tags
}

// NTotal returns the number of nodes across all levels
func (s *Spec) NTotal() int {
	return 1 + s.NStores + s.NFamilies + s.NBottom
}

// AllIDs enumerates node ids for every hierarchy level in summing-matrix
// row order: Total, stores, families, then bottom series.
func (s *Spec) AllIDs() []string {
	ids := make([]string, 0, s.NTotal())
	ids = append(ids, string(LevelTotal))
	for _, store := range s.Stores {
		ids = append(ids, "Store"+Separator+strconv.Itoa(store))
	}
	for _, family := range s.Families {
		ids = append(ids, "Family"+Separator+family)
	}
	ids = append(ids, s.BottomIDs...)
	return ids
}

// LevelIDs returns the node ids belonging to one level, in row order
func (s *Spec) LevelIDs(level Level) []string {
	switch level {
	case LevelTotal:
		return []string{string(LevelTotal)}
	case LevelStore:
		ids := make([]string, s.NStores)
		for i, store := range s.Stores {
			ids[i] = "Store" + Separator + strconv.Itoa(store)
		}
		return ids
	case LevelFamily:
		ids := make([]string, s.NFamilies)
		for i, family := range s.Families {
			ids[i] = "Family" + Separator + family
		}
		return ids
	case LevelBottom:
		ids := make([]string, len(s.BottomIDs))
		copy(ids, s.BottomIDs)
		return ids
	}
	return nil
}

func distinctInts(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	var out []int
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

func distinctStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
