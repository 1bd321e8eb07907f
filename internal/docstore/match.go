// ABOUTME: In-process filter, sort, and projection helpers for documents
// ABOUTME: Used by MemoryStore for everything and by SQLiteStore for projection

package docstore

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// normalize deep-copies a document through JSON so numbers compare as float64
// and nested values have a single representation.
func normalize(doc map[string]any) (Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

// lookup resolves a dotted path inside a document.
func lookup(doc Document, path string) (any, bool) {
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if d, isDoc := cur.(Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// matches reports whether doc satisfies every condition of a normalized filter.
func matches(doc Document, filter Document) bool {
	for field, want := range filter {
		got, ok := lookup(doc, field)
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// compareValues orders JSON scalar values. Mixed or composite types order by
// type rank, then by their encoded form.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		return strings.Compare(av, b.(string))
	default:
		ea, _ := json.Marshal(a)
		eb, _ := json.Marshal(b)
		return strings.Compare(string(ea), string(eb))
	}
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 4
	default:
		return 3
	}
}

// sortDocuments orders docs in place by the given sort fields.
func sortDocuments(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b Document) int {
		for _, f := range fields {
			av, _ := lookup(a, f.Field)
			bv, _ := lookup(b, f.Field)
			c := compareValues(av, bv)
			if f.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// project keeps only the listed top-level fields plus the internal id.
func project(doc Document, fields []string) Document {
	if len(fields) == 0 {
		return doc
	}
	out := Document{}
	if id, ok := doc[IDField]; ok {
		out[IDField] = id
	}
	for _, f := range fields {
		if v, ok := lookup(doc, f); ok {
			out[f] = v
		}
	}
	return out
}

// merge returns a copy of base overlaid with update.
func merge(base, update Document) Document {
	out := make(Document, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// filterFields returns the equality fields of a filter that can seed an
// inserted document.
func filterFields(filter Document) Document {
	out := Document{}
	for k, v := range filter {
		if k == IDField || strings.Contains(k, ".") {
			continue
		}
		out[k] = v
	}
	return out
}
