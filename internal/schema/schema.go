// Package schema infers a relational column schema from semi-structured
// records and reconciles it with the append-only column list of the
// persisted table.
package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/poi-ingest/internal/model"
)

// Type is the storage-type tag of a column.
type Type string

const (
	Text Type = "TEXT"
	Blob Type = "BLOB"
)

// Synthetic columns present in every inferred schema.
const (
	AttributeColumn = "building_type"
	PlaceColumn     = "country"
	GeographyColumn = "geo_json"
)

// Column is a named, typed schema entry.
type Column struct {
	Name string
	Type Type
}

// Schema is an ordered mapping from column name to storage type. Columns
// keep the position at which they were first seen.
type Schema struct {
	cols  []Column
	index map[string]int
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{index: make(map[string]int)}
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.cols) }

// Has reports whether the schema contains the column.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Type returns the storage type of the column.
func (s *Schema) Type(name string) (Type, bool) {
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.cols[i].Type, true
}

// Columns returns a copy of the columns in schema order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.cols))
	copy(out, s.cols)
	return out
}

// Names returns the column names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}

// AddIfAbsent inserts the column unless it is already present.
func (s *Schema) AddIfAbsent(name string, typ Type) {
	if s.Has(name) {
		return
	}
	s.index[name] = len(s.cols)
	s.cols = append(s.cols, Column{Name: name, Type: typ})
}

// Set inserts the column or overrides the type of an existing one in place.
func (s *Schema) Set(name string, typ Type) {
	if i, ok := s.index[name]; ok {
		s.cols[i].Type = typ
		return
	}
	s.AddIfAbsent(name, typ)
}

// Remove deletes the column if present.
func (s *Schema) Remove(name string) {
	i, ok := s.index[name]
	if !ok {
		return
	}
	s.cols = append(s.cols[:i], s.cols[i+1:]...)
	delete(s.index, name)
	for j := i; j < len(s.cols); j++ {
		s.index[s.cols[j].Name] = j
	}
}

// FlattenTagKey maps a nested tag key to its top-level column name:
// "Opening:Hours" becomes "tags_opening_hours".
func FlattenTagKey(key string) string {
	name := cases.Lower(language.Und).String(model.TagsKey + "_" + key)
	return strings.ReplaceAll(name, ":", "_")
}

// Infer derives the column schema of a batch. Every top-level key of every
// record becomes a TEXT column, nested tag keys are flattened into their own
// columns, and the three synthetic columns are always set last.
func Infer(batch model.Batch) *Schema {
	s := New()
	for _, r := range batch.Records {
		for _, f := range r.Fields {
			if f.Key != model.TagsKey {
				s.AddIfAbsent(f.Key, Text)
				continue
			}
			tags, ok := f.Value.(model.Tags)
			if !ok {
				continue
			}
			for _, tag := range tags {
				s.AddIfAbsent(FlattenTagKey(tag.Key), Text)
			}
		}
	}

	s.Set(AttributeColumn, Text)
	s.Set(PlaceColumn, Text)
	s.Set(GeographyColumn, Blob)

	// The container itself is never a column, whatever shape it arrived in.
	s.Remove(model.TagsKey)
	return s
}
