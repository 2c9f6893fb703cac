package model

import "encoding/json"

// TagsKey is the top-level record attribute holding free-form OSM tags.
const TagsKey = "tags"

// Field is a single key/value attribute, kept in source order.
type Field struct {
	Key   string
	Value any
}

// Tags is the nested tag mapping of a Record (e.g. amenity=hospital).
type Tags []Field

// Record is one semi-structured element of a decoded response. Fields holds
// every top-level attribute in document order; the tag container, when
// present, is the field keyed TagsKey with a Tags value.
type Record struct {
	Fields []Field
}

// Get returns the value of the top-level field key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Tags returns the nested tag fields of the record, if it has any.
func (r Record) Tags() (Tags, bool) {
	v, ok := r.Get(TagsKey)
	if !ok {
		return nil, false
	}
	tags, ok := v.(Tags)
	return tags, ok
}

// Annotations are the batch-level values attached to every row of a batch.
type Annotations struct {
	// Place is the origin-place name the batch was queried for (e.g. "Ghana").
	Place string `json:"place" yaml:"place"`
	// Attribute is the requested attribute value (e.g. "hospital").
	Attribute string `json:"attribute" yaml:"attribute"`
}

// Batch is the decoded response of one query.
type Batch struct {
	Records     []Record
	Annotations Annotations
	// Geography is the aggregate geographic payload for the whole batch.
	// It is persisted as one extra row, never per record.
	Geography json.Marshaler
}
