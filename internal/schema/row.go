package schema

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-ingest/internal/model"
)

// Row is one flat table row aligned with a TableColumns list. A nil entry is
// the absent-value marker: the column does not apply to this record, which
// is distinct from an empty string.
type Row []any

// MapRecord flattens one record into a row ordered like cols. Only fields
// known to the schema are carried over; tag fields land under their
// flattened names.
func MapRecord(r model.Record, s *Schema, cols TableColumns, ann model.Annotations) Row {
	values := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		if s.Has(f.Key) {
			values[f.Key] = f.Value
		}
		if f.Key != model.TagsKey {
			continue
		}
		tags, ok := f.Value.(model.Tags)
		if !ok {
			continue
		}
		for _, tag := range tags {
			name := FlattenTagKey(tag.Key)
			if s.Has(name) {
				values[name] = tag.Value
			}
		}
	}
	values[AttributeColumn] = ann.Attribute
	values[PlaceColumn] = ann.Place

	return align(values, cols)
}

// MapAggregate builds the single per-batch row carrying the aggregate
// geography, serialized as text, next to the batch annotations.
func MapAggregate(ann model.Annotations, geography json.Marshaler, cols TableColumns) (Row, error) {
	values := map[string]any{
		AttributeColumn: ann.Attribute,
		PlaceColumn:     ann.Place,
	}
	if geography != nil {
		data, err := json.Marshal(geography)
		if err != nil {
			return nil, eris.Wrap(err, "schema: serialize geography")
		}
		values[GeographyColumn] = string(data)
	}
	return align(values, cols), nil
}

func align(values map[string]any, cols TableColumns) Row {
	row := make(Row, len(cols.names))
	for i, name := range cols.names {
		if v, ok := values[name]; ok {
			row[i] = v
		}
	}
	return row
}
