package overpass

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/poi-ingest/internal/model"
)

// Element is one decoded OSM element. Record keeps every attribute in
// document order; the typed fields feed the geography conversion.
type Element struct {
	Type   string
	ID     int64
	Lat    float64
	Lon    float64
	HasPos bool
	Nodes  []int64
	Tags   model.Tags
	Record model.Record
}

// Response is the decoded Overpass JSON envelope.
type Response struct {
	Version   float64
	Generator string
	// Remark carries server-side runtime errors (e.g. a query timeout) that
	// Overpass reports with a 200 status and partial elements.
	Remark   string
	Elements []Element
}

// Records returns the records of all elements, in response order.
func (r *Response) Records() []model.Record {
	out := make([]model.Record, len(r.Elements))
	for i, el := range r.Elements {
		out[i] = el.Record
	}
	return out
}

// Parse decodes an Overpass JSON body.
func Parse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.New("overpass: response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, eris.Errorf("overpass: expected JSON object, got %s", root.Type)
	}
	elements := root.Get("elements")
	if !elements.IsArray() {
		return nil, eris.New("overpass: response has no elements array")
	}

	resp := &Response{
		Version:   root.Get("version").Float(),
		Generator: root.Get("generator").String(),
		Remark:    root.Get("remark").String(),
	}

	var parseErr error
	elements.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			parseErr = eris.Errorf("overpass: element %d is not an object", len(resp.Elements))
			return false
		}
		resp.Elements = append(resp.Elements, decodeElement(v))
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return resp, nil
}

func decodeElement(v gjson.Result) Element {
	var el Element
	v.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		switch k {
		case "type":
			el.Type = value.String()
		case "id":
			el.ID = value.Int()
		case "lat":
			el.Lat = value.Float()
			el.HasPos = true
		case "lon":
			el.Lon = value.Float()
		case "nodes":
			for _, n := range value.Array() {
				el.Nodes = append(el.Nodes, n.Int())
			}
		}

		if k == model.TagsKey && value.IsObject() {
			el.Tags = decodeTags(value)
			el.Record.Fields = append(el.Record.Fields, model.Field{Key: k, Value: el.Tags})
			return true
		}
		el.Record.Fields = append(el.Record.Fields, model.Field{Key: k, Value: scalar(value)})
		return true
	})
	return el
}

func decodeTags(v gjson.Result) model.Tags {
	tags := model.Tags{}
	v.ForEach(func(key, value gjson.Result) bool {
		tags = append(tags, model.Field{Key: key.String(), Value: scalar(value)})
		return true
	})
	return tags
}

// scalar converts a JSON value into a storable one. Nested arrays and objects
// are kept as compact JSON text.
func scalar(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return i
		}
		return v.Float()
	case gjson.String:
		return v.Str
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
			return v.Raw
		}
		return buf.String()
	}
}
