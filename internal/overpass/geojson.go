package overpass

import (
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ToGeoJSON converts a response into a GeoJSON feature collection. Tagged
// nodes and nodes no way refers to become points; ways become line strings,
// or polygons when closed. Relations are not converted.
func ToGeoJSON(resp *Response) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	if resp == nil {
		return fc
	}

	coords := make(map[int64][]float64)
	referenced := make(map[int64]bool)
	for _, el := range resp.Elements {
		switch el.Type {
		case "node":
			if el.HasPos {
				coords[el.ID] = []float64{el.Lon, el.Lat}
			}
		case "way":
			for _, id := range el.Nodes {
				referenced[id] = true
			}
		}
	}

	for _, el := range resp.Elements {
		switch el.Type {
		case "node":
			if !el.HasPos || (len(el.Tags) == 0 && referenced[el.ID]) {
				continue
			}
			pt := geom.NewPointFlat(geom.XY, []float64{el.Lon, el.Lat}).SetSRID(4326)
			fc.Features = append(fc.Features, newFeature(el, pt))
		case "way":
			g := wayGeometry(el, coords)
			if g == nil {
				zap.L().Debug("overpass: skipping way without resolvable geometry", zap.Int64("id", el.ID))
				continue
			}
			fc.Features = append(fc.Features, newFeature(el, g))
		}
	}
	return fc
}

func newFeature(el Element, g geom.T) *geojson.Feature {
	props := map[string]any{
		"type": el.Type,
		"id":   el.ID,
	}
	if len(el.Tags) > 0 {
		tags := make(map[string]any, len(el.Tags))
		for _, t := range el.Tags {
			tags[t.Key] = t.Value
		}
		props["tags"] = tags
	}
	return &geojson.Feature{
		ID:         el.Type + "/" + strconv.FormatInt(el.ID, 10),
		Geometry:   g,
		Properties: props,
	}
}

// wayGeometry resolves a way's node references into a line string, or a
// polygon when the way is closed and not tagged area=no.
func wayGeometry(el Element, coords map[int64][]float64) geom.T {
	flat := make([]float64, 0, 2*len(el.Nodes))
	for _, id := range el.Nodes {
		c, ok := coords[id]
		if !ok {
			continue
		}
		flat = append(flat, c...)
	}
	n := len(flat) / 2
	if n < 2 {
		return nil
	}

	closed := len(el.Nodes) > 3 && el.Nodes[0] == el.Nodes[len(el.Nodes)-1] &&
		n == len(el.Nodes)
	if closed && tagValue(el, "area") != "no" {
		return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
	}
	return geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326)
}

func tagValue(el Element, key string) string {
	for _, t := range el.Tags {
		if t.Key == key {
			s, _ := t.Value.(string)
			return s
		}
	}
	return ""
}
