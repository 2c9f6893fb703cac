// Package overpass talks to the OpenStreetMap Overpass API: it builds
// area-scoped node queries, decodes the JSON response into ordered records,
// and converts the batch into a GeoJSON feature collection.
package overpass

import (
	"fmt"
	"strings"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "http://overpass-api.de/api/interpreter"

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// BuildQuery returns an Overpass QL query selecting every node tagged
// key=value inside the area named place, followed by the nodes' skeletons.
func BuildQuery(timeoutSecs int, place, key, value string) string {
	return fmt.Sprintf(
		`[out:json][timeout:'%d'];`+
			`area["name"="%s"]->.boundaryarea;`+
			`(node(area.boundaryarea)["%s"="%s"];);`+
			`out body;>;out skel qt;`,
		timeoutSecs,
		quoteEscaper.Replace(place),
		quoteEscaper.Replace(key),
		quoteEscaper.Replace(value),
	)
}
