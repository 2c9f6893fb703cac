package ingest

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/poi-ingest/internal/model"
)

// Filter is one attribute key/value pair to query for, e.g. amenity=hospital.
type Filter struct {
	Key   string
	Value string
}

// ParseFilter parses "key=value". Both sides must be non-empty.
func ParseFilter(s string) (Filter, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(s), "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return Filter{}, eris.Errorf("ingest: malformed filter %q, want key=value", s)
	}
	return Filter{Key: key, Value: value}, nil
}

// ParseFilters parses every entry with ParseFilter.
func ParseFilters(ss []string) ([]Filter, error) {
	out := make([]Filter, 0, len(ss))
	for _, s := range ss {
		f, err := ParseFilter(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (f Filter) String() string { return f.Key + "=" + f.Value }

// UnmarshalYAML accepts either "key=value" or a {key, value} mapping.
func (f *Filter) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseFilter(node.Value)
		if err != nil {
			return err
		}
		*f = parsed
		return nil
	}
	var raw struct {
		Key   string `yaml:"key"`
		Value string `yaml:"value"`
	}
	if err := node.Decode(&raw); err != nil {
		return eris.Wrap(err, "ingest: decode filter")
	}
	if raw.Key == "" || raw.Value == "" {
		return eris.Errorf("ingest: filter at line %d needs key and value", node.Line)
	}
	*f = Filter{Key: raw.Key, Value: raw.Value}
	return nil
}

// Plan is the ordered set of places and filters a run queries.
type Plan struct {
	Countries []string `yaml:"countries"`
	Filters   []Filter `yaml:"filters"`
}

// BatchSpec identifies one query batch.
type BatchSpec struct {
	Place  string
	Filter Filter
}

// Annotations returns the batch-level values stamped onto each row.
func (b BatchSpec) Annotations() model.Annotations {
	return model.Annotations{Place: b.Place, Attribute: b.Filter.Value}
}

// Batches expands the plan country by country, filters in declaration order.
// Repeated (country, filter) pairs produce one batch.
func (p Plan) Batches() []BatchSpec {
	seen := make(map[BatchSpec]bool, len(p.Countries)*len(p.Filters))
	var out []BatchSpec
	for _, c := range p.Countries {
		for _, f := range p.Filters {
			spec := BatchSpec{Place: c, Filter: f}
			if seen[spec] {
				continue
			}
			seen[spec] = true
			out = append(out, spec)
		}
	}
	return out
}

// Validate reports an empty plan.
func (p Plan) Validate() error {
	if len(p.Countries) == 0 {
		return eris.New("ingest: plan has no countries")
	}
	if len(p.Filters) == 0 {
		return eris.New("ingest: plan has no filters")
	}
	for _, c := range p.Countries {
		if strings.TrimSpace(c) == "" {
			return eris.New("ingest: plan has an empty country name")
		}
	}
	return nil
}

// LoadPlan reads a YAML plan file:
//
//	countries: [Ghana, Nigeria]
//	filters:
//	  - amenity=hospital
//	  - {key: office, value: government}
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, eris.Wrapf(err, "ingest: read plan %s", path)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, eris.Wrapf(err, "ingest: parse plan %s", path)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}
