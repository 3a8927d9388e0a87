// Package settings exports and imports the form configuration as a
// portable JSON or YAML document.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/iwvelando/trade-route/internal/apperrors"
	"github.com/iwvelando/trade-route/internal/form"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Format is a settings file encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatFor picks the encoding from a file name. Names without an
// extension are treated as JSON.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "", ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnknownFormat, path)
	}
}

// CommodityEntry is an allocation as written to a settings file.
type CommodityEntry struct {
	Name   string `json:"name" yaml:"name"`
	Amount int    `json:"amount" yaml:"amount"`
}

// RestrictionEntry is a restriction as written to a settings file.
type RestrictionEntry struct {
	Commodity string `json:"commodity" yaml:"commodity"`
	Location  string `json:"location" yaml:"location"`
	Value     int    `json:"value" yaml:"value"`
}

// File is the exported document. Step holds the stop count.
type File struct {
	Cargo        int64              `json:"cargo" yaml:"cargo"`
	Range        int                `json:"range" yaml:"range"`
	Step         int                `json:"step" yaml:"step"`
	Filter       string             `json:"filter" yaml:"filter"`
	Commodities  []CommodityEntry   `json:"commodities" yaml:"commodities"`
	Locations    []string           `json:"locations" yaml:"locations"`
	Restrictions []RestrictionEntry `json:"restrictions" yaml:"restrictions"`
}

// FromState copies the form values verbatim, dropping entry ids.
func FromState(s form.State) File {
	out := File{
		Cargo:        s.Cargo,
		Range:        s.Range,
		Step:         s.Stops,
		Filter:       s.Filter,
		Commodities:  make([]CommodityEntry, 0, len(s.Commodities)),
		Locations:    make([]string, 0, len(s.Locations)),
		Restrictions: make([]RestrictionEntry, 0, len(s.Restrictions)),
	}
	for _, c := range s.Commodities {
		out.Commodities = append(out.Commodities, CommodityEntry{Name: c.Name, Amount: c.Amount})
	}
	for _, l := range s.Locations {
		out.Locations = append(out.Locations, l.Name)
	}
	for _, r := range s.Restrictions {
		out.Restrictions = append(out.Restrictions, RestrictionEntry{Commodity: r.Commodity, Location: r.Location, Value: r.Value})
	}
	return out
}

// Export encodes the state in the given format.
func Export(s form.State, format Format) ([]byte, error) {
	file := FromState(s)
	switch format {
	case JSON:
		return json.MarshalIndent(file, "", "  ")
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownFormat, format)
	}
}

// Settings is a decoded settings document. A nil field was absent from the
// document and leaves the corresponding form value unchanged.
type Settings struct {
	Cargo        *int64
	Range        *int
	Step         *int
	Filter       *string
	Commodities  *[]CommodityEntry
	Locations    *[]string
	Restrictions *[]RestrictionEntry
}

// Decode parses a settings document. Numbers given as strings and names
// given as numbers are coerced; unknown keys are ignored.
func Decode(data []byte, format Format) (*Settings, error) {
	var raw map[string]interface{}
	var err error
	switch format {
	case JSON:
		err = json.Unmarshal(data, &raw)
	case YAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSettingsParse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not an object", apperrors.ErrSettingsParse)
	}

	d := decoder{}
	s := &Settings{}
	if v, ok := raw["cargo"]; ok {
		n := d.whole("cargo", v)
		s.Cargo = &n
	}
	if v, ok := raw["range"]; ok {
		n := d.wholeInt("range", v)
		s.Range = &n
	}
	if v, ok := raw["step"]; ok {
		n := d.wholeInt("step", v)
		s.Step = &n
	}
	if v, ok := raw["filter"]; ok {
		str := d.str("filter", v)
		s.Filter = &str
	}
	if v, ok := raw["commodities"]; ok {
		items := d.list("commodities", v)
		out := make([]CommodityEntry, 0, len(items))
		for i, item := range items {
			key := fmt.Sprintf("commodities[%d]", i)
			m := d.object(key, item)
			out = append(out, CommodityEntry{
				Name:   d.str(key+".name", m["name"]),
				Amount: d.wholeInt(key+".amount", m["amount"]),
			})
		}
		s.Commodities = &out
	}
	if v, ok := raw["locations"]; ok {
		items := d.list("locations", v)
		out := make([]string, 0, len(items))
		for i, item := range items {
			out = append(out, d.str(fmt.Sprintf("locations[%d]", i), item))
		}
		s.Locations = &out
	}
	if v, ok := raw["restrictions"]; ok {
		items := d.list("restrictions", v)
		out := make([]RestrictionEntry, 0, len(items))
		for i, item := range items {
			key := fmt.Sprintf("restrictions[%d]", i)
			m := d.object(key, item)
			out = append(out, RestrictionEntry{
				Commodity: d.str(key+".commodity", m["commodity"]),
				Location:  d.str(key+".location", m["location"]),
				Value:     d.wholeInt(key+".value", m["value"]),
			})
		}
		s.Restrictions = &out
	}

	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

// decoder keeps the first coercion failure so Decode can report a single error.
type decoder struct {
	err error
}

func (d *decoder) fail(key string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %v", apperrors.ErrSettingsParse, key, err)
	}
}

func (d *decoder) whole(key string, v interface{}) int64 {
	if v == nil {
		d.fail(key, fmt.Errorf("missing value"))
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		d.fail(key, err)
		return 0
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		d.fail(key, fmt.Errorf("%v is not a whole number", v))
		return 0
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		d.fail(key, fmt.Errorf("%v is out of range", v))
		return 0
	}
	return int64(f)
}

func (d *decoder) wholeInt(key string, v interface{}) int {
	n := d.whole(key, v)
	if int64(int(n)) != n {
		d.fail(key, fmt.Errorf("%v is out of range", v))
		return 0
	}
	return int(n)
}

func (d *decoder) str(key string, v interface{}) string {
	if v == nil {
		d.fail(key, fmt.Errorf("missing value"))
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		d.fail(key, err)
	}
	return s
}

func (d *decoder) list(key string, v interface{}) []interface{} {
	items, err := cast.ToSliceE(v)
	if err != nil {
		d.fail(key, err)
	}
	return items
}

func (d *decoder) object(key string, v interface{}) map[string]interface{} {
	m, err := cast.ToStringMapE(v)
	if err != nil {
		d.fail(key, err)
		return map[string]interface{}{}
	}
	return m
}

// Apply writes every present setting into the form in a single update and
// reports whether the filter changed. Imported entries get fresh ids.
func Apply(f *form.Form, s *Settings) bool {
	filterChanged := false
	f.Update(func(st *form.State) {
		if s.Cargo != nil {
			st.Cargo = *s.Cargo
		}
		if s.Range != nil {
			st.Range = *s.Range
		}
		if s.Step != nil {
			st.Stops = *s.Step
		}
		if s.Filter != nil {
			filterChanged = st.Filter != *s.Filter
			st.Filter = *s.Filter
		}
		if s.Commodities != nil {
			st.Commodities = make([]form.CommodityAllocation, 0, len(*s.Commodities))
			for _, c := range *s.Commodities {
				st.Commodities = append(st.Commodities, form.CommodityAllocation{ID: uuid.New(), Name: c.Name, Amount: c.Amount})
			}
		}
		if s.Locations != nil {
			st.Locations = make([]form.LocationEntry, 0, len(*s.Locations))
			for _, name := range *s.Locations {
				st.Locations = append(st.Locations, form.LocationEntry{ID: uuid.New(), Name: name})
			}
		}
		if s.Restrictions != nil {
			st.Restrictions = make([]form.Restriction, 0, len(*s.Restrictions))
			for _, r := range *s.Restrictions {
				st.Restrictions = append(st.Restrictions, form.Restriction{ID: uuid.New(), Commodity: r.Commodity, Location: r.Location, Value: r.Value})
			}
		}
	})
	return filterChanged
}

// Import reads, decodes and applies a settings document. On any error the
// form is left untouched.
func Import(r io.Reader, format Format, f *form.Form) (filterChanged bool, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, fmt.Errorf("reading settings: %w", err)
	}
	s, err := Decode(data, format)
	if err != nil {
		return false, err
	}
	return Apply(f, s), nil
}
