package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrDimensionMismatch = errors.New("units belong to different dimensions")
	ErrMalformedQuantity = errors.New("malformed quantity")
	ErrUnknownDimension  = errors.New("unknown dimension")
)

// Epsilon is the relative tolerance for comparing normalized magnitudes.
const Epsilon = 1e-9

// NearlyEqual compares two magnitudes with a tolerance scaled to their size.
func NearlyEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= Epsilon*scale
}

// Unit is one entry of the conversion table.
type Unit struct {
	Symbol    string  `json:"symbol"`
	Dimension string  `json:"dimension"`
	Factor    float64 `json:"factor"`
}

// Measure is a quantity expressed in the canonical unit of its dimension.
type Measure struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Dimension string  `json:"dimension"`
}

type unitEntry struct {
	Symbol  string   `yaml:"symbol"`
	Factor  float64  `yaml:"factor"`
	Aliases []string `yaml:"aliases"`
}

type dimensionEntry struct {
	Name      string      `yaml:"name"`
	Canonical string      `yaml:"canonical"`
	Units     []unitEntry `yaml:"units"`
}

type unitsFile struct {
	Version    int              `yaml:"version"`
	Dimensions []dimensionEntry `yaml:"dimensions"`
}

//go:embed data/units.yaml
var defaultUnits []byte

// UnitTable resolves unit names and converts between units of one dimension.
// It is read-only after construction.
type UnitTable struct {
	version   int
	units     map[string]Unit
	canonical map[string]string
}

// DefaultUnits returns the built-in conversion table.
func DefaultUnits() (*UnitTable, error) {
	return ParseUnitTable(defaultUnits)
}

// ParseUnitTable builds a table from a YAML document.
func ParseUnitTable(data []byte) (*UnitTable, error) {
	var f unitsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse units: %w", err)
	}

	t := &UnitTable{
		version:   f.Version,
		units:     make(map[string]Unit),
		canonical: make(map[string]string),
	}
	for _, d := range f.Dimensions {
		dim := NormalizeTerm(d.Name)
		if dim == "" {
			return nil, errors.New("parse units: dimension name is required")
		}
		hasCanonical := false
		for _, u := range d.Units {
			if u.Factor <= 0 {
				return nil, fmt.Errorf("parse units: %s/%s: factor must be positive", dim, u.Symbol)
			}
			unit := Unit{Symbol: unitKey(u.Symbol), Dimension: dim, Factor: u.Factor}
			for _, name := range append([]string{u.Symbol}, u.Aliases...) {
				key := unitKey(name)
				if prev, dup := t.units[key]; dup {
					return nil, fmt.Errorf("parse units: %q defined for both %s and %s", key, prev.Dimension, dim)
				}
				t.units[key] = unit
			}
			if unit.Symbol == unitKey(d.Canonical) {
				if u.Factor != 1 {
					return nil, fmt.Errorf("parse units: canonical unit %q of %s must have factor 1", d.Canonical, dim)
				}
				hasCanonical = true
			}
		}
		if !hasCanonical {
			return nil, fmt.Errorf("parse units: %s: canonical unit %q not listed", dim, d.Canonical)
		}
		t.canonical[dim] = unitKey(d.Canonical)
	}
	return t, nil
}

func unitKey(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

func (t *UnitTable) Version() int {
	return t.version
}

// Resolve looks a unit up by symbol or alias.
func (t *UnitTable) Resolve(unit string) (Unit, error) {
	key := unitKey(unit)
	if key == "" {
		return Unit{}, fmt.Errorf("%w: unit is required", ErrUnknownUnit)
	}
	u, ok := t.units[key]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return u, nil
}

// Canonical returns the canonical unit symbol of a dimension.
func (t *UnitTable) Canonical(dimension string) (string, error) {
	c, ok := t.canonical[NormalizeTerm(dimension)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
	return c, nil
}

func (t *UnitTable) Normalize(q Quantity) (Measure, error) {
	u, err := t.Resolve(q.Unit)
	if err != nil {
		return Measure{}, err
	}
	return Measure{
		Value:     q.Value * u.Factor,
		Unit:      t.canonical[u.Dimension],
		Dimension: u.Dimension,
	}, nil
}

// Convert expresses q in another unit of the same dimension.
func (t *UnitTable) Convert(q Quantity, to string) (Quantity, error) {
	from, err := t.Resolve(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	target, err := t.Resolve(to)
	if err != nil {
		return Quantity{}, err
	}
	if from.Dimension != target.Dimension {
		return Quantity{}, fmt.Errorf("%w: %s is %s, %s is %s", ErrDimensionMismatch, q.Unit, from.Dimension, to, target.Dimension)
	}
	return Quantity{Value: q.Value * from.Factor / target.Factor, Unit: target.Symbol}, nil
}

// SameQuantity reports whether two quantities denote the same magnitude.
// Quantities of different or unresolvable dimensions are never the same.
func (t *UnitTable) SameQuantity(a, b Quantity) bool {
	ma, err := t.Normalize(a)
	if err != nil {
		return false
	}
	mb, err := t.Normalize(b)
	if err != nil {
		return false
	}
	return ma.Dimension == mb.Dimension && NearlyEqual(ma.Value, mb.Value)
}

// SameObject compares objects the way conflict checks need: text case
// insensitively, quantities after unit normalization.
func (t *UnitTable) SameObject(a, b Object) bool {
	switch {
	case a.Quantity != nil && b.Quantity != nil:
		return t.SameQuantity(*a.Quantity, *b.Quantity)
	case a.Quantity == nil && b.Quantity == nil:
		return strings.EqualFold(strings.TrimSpace(a.Text), strings.TrimSpace(b.Text))
	}
	return false
}

// ParseQuantity reads forms like "7.5 cm", "7.5cm" or "1,200 km".
// A bare number yields a quantity without unit.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return Quantity{}, fmt.Errorf("%w: empty", ErrMalformedQuantity)
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return !(unicode.IsDigit(r) || r == '.' || r == '-' || r == '+')
	})
	numPart, unitPart := s, ""
	if end >= 0 {
		numPart, unitPart = s[:end], strings.TrimSpace(s[end:])
	}

	v, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %q", ErrMalformedQuantity, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Quantity{}, fmt.Errorf("%w: %q", ErrMalformedQuantity, s)
	}
	return Quantity{Value: v, Unit: unitPart}, nil
}
