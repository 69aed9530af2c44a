package domain

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SeedConstant is one ground truth of the seed set. Exactly one of Text or
// Unit is set.
type SeedConstant struct {
	Subject  string  `yaml:"subject"`
	Relation string  `yaml:"relation"`
	Text     string  `yaml:"text,omitempty"`
	Value    float64 `yaml:"value,omitempty"`
	Unit     string  `yaml:"unit,omitempty"`
}

// Triple builds the immutable triple for the constant.
func (c SeedConstant) Triple() Triple {
	obj := TextObject(c.Text)
	if c.Unit != "" {
		obj = NumericObject(c.Value, c.Unit)
	}
	t := Triple{
		Subject:     c.Subject,
		Relation:    c.Relation,
		Object:      obj,
		IsImmutable: true,
		Source:      SourceSystem,
	}
	t.Normalize()
	return t
}

// SeedSet is a versioned collection of ground truths.
type SeedSet struct {
	Version   int            `yaml:"version"`
	Constants []SeedConstant `yaml:"constants"`
}

//go:embed data/constants.yaml
var defaultConstants []byte

// DefaultSeedSet returns the constants shipped with the binary.
func DefaultSeedSet() (*SeedSet, error) {
	return ParseSeedSet(defaultConstants)
}

func ParseSeedSet(data []byte) (*SeedSet, error) {
	var s SeedSet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed set: %w", err)
	}
	for i, c := range s.Constants {
		if c.Subject == "" || c.Relation == "" {
			return nil, fmt.Errorf("parse seed set: constant %d: subject and relation are required", i)
		}
		if (c.Text == "") == (c.Unit == "") {
			return nil, fmt.Errorf("parse seed set: constant %d (%s %s): set either text or value+unit", i, c.Subject, c.Relation)
		}
	}
	return &s, nil
}
