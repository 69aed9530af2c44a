package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	RelationInstanceOf      = "instance_of"
	RelationHasOpinion      = "has_opinion"
	RelationHasProperty     = "has_property"
	RelationMadeOf          = "made_of"
	RelationCanBeUsedFor    = "can_be_used_for"
	RelationTypicalLocation = "typical_location"
	RelationHasPart         = "has_part"
	RelationShape           = "shape"
	RelationCapital         = "capital"
	RelationDiameter        = "diameter"
)

// ObjectKind tells whether a relation takes a textual or a numeric object.
type ObjectKind string

const (
	KindCategorical ObjectKind = "categorical"
	KindNumeric     ObjectKind = "numeric"
)

func ValidObjectKind(k string) bool {
	switch ObjectKind(k) {
	case KindCategorical, KindNumeric:
		return true
	}
	return false
}

// RelationSpec declares how a relation behaves.
type RelationSpec struct {
	Name        string     `yaml:"name" json:"name"`
	Kind        ObjectKind `yaml:"kind" json:"kind"`
	Functional  bool       `yaml:"functional" json:"functional"`
	Dimension   string     `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	Attributed  bool       `yaml:"attributed,omitempty" json:"attributed,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
}

// IsOpinion reports whether triples of this relation are subjective statements.
// They always carry a user source and are never reasoned over.
func (r RelationSpec) IsOpinion() bool {
	return r.Attributed
}

type vocabularyFile struct {
	Version   int            `yaml:"version"`
	Relations []RelationSpec `yaml:"relations"`
}

//go:embed data/relations.yaml
var defaultRelations []byte

// Vocabulary is the registry of known relations.
type Vocabulary struct {
	mu        sync.RWMutex
	version   int
	relations map[string]RelationSpec
}

func NewVocabulary(specs ...RelationSpec) (*Vocabulary, error) {
	v := &Vocabulary{relations: make(map[string]RelationSpec)}
	for _, s := range specs {
		if err := v.Register(s); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// DefaultVocabulary returns the built-in relation set.
func DefaultVocabulary() (*Vocabulary, error) {
	v, err := NewVocabulary()
	if err != nil {
		return nil, err
	}
	if err := v.LoadYAML(defaultRelations); err != nil {
		return nil, fmt.Errorf("load default vocabulary: %w", err)
	}
	return v, nil
}

// LoadYAML registers every relation of a vocabulary document. Entries that
// already exist are replaced.
func (v *Vocabulary) LoadYAML(data []byte) error {
	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse vocabulary: %w", err)
	}
	for _, s := range f.Relations {
		if err := v.Register(s); err != nil {
			return err
		}
	}
	v.mu.Lock()
	if f.Version > v.version {
		v.version = f.Version
	}
	v.mu.Unlock()
	return nil
}

func (v *Vocabulary) Register(spec RelationSpec) error {
	spec.Name = NormalizeTerm(spec.Name)
	if spec.Name == "" {
		return errors.New("relation name is required")
	}
	if spec.Kind == "" {
		spec.Kind = KindCategorical
	}
	if !ValidObjectKind(string(spec.Kind)) {
		return fmt.Errorf("relation %q: invalid kind %q", spec.Name, spec.Kind)
	}
	if spec.Dimension != "" && spec.Kind != KindNumeric {
		return fmt.Errorf("relation %q: only numeric relations carry a dimension", spec.Name)
	}
	if spec.Name == RelationInstanceOf {
		// a subject has at most one direct class
		spec.Functional = true
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.relations[spec.Name] = spec
	return nil
}

func (v *Vocabulary) Lookup(name string) (RelationSpec, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	spec, ok := v.relations[NormalizeTerm(name)]
	return spec, ok
}

func (v *Vocabulary) IsFunctional(name string) bool {
	spec, ok := v.Lookup(name)
	return ok && spec.Functional
}

func (v *Vocabulary) Version() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Relations returns every registered relation sorted by name.
func (v *Vocabulary) Relations() []RelationSpec {
	v.mu.RLock()
	out := make([]RelationSpec, 0, len(v.relations))
	for _, s := range v.relations {
		out = append(out, s)
	}
	v.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CurrentBeliefs filters a newest-first triple list down to the triples that
// are authoritative for their (subject, relation) group. Order is preserved.
func (v *Vocabulary) CurrentBeliefs(ts []Triple) []Triple {
	type groupKey struct{ subject, relation string }
	groups := make(map[groupKey][]Triple)
	var order []groupKey
	for _, t := range ts {
		k := groupKey{t.Subject, t.Relation}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	keep := make(map[uuid.UUID]struct{}, len(ts))
	for _, k := range order {
		for _, t := range Current(groups[k], v.IsFunctional(k.relation)) {
			keep[t.ID] = struct{}{}
		}
	}

	out := make([]Triple, 0, len(keep))
	for _, t := range ts {
		if _, ok := keep[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}
