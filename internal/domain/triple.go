package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provenance tags.
const (
	SourceSystem  = "system"
	SourceDerived = "derived"

	userSourcePrefix = "user_"
)

// UserSource returns the provenance tag for a learned belief.
func UserSource(id string) string {
	if strings.HasPrefix(id, userSourcePrefix) {
		return id
	}
	return userSourcePrefix + id
}

// IsReservedSource reports whether source may only be assigned internally.
func IsReservedSource(source string) bool {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case SourceSystem, SourceDerived:
		return true
	}
	return false
}

// Quantity is a numeric object with its unit.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

func (q Quantity) String() string {
	v := strconv.FormatFloat(q.Value, 'f', -1, 64)
	if q.Unit == "" {
		return v
	}
	return v + " " + q.Unit
}

// Object is the value side of a Triple: either text or a quantity.
type Object struct {
	Text     string    `json:"text,omitempty"`
	Quantity *Quantity `json:"quantity,omitempty"`
}

func TextObject(text string) Object {
	return Object{Text: text}
}

func NumericObject(value float64, unit string) Object {
	return Object{Quantity: &Quantity{Value: value, Unit: unit}}
}

func (o Object) IsNumeric() bool {
	return o.Quantity != nil
}

func (o Object) IsZero() bool {
	return o.Quantity == nil && strings.TrimSpace(o.Text) == ""
}

func (o Object) String() string {
	if o.Quantity != nil {
		return o.Quantity.String()
	}
	return o.Text
}

// Triple is the atomic unit of knowledge.
type Triple struct {
	ID          uuid.UUID  `json:"id"`
	Subject     string     `json:"subject"`
	Relation    string     `json:"relation"`
	Object      Object     `json:"object"`
	IsImmutable bool       `json:"is_immutable"`
	Source      string     `json:"source"`
	Timestamp   time.Time  `json:"timestamp"`
	Supersedes  *uuid.UUID `json:"supersedes,omitempty"`
}

// NormalizeTerm lower-cases an identifier and collapses its whitespace.
func NormalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Normalize puts subject, relation and class identifiers in canonical form.
func (t *Triple) Normalize() {
	t.Subject = NormalizeTerm(t.Subject)
	t.Relation = NormalizeTerm(t.Relation)
	t.Source = strings.TrimSpace(t.Source)
	if t.Object.Quantity == nil {
		t.Object.Text = strings.TrimSpace(t.Object.Text)
		if t.Relation == RelationInstanceOf {
			t.Object.Text = NormalizeTerm(t.Object.Text)
		}
	} else {
		t.Object.Quantity.Unit = strings.TrimSpace(t.Object.Quantity.Unit)
	}
}

// SortNewestFirst orders triples by descending timestamp.
func SortNewestFirst(ts []Triple) {
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].Timestamp.After(ts[j].Timestamp)
	})
}

// Current returns the authoritative triples of one (subject, relation) group.
// ts must be newest first. For functional relations constants win, otherwise
// the newest learned belief supersedes the older ones.
func Current(ts []Triple, functional bool) []Triple {
	if !functional || len(ts) == 0 {
		return ts
	}
	var constants []Triple
	for _, t := range ts {
		if t.IsImmutable {
			constants = append(constants, t)
		}
	}
	if len(constants) > 0 {
		return constants
	}
	return ts[:1]
}
