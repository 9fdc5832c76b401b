// Package model contains the domain types shared between the scoring engine,
// the repositories and the HTTP layer.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Discipline selects which scoring rule set applies.
type Discipline string

// Supported disciplines.
const (
	Dressage Discipline = "dressage"
	Jumping  Discipline = "jumping"
)

// Valid reports whether d is a known discipline.
func (d Discipline) Valid() bool { return d == Dressage || d == Jumping }

// MarkKind distinguishes exercises from collective marks.
type MarkKind byte

// Mark kinds; the byte doubles as the MarkID prefix.
const (
	ExerciseMark   MarkKind = 'E'
	CollectiveMark MarkKind = 'C'
)

// MarkID identifies a mark definition inside a template: "E<n>" for
// exercise n, "C<n>" for collective mark n.
type MarkID string

// ExerciseID returns the MarkID of exercise n.
func ExerciseID(n int) MarkID { return MarkID("E" + strconv.Itoa(n)) }

// CollectiveID returns the MarkID of collective mark n.
func CollectiveID(n int) MarkID { return MarkID("C" + strconv.Itoa(n)) }

// Parse splits the id into its kind and number.
func (id MarkID) Parse() (MarkKind, int, error) {
	s := strings.ToUpper(string(id))
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("malformed mark id %q", string(id))
	}
	kind := MarkKind(s[0])
	if kind != ExerciseMark && kind != CollectiveMark {
		return 0, 0, fmt.Errorf("malformed mark id %q", string(id))
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, 0, fmt.Errorf("malformed mark id %q", string(id))
	}
	return kind, n, nil
}

// Canonical returns id in its canonical upper-case form, or id unchanged if
// it does not parse.
func (id MarkID) Canonical() MarkID {
	kind, n, err := id.Parse()
	if err != nil {
		return id
	}
	return MarkID(string(rune(kind)) + strconv.Itoa(n))
}

// MarkDefinition describes one judged exercise or collective mark.
type MarkDefinition struct {
	Number      int     `json:"number" yaml:"number" validate:"min=0"`
	MaxNote     float64 `json:"max_note" yaml:"max_note" validate:"gt=0"`
	Coefficient int     `json:"coefficient" yaml:"coefficient" validate:"min=1"`
	Description string  `json:"description" yaml:"description"`
	Required    bool    `json:"required" yaml:"required"`
}

// ExerciseDefinition is a discrete judged movement.
type ExerciseDefinition = MarkDefinition

// CollectiveMarkDefinition is a holistic judgement such as gaits or impulsion.
type CollectiveMarkDefinition = MarkDefinition

// ScoringTemplate is a named, versioned set of mark definitions. MaxScore is
// a configured ceiling and is never recomputed from the definitions.
type ScoringTemplate struct {
	ID              string                     `json:"id" yaml:"id" validate:"required"`
	Name            string                     `json:"name" yaml:"name" validate:"required"`
	Version         int                        `json:"version" yaml:"version" validate:"min=1"`
	Discipline      Discipline                 `json:"discipline" yaml:"discipline" validate:"required,oneof=dressage jumping"`
	Exercises       []ExerciseDefinition       `json:"exercises" yaml:"exercises" validate:"dive"`
	CollectiveMarks []CollectiveMarkDefinition `json:"collective_marks" yaml:"collective_marks" validate:"dive"`
	MaxScore        float64                    `json:"max_score" yaml:"max_score" validate:"gt=0"`
	SystemOwned     bool                       `json:"system_owned" yaml:"-"`
}

// Definition looks up the definition referenced by id.
func (t *ScoringTemplate) Definition(id MarkID) (MarkDefinition, bool) {
	kind, n, err := id.Parse()
	if err != nil {
		return MarkDefinition{}, false
	}
	defs := t.Exercises
	if kind == CollectiveMark {
		defs = t.CollectiveMarks
	}
	for _, d := range defs {
		if d.Number == n {
			return d, true
		}
	}
	return MarkDefinition{}, false
}

// Clone returns a deep copy of t.
func (t *ScoringTemplate) Clone() *ScoringTemplate {
	c := *t
	c.Exercises = append([]ExerciseDefinition(nil), t.Exercises...)
	c.CollectiveMarks = append([]CollectiveMarkDefinition(nil), t.CollectiveMarks...)
	return &c
}

// TemplateKey is the lookup key for template resolution.
type TemplateKey struct {
	CompetitionID string     `json:"competition_id"`
	CategoryID    string     `json:"category_id"`
	Discipline    Discipline `json:"discipline"`
}
