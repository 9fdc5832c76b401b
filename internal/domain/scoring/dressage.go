package scoring

import (
	"strconv"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// Dressage implements the weighted-exercise method:
// FinalScore = Σ mark × coefficient over exercises and collective marks.
type Dressage struct {
	template *model.ScoringTemplate
}

var _ Rule = (*Dressage)(nil)

// NewDressage builds a dressage rule from a validated template.
func NewDressage(t *model.ScoringTemplate) (*Dressage, error) {
	if err := ValidateTemplate(t); err != nil {
		return nil, err
	}
	return &Dressage{template: t.Clone()}, nil
}

// Discipline implements Rule.
func (d *Dressage) Discipline() model.Discipline { return model.Dressage }

// Template returns the template the rule was built from.
func (d *Dressage) Template() *model.ScoringTemplate { return d.template }

// CheckMark implements Rule. Out-of-range values are rejected, never clamped.
func (d *Dressage) CheckMark(id model.MarkID, value float64) error {
	const op = "scoring.check_mark"
	def, ok := d.template.Definition(id)
	if !ok {
		return model.Invalid(op, string(id), "defined", "mark defined by template "+d.template.ID, string(id))
	}
	if !finite(value) || value < 0 || value > def.MaxNote {
		return model.Invalid(op, string(id), "range",
			"0.."+strconv.FormatFloat(def.MaxNote, 'f', -1, 64),
			strconv.FormatFloat(value, 'f', -1, 64))
	}
	return nil
}

// CheckFault implements Rule.
func (d *Dressage) CheckFault(model.FaultEntry) error {
	return model.Invalid("scoring.check_fault", "faults", "discipline", string(model.Jumping), string(model.Dressage))
}

// CheckElapsed implements Rule.
func (d *Dressage) CheckElapsed(float64) error {
	return model.Invalid("scoring.check_elapsed", "elapsed_seconds", "discipline", string(model.Jumping), string(model.Dressage))
}

// MissingRequired implements Rule.
func (d *Dressage) MissingRequired(s Sheet) []string {
	var missing []string
	for _, def := range d.template.Exercises {
		if _, ok := s.Marks[model.ExerciseID(def.Number)]; def.Required && !ok {
			missing = append(missing, string(model.ExerciseID(def.Number)))
		}
	}
	for _, def := range d.template.CollectiveMarks {
		if _, ok := s.Marks[model.CollectiveID(def.Number)]; def.Required && !ok {
			missing = append(missing, string(model.CollectiveID(def.Number)))
		}
	}
	return missing
}

// Compute implements Rule. Definitions are walked in template order so the
// floating point sum is independent of map iteration order.
func (d *Dressage) Compute(s Sheet) Result {
	var r Result
	for _, def := range d.template.Exercises {
		r.MarkableCount++
		if v, ok := s.Marks[model.ExerciseID(def.Number)]; ok {
			r.MarkedCount++
			r.FinalScore += v * float64(def.Coefficient)
		}
	}
	for _, def := range d.template.CollectiveMarks {
		r.MarkableCount++
		if v, ok := s.Marks[model.CollectiveID(def.Number)]; ok {
			r.MarkedCount++
			r.CollectiveSubtotal += v * float64(def.Coefficient)
		}
	}
	r.FinalScore += r.CollectiveSubtotal
	// No clamping: a total above MaxScore shows up as a percentage above 100.
	r.Percentage = Round2(r.FinalScore / d.template.MaxScore * 100)
	return r
}
