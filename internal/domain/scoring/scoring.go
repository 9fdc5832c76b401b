// Package scoring defines the rule sets that turn raw marks or faults into a
// score. Rules are pure: the same sheet always yields the same Result.
package scoring

import (
	"math"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// Sheet is the raw input of one scorecard.
type Sheet struct {
	Marks              map[model.MarkID]float64
	Faults             []model.FaultEntry
	ElapsedSeconds     *float64
	AllowedTimeSeconds float64
}

// SheetOf extracts the raw input of c.
func SheetOf(c *model.ScoreCard) Sheet {
	return Sheet{
		Marks:              c.Marks,
		Faults:             c.Faults,
		ElapsedSeconds:     c.ElapsedSeconds,
		AllowedTimeSeconds: c.AllowedTimeSeconds,
	}
}

// Result contains the derived totals of a sheet.
type Result struct {
	FinalScore         float64
	Percentage         float64
	MarkedCount        int
	MarkableCount      int
	CollectiveSubtotal float64
	PenaltyPoints      float64
	TimeFaults         float64
}

// Apply copies the derived totals onto c.
func (r Result) Apply(c *model.ScoreCard) {
	c.FinalScore = r.FinalScore
	c.Percentage = r.Percentage
	c.MarkedCount = r.MarkedCount
	c.MarkableCount = r.MarkableCount
	c.CollectiveSubtotal = r.CollectiveSubtotal
	c.PenaltyPoints = r.PenaltyPoints
	c.TimeFaults = r.TimeFaults
}

// Rule is a discipline-specific scoring strategy.
type Rule interface {
	Discipline() model.Discipline
	// CheckMark rejects a mark that cannot be entered. Called at entry time.
	CheckMark(id model.MarkID, value float64) error
	// CheckFault rejects a fault that cannot be entered.
	CheckFault(f model.FaultEntry) error
	// CheckElapsed rejects an elapsed time that cannot be entered.
	CheckElapsed(seconds float64) error
	// MissingRequired lists required inputs still absent from s.
	MissingRequired(s Sheet) []string
	// Compute derives the totals of s. It never fails for a structurally
	// valid sheet.
	Compute(s Sheet) Result
}

// Round2 rounds x to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// New selects the rule for discipline d. Dressage needs a template; jumping
// needs only the fault table.
func New(d model.Discipline, t *model.ScoringTemplate, table FaultTable) (Rule, error) {
	switch d {
	case model.Dressage:
		r, err := NewDressage(t)
		if err != nil {
			return nil, err
		}
		return r, nil
	case model.Jumping:
		r, err := NewJumping(table)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, model.Invalid("scoring.new", "discipline", "oneof", "dressage jumping", string(d))
	}
}
