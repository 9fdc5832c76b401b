package scoring

import (
	"math"
	"strconv"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// FaultTable prices jumping faults. It is supplied by configuration so each
// competition ruleset can adjust it without code changes.
type FaultTable struct {
	// KnockdownPenalty is charged per knockdown.
	KnockdownPenalty float64 `koanf:"knockdown_penalty" validate:"min=0"`
	// RefusalPenalties[i] is charged for the (i+1)th refusal; the last value
	// repeats for further refusals.
	RefusalPenalties []float64 `koanf:"refusal_penalties" validate:"min=1,dive,min=0"`
	// TimeFaultPenalty is charged per commenced TimeFaultInterval over the
	// allowed time.
	TimeFaultPenalty  float64 `koanf:"time_fault_penalty" validate:"min=0"`
	TimeFaultInterval float64 `koanf:"time_fault_interval_seconds" validate:"gt=0"`
	// OtherPenalty is the default for FaultOther.
	OtherPenalty float64 `koanf:"other_fault_penalty" validate:"min=0"`
}

// DefaultFaultTable returns the FEI Table A defaults.
func DefaultFaultTable() FaultTable {
	return FaultTable{
		KnockdownPenalty:  4,
		RefusalPenalties:  []float64{4, 4},
		TimeFaultPenalty:  1,
		TimeFaultInterval: 1,
		OtherPenalty:      0,
	}
}

// Penalty prices a fault of type t given how many faults of that type were
// already recorded on the round.
func (ft FaultTable) Penalty(t model.FaultType, prior int) float64 {
	switch t {
	case model.FaultKnockdown:
		return ft.KnockdownPenalty
	case model.FaultRefusal:
		if len(ft.RefusalPenalties) == 0 {
			return 0
		}
		i := min(prior, len(ft.RefusalPenalties)-1)
		return ft.RefusalPenalties[i]
	case model.FaultTime:
		return ft.TimeFaultPenalty
	default:
		return ft.OtherPenalty
	}
}

// TimeFaults returns the time penalty for elapsed against allowed. An
// allowed time of zero or less means the round is untimed.
func (ft FaultTable) TimeFaults(elapsed, allowed float64) float64 {
	if allowed <= 0 || ft.TimeFaultInterval <= 0 {
		return 0
	}
	// Millisecond resolution keeps 75.3-75 from landing a hair above 0.3.
	over := math.Round((elapsed-allowed)*1000) / 1000
	if over <= 0 {
		return 0
	}
	return math.Ceil(over/ft.TimeFaultInterval) * ft.TimeFaultPenalty
}

// Jumping implements the fault/time method: FinalScore is total penalties,
// lower is better.
type Jumping struct {
	table FaultTable
}

var _ Rule = (*Jumping)(nil)

// NewJumping builds a jumping rule from a fault table.
func NewJumping(table FaultTable) (*Jumping, error) {
	if err := validate.Struct(table); err != nil {
		return nil, model.Invalid("scoring.new_jumping", "fault_table", "valid", "", err.Error())
	}
	return &Jumping{table: table}, nil
}

// Discipline implements Rule.
func (j *Jumping) Discipline() model.Discipline { return model.Jumping }

// Table returns the fault table in use.
func (j *Jumping) Table() FaultTable { return j.table }

// CheckMark implements Rule.
func (j *Jumping) CheckMark(id model.MarkID, _ float64) error {
	return model.Invalid("scoring.check_mark", string(id), "discipline", string(model.Dressage), string(model.Jumping))
}

// CheckFault implements Rule.
func (j *Jumping) CheckFault(f model.FaultEntry) error {
	const op = "scoring.check_fault"
	switch {
	case !f.Type.Valid():
		return model.Invalid(op, "fault_type", "oneof", "knockdown refusal time_fault other", string(f.Type))
	case f.ObstacleNumber < 0:
		return model.Invalid(op, "obstacle_number", "min", "0", strconv.Itoa(f.ObstacleNumber))
	case !finite(f.PenaltyPoints) || f.PenaltyPoints < 0:
		return model.Invalid(op, "penalty_points", "min", "0", strconv.FormatFloat(f.PenaltyPoints, 'f', -1, 64))
	}
	return nil
}

// CheckElapsed implements Rule.
func (j *Jumping) CheckElapsed(seconds float64) error {
	if !finite(seconds) || seconds < 0 {
		return model.Invalid("scoring.check_elapsed", "elapsed_seconds", "min", "0", strconv.FormatFloat(seconds, 'f', -1, 64))
	}
	return nil
}

// MissingRequired implements Rule. A round cannot be completed untimed.
func (j *Jumping) MissingRequired(s Sheet) []string {
	if s.ElapsedSeconds == nil {
		return []string{"elapsed_seconds"}
	}
	return nil
}

// Compute implements Rule.
func (j *Jumping) Compute(s Sheet) Result {
	var r Result
	for _, f := range s.Faults {
		r.PenaltyPoints += f.PenaltyPoints
	}
	if s.ElapsedSeconds != nil {
		r.TimeFaults = j.table.TimeFaults(*s.ElapsedSeconds, s.AllowedTimeSeconds)
	}
	r.FinalScore = r.PenaltyPoints + r.TimeFaults
	r.MarkedCount = len(s.Faults)
	return r
}
